package license

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Key format: SPR-XXXX-XXXX-XXXX-YYYY where the three middle groups are
// uppercase alphanumerics and the first two characters of the trailing group
// encode a checksum. The checksum is the sum of the character codes of the
// twelve middle-group characters, modulo 100, written as a two-character
// base-36 value.
//
// The construction has no cryptographic strength; it is kept bit-exact for
// compatibility with previously issued keys. Real authorization rides on the
// store lookup, never on the checksum alone.
const KeyPrefix = "SPR"

var keyPattern = regexp.MustCompile(`^SPR-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// NormalizeKey uppercases and trims a license key for validation and storage
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// ValidateKey checks the key format and checksum. It returns
// ErrInvalidKeyFormat for any key that does not match the pattern or whose
// checksum group does not agree with the middle groups.
func ValidateKey(key string) error {
	key = NormalizeKey(key)

	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: expected SPR-XXXX-XXXX-XXXX-XXXX", ErrInvalidKeyFormat)
	}

	groups := strings.Split(key, "-")
	want := checksum(groups[1], groups[2], groups[3])

	got, err := strconv.ParseInt(groups[4][:2], 36, 32)
	if err != nil {
		return fmt.Errorf("%w: checksum group is not base-36", ErrInvalidKeyFormat)
	}

	if int(got) != want {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidKeyFormat)
	}

	return nil
}

// checksum sums the character codes of the middle three groups modulo 100
func checksum(groups ...string) int {
	sum := 0
	for _, g := range groups {
		for i := 0; i < len(g); i++ {
			sum += int(g[i])
		}
	}
	return sum % 100
}

// ChecksumGroup computes the trailing group for the given middle groups.
// The two filler characters are fixed; only the first two characters are
// checksum-bearing. Used by key issuance tooling and tests.
func ChecksumGroup(g1, g2, g3 string) string {
	encoded := strings.ToUpper(strconv.FormatInt(int64(checksum(g1, g2, g3)), 36))
	if len(encoded) < 2 {
		encoded = "0" + encoded
	}
	return encoded + "00"
}

// MaskKey masks a license key for logging, keeping the prefix and the last
// group visible.
func MaskKey(key string) string {
	key = NormalizeKey(key)
	groups := strings.Split(key, "-")
	if len(groups) != 5 {
		if len(key) <= 4 {
			return "****"
		}
		return key[:4] + strings.Repeat("*", len(key)-4)
	}
	return groups[0] + "-****-****-****-" + groups[4]
}
