package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKeyAcceptsWellFormedKeys(t *testing.T) {
	cases := []struct {
		g1, g2, g3 string
	}{
		{"AAAA", "BBBB", "CCCC"},
		{"0000", "0000", "0000"},
		{"ZZZZ", "9999", "A1B2"},
		{"TEST", "DEMO", "KEYS"},
	}

	for _, tc := range cases {
		key := "SPR-" + tc.g1 + "-" + tc.g2 + "-" + tc.g3 + "-" + ChecksumGroup(tc.g1, tc.g2, tc.g3)
		assert.NoError(t, ValidateKey(key), key)
	}
}

func TestValidateKeyChecksumIsDeterministic(t *testing.T) {
	// AAAA+BBBB+CCCC sums to 792, so the checksum is 92, "2K" in base 36.
	assert.Equal(t, "2K00", ChecksumGroup("AAAA", "BBBB", "CCCC"))
	assert.NoError(t, ValidateKey("SPR-AAAA-BBBB-CCCC-2K00"))
}

func TestValidateKeyNormalizesInput(t *testing.T) {
	assert.NoError(t, ValidateKey("  spr-aaaa-bbbb-cccc-2k00  "))
}

func TestValidateKeyRejections(t *testing.T) {
	cases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"wrong prefix", "ABC-AAAA-BBBB-CCCC-2K00"},
		{"missing group", "SPR-AAAA-BBBB-CCCC"},
		{"short group", "SPR-AAA-BBBB-CCCC-2K00"},
		{"lowercase rejected after normalize leaves symbols", "SPR-AA!A-BBBB-CCCC-2K00"},
		{"checksum mismatch", "SPR-AAAA-BBBB-CCCC-2J00"},
		{"checksum chars out of range", "SPR-AAAA-BBBB-CCCC-ZZ00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateKey(tc.key)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidKeyFormat)
		})
	}
}

func TestValidateKeyIgnoresChecksumFillerCharacters(t *testing.T) {
	// Only the first two characters of the trailing group carry the
	// checksum; the filler is free.
	assert.NoError(t, ValidateKey("SPR-AAAA-BBBB-CCCC-2KXY"))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "SPR-****-****-****-2K00", MaskKey("SPR-AAAA-BBBB-CCCC-2K00"))
	assert.Equal(t, "****", MaskKey("abc"))
	assert.Equal(t, "SPRX********", MaskKey("sprxabcdefgh"))
}
