package license

import "errors"

// Sentinel errors surfaced by the store and authority. Negative license
// states (no grant, expired) are not errors; they are carried in
// Status.Error as the reasons below.
var (
	ErrInvalidKeyFormat = errors.New("invalid license key format")
	ErrAlreadyActive    = errors.New("license key already active")
)

// Denial reasons carried in Status.Error
const (
	ReasonNoActiveLicense = "No active license found"
	ReasonExpired         = "License expired"
)

func isInvalidKey(err error) bool {
	return errors.Is(err, ErrInvalidKeyFormat)
}

func isAlreadyActive(err error) bool {
	return errors.Is(err, ErrAlreadyActive)
}
