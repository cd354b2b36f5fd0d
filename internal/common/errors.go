package common

import "errors"

// Error kinds shared across the pipeline. Components wrap these with
// fmt.Errorf("...: %w", ErrX) and callers match with errors.Is.
var (
	// ErrSessionExpired means the stored or live session is no longer usable.
	// The user has to reconnect; callers must not retry with the same credential.
	ErrSessionExpired = errors.New("session expired")

	// ErrResource means the browser process could not be started or died.
	ErrResource = errors.New("browser resource unavailable")

	// ErrCrypto means key material is missing or a ciphertext is corrupt.
	ErrCrypto = errors.New("crypto failure")

	// ErrStorage wraps persistence layer failures.
	ErrStorage = errors.New("storage failure")

	// ErrFill means the apply entry point could not be located on the page.
	ErrFill = errors.New("apply control not found")

	ErrNoCapture       = errors.New("no capture in progress")
	ErrUnknownPlatform = errors.New("unknown platform")
	ErrProfileNotFound = errors.New("profile not found")
	ErrJobNotFound     = errors.New("job not found")
	ErrInvalidStatus   = errors.New("invalid status transition")
)
