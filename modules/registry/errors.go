package registry

import "errors"

// Sentinel errors returned by the registry. Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("file not found")
	ErrStorage         = errors.New("storage failure")
	ErrPayloadTooLarge = errors.New("payload too large")
)
