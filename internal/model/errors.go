package model

import "errors"

// Error taxonomy shared by every stream component. Components wrap these with
// fmt.Errorf("...: %w", ...) and callers test with errors.Is.
var (
	// ErrNetwork is a transport failure. Sessions retry these up to their ceiling.
	ErrNetwork = errors.New("network error")

	// ErrParse is a malformed payload. Absorbed at the codec boundary.
	ErrParse = errors.New("parse error")

	// ErrUnsupported is an operation the exchange or transport does not offer.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrConfiguration is missing or invalid credential/config for an exchange family.
	ErrConfiguration = errors.New("configuration error")

	// ErrMaxRetries is surfaced as the final Error event of a terminated session.
	ErrMaxRetries = errors.New("max reconnect attempts reached")
)
