package csrf

import "errors"

// Errors.
var (
	// ErrMalformed indicates that encoded credential bytes are undersized or
	// structurally invalid.
	ErrMalformed = errors.New("csrf: malformed credential")
	// ErrInvalidMAC indicates that the authentication tag does not validate,
	// i.e. the credential was tampered with or minted under another key.
	ErrInvalidMAC = errors.New("csrf: invalid mac")
	// ErrExpired indicates that the configured lifetime has elapsed since the
	// credential was issued.
	ErrExpired = errors.New("csrf: credential expired")
	// ErrBindingMismatch indicates that a token does not correspond to the
	// presented cookie.
	ErrBindingMismatch = errors.New("csrf: token does not match cookie")
	// ErrConfig indicates invalid configuration, e.g. a default target
	// pattern referencing a capture other than <uri>.
	ErrConfig = errors.New("csrf: invalid configuration")
)
