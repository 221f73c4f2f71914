package types

import "errors"

var (
	// ErrInputNotFound: the enumeration root does not exist.
	ErrInputNotFound = errors.New("input not found")
	// ErrInputNotReadable: the enumeration root exists but cannot be listed.
	ErrInputNotReadable = errors.New("input not readable")
	// ErrArchiveUnreadable: an archive is corrupt or in an unsupported format.
	ErrArchiveUnreadable = errors.New("archive unreadable")
	// ErrOutputWrite: the emitted stream or manifest could not be written.
	ErrOutputWrite = errors.New("output write error")
	// ErrInvalidConfig: flags or config file values are out of range.
	ErrInvalidConfig = errors.New("invalid config")
)
