package vfat

import (
	"fmt"
	"syscall"
)

// errnoEUCLEAN is "Structure needs cleaning", used here for a corrupt cluster
// chain. The syscall package doesn't define it on all platforms, so it's kept
// here as a numeric literal (the Linux value) rather than pulled from syscall.
const errnoEUCLEAN = syscall.Errno(117)

// DriverError is a wrapper around system errno codes, with a customizable
// error message. parent, when set, is what Unwrap reports instead of
// ErrnoCode - this is how WithMessage lets a call site attach detail to one
// of this package's sentinel errors (ErrBadVolume, ErrCorruptChain, ...)
// while keeping errors.Is(err, thatSentinel) true.
type DriverError struct {
	ErrnoCode syscall.Errno
	message   string
	parent    error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e *DriverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.ErrnoCode.Error()
}

// Unwrap lets callers use errors.Is(err, syscall.ENOENT) and similar against
// the wrapped errno, or errors.Is(err, someSentinel) when this error was
// built with someSentinel.WithMessage(...).
func (e *DriverError) Unwrap() error {
	if e.parent != nil {
		return e.parent
	}
	return e.ErrnoCode
}

// WithMessage returns a new DriverError carrying message, with e itself as
// its parent so errors.Is(result, e) stays true. Use this on a package
// sentinel (e.g. vfat.ErrBadVolume.WithMessage("...")) rather than
// NewDriverErrorWithMessage when a call site wants both a specific message
// and sentinel identity.
func (e *DriverError) WithMessage(message string) *DriverError {
	return &DriverError{
		ErrnoCode: e.ErrnoCode,
		message:   fmt.Sprintf("%s: %s", e.ErrnoCode.Error(), message),
		parent:    e,
	}
}

// NewDriverError creates a new DriverError with a default message derived from the
// system's error code.
func NewDriverError(errnoCode syscall.Errno) *DriverError {
	return &DriverError{
		ErrnoCode: errnoCode,
		message:   errnoCode.Error(),
	}
}

// NewDriverErrorWithMessage creates a new DriverError from a system error code with a
// custom message.
func NewDriverErrorWithMessage(errnoCode syscall.Errno, message string) *DriverError {
	return &DriverError{
		ErrnoCode: errnoCode,
		message:   fmt.Sprintf("%s: %s", errnoCode.Error(), message),
	}
}

// Error kinds this package's failure paths surface, each a distinct errno
// so callers can switch on ErrnoCode or use errors.Is against the wrapped
// value.
var (
	// ErrNoSuchFile is returned when a lookup fails and the caller didn't
	// pass CREAT.
	ErrNoSuchFile = NewDriverError(syscall.ENOENT)
	// ErrIsDirectory is returned from opening a directory for file I/O, or
	// unlinking a directory.
	ErrIsDirectory = NewDriverError(syscall.EISDIR)
	// ErrOutOfSpace is returned when the cluster allocator can't find a free
	// cluster.
	ErrOutOfSpace = NewDriverError(syscall.ENOSPC)
	// ErrInvalidMode is returned for a write on a non-writable handle.
	ErrInvalidMode = NewDriverError(syscall.EBADF)
	// ErrBadVolume is returned when mount-time layout validation fails.
	ErrBadVolume = NewDriverError(syscall.EINVAL)
	// ErrCorruptChain is returned when the chain walker finds a free entry
	// where a successor cluster was expected.
	ErrCorruptChain = NewDriverError(errnoEUCLEAN)
	// ErrDeviceFailure wraps an I/O failure surfaced from the block device.
	ErrDeviceFailure = NewDriverError(syscall.EIO)
)
