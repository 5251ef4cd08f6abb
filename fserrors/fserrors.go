// Package fserrors classifies driver failures into abstract kinds and
// maps them onto the POSIX error codes the kernel expects: "what kind
// of failure is this" is a different question from "how does the
// kernel want to hear about it".
package fserrors

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	pkgerrors "github.com/pkg/errors"
)

// Sentinel kinds. Wrap these with fmt.Errorf("%w", ...) at the call site
// so errors.Is keeps working through the wrapping.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrAlreadyExists    = errors.New("already exists")
	ErrIO               = errors.New("io error")
	ErrOutOfMemory      = errors.New("out of memory")
	ErrProtocol         = errors.New("protocol error")
)

// NotFound wraps verb and path as ErrNotFound.
func NotFound(verb, path string) error {
	return fmt.Errorf("%s %q: %w", verb, path, ErrNotFound)
}

// PermissionDenied wraps path as ErrPermissionDenied.
func PermissionDenied(verb, path string) error {
	return fmt.Errorf("%s %q: %w", verb, path, ErrPermissionDenied)
}

// AlreadyExists wraps path as ErrAlreadyExists.
func AlreadyExists(verb, path string) error {
	return fmt.Errorf("%s %q: %w", verb, path, ErrAlreadyExists)
}

// IO wraps an underlying error as ErrIO, adding a stack trace via
// pkg/errors so driver logs show where the failure was classified.
func IO(verb, path string, cause error) error {
	wrapped := fmt.Errorf("%s %q: %w", verb, path, ErrIO)
	if cause != nil {
		wrapped = fmt.Errorf("%s: %w", wrapped, cause)
	}
	return pkgerrors.WithStack(wrapped)
}

// Protocol marks err as a fatal, connection-poisoning protocol error.
func Protocol(cause error) error {
	return pkgerrors.WithStack(fmt.Errorf("%w: %v", ErrProtocol, cause))
}

// ToStatus maps a classified error to the corresponding go-fuse status.
// Protocol errors and anything unrecognised surface as EIO: every
// anomaly the taxonomy doesn't name is an I/O error to the kernel.
func ToStatus(err error) fuse.Status {
	switch {
	case err == nil:
		return fuse.OK
	case errors.Is(err, ErrNotFound):
		return fuse.ENOENT
	case errors.Is(err, ErrPermissionDenied):
		return fuse.EACCES
	case errors.Is(err, ErrAlreadyExists):
		return fuse.Status(syscall.EEXIST)
	case errors.Is(err, ErrOutOfMemory):
		return fuse.Status(syscall.ENOMEM)
	default:
		return fuse.EIO
	}
}

// ToErrno is ToStatus for the fs package's node handlers, which report
// outcomes as syscall.Errno rather than fuse.Status.
func ToErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, ErrPermissionDenied):
		return syscall.EACCES
	case errors.Is(err, ErrAlreadyExists):
		return syscall.EEXIST
	case errors.Is(err, ErrOutOfMemory):
		return syscall.ENOMEM
	default:
		return syscall.EIO
	}
}
