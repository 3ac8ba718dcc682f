// Package squasherr defines the error taxonomy the squash engine surfaces
// to callers. Kinds map directly onto the CLI exit-code contract: user
// errors exit 1, archive/data errors exit 2, I/O and daemon errors exit 3.
package squasherr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why an operation failed.
type Kind int

const (
	_ Kind = iota
	KindInvalidSpec
	KindLayerNotFound
	KindAmbiguousLayerID
	KindMalformedArchive
	KindUnsafePath
	KindDigestMismatch
	KindIoError
	KindDaemonError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidSpec:
		return "InvalidSpec"
	case KindLayerNotFound:
		return "LayerNotFound"
	case KindAmbiguousLayerID:
		return "AmbiguousLayerId"
	case KindMalformedArchive:
		return "MalformedArchive"
	case KindUnsafePath:
		return "UnsafePath"
	case KindDigestMismatch:
		return "DigestMismatch"
	case KindIoError:
		return "IoError"
	case KindDaemonError:
		return "DaemonError"
	default:
		return "Unknown"
	}
}

// ExitCode maps a Kind onto the CLI exit-code contract.
func (k Kind) ExitCode() int {
	switch k {
	case KindInvalidSpec, KindLayerNotFound, KindAmbiguousLayerID:
		return 1
	case KindMalformedArchive, KindUnsafePath, KindDigestMismatch:
		return 2
	default:
		return 3
	}
}

// Error is a squash engine error. It carries a Kind for exit-code mapping
// and an optional wrapped cause for verbose-mode cause chains.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string { return e.msg }

// Unwrap exposes the wrapped cause, if any, to errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind to cause, producing a cause chain rendered under
// verbose mode without exposing a stack trace by default.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, msg: errors.Wrap(cause, msg).Error(), cause: cause}
}

// InvalidSpec reports a malformed layer specification; no I/O has happened.
func InvalidSpec(format string, args ...interface{}) *Error {
	return newf(KindInvalidSpec, format, args...)
}

// LayerNotFound reports that no layer's diff_id matches the requested prefix.
func LayerNotFound(id string) *Error {
	return newf(KindLayerNotFound, "layer not found: %s", id)
}

// AmbiguousLayerID reports that more than one layer's diff_id matches the
// requested prefix.
func AmbiguousLayerID(id string) *Error {
	return newf(KindAmbiguousLayerID, "ambiguous layer id %q matches multiple layers", id)
}

// Malformedf reports a structural violation of the image archive format.
func Malformedf(format string, args ...interface{}) *Error {
	return newf(KindMalformedArchive, format, args...)
}

// UnsafePath reports a path-traversal attempt inside an archive.
func UnsafePath(name string) *Error {
	return newf(KindUnsafePath, "unsafe path in archive: %q", name)
}

// DigestMismatch reports that a declared digest disagrees with the computed
// one.
func DigestMismatch(path, want, got string) *Error {
	return newf(KindDigestMismatch, "digest mismatch for %s: declared %s, computed %s", path, want, got)
}

// IoErrorf wraps an underlying I/O failure.
func IoErrorf(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindIoError, cause, fmt.Sprintf(format, args...))
}

// DaemonErrorf wraps a failure from a caller-provided daemon pipe.
func DaemonErrorf(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindDaemonError, cause, fmt.Sprintf(format, args...))
}
