package dfs

import (
	"errors"

	"github.com/marmos91/treedfs/pkg/fspath"
	"github.com/marmos91/treedfs/pkg/rpc"
)

// Error represents a domain error from a filesystem interface.
//
// These are semantic errors (file not found, index out of bounds, etc.)
// as opposed to transport errors, which surface as *rpc.RemoteError.
// The RPC layer carries an Error across the wire by kind so the caller
// observes the same code the remote side raised.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the filesystem path related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// WireKind implements rpc.WireError.
func (e *Error) WireKind() string {
	return e.Code.wireKind()
}

// WirePath implements rpc.WireError.
func (e *Error) WirePath() string {
	return e.Path
}

// ErrorCode represents the category of a filesystem error. Every category
// has a stable wire form shared by all interfaces.
type ErrorCode int

const (
	// CodeNotFound indicates the named file or directory does not exist.
	CodeNotFound ErrorCode = iota

	// CodeOutOfBounds indicates a read or write outside a file's bounds.
	CodeOutOfBounds

	// CodeNullArgument indicates a required argument was absent.
	CodeNullArgument

	// CodeInvalidArgument indicates a malformed or inapplicable argument.
	CodeInvalidArgument

	// CodeIllegalState indicates the operation is not valid in the current
	// state of the receiver.
	CodeIllegalState

	// CodeIO indicates a local I/O failure on the remote side.
	CodeIO
)

func (c ErrorCode) wireKind() string {
	switch c {
	case CodeNotFound:
		return rpc.KindNotFound
	case CodeOutOfBounds:
		return rpc.KindOutOfBounds
	case CodeNullArgument:
		return rpc.KindNullArgument
	case CodeInvalidArgument:
		return rpc.KindInvalidArgument
	case CodeIllegalState:
		return rpc.KindIllegalState
	case CodeIO:
		return rpc.KindIO
	default:
		return rpc.KindRemote
	}
}

func codeForKind(kind string) (ErrorCode, bool) {
	switch kind {
	case rpc.KindNotFound:
		return CodeNotFound, true
	case rpc.KindOutOfBounds:
		return CodeOutOfBounds, true
	case rpc.KindNullArgument:
		return CodeNullArgument, true
	case rpc.KindInvalidArgument:
		return CodeInvalidArgument, true
	case rpc.KindIllegalState:
		return CodeIllegalState, true
	case rpc.KindIO:
		return CodeIO, true
	default:
		return 0, false
	}
}

// NotFound builds a CodeNotFound error for path.
func NotFound(path fspath.Path) *Error {
	return &Error{Code: CodeNotFound, Message: "no such file or directory", Path: path.String()}
}

// NotFoundf builds a CodeNotFound error with a custom message.
func NotFoundf(path fspath.Path, message string) *Error {
	return &Error{Code: CodeNotFound, Message: message, Path: path.String()}
}

// OutOfBounds builds a CodeOutOfBounds error for path.
func OutOfBounds(path fspath.Path, message string) *Error {
	return &Error{Code: CodeOutOfBounds, Message: message, Path: path.String()}
}

// NullArgument builds a CodeNullArgument error.
func NullArgument(message string) *Error {
	return &Error{Code: CodeNullArgument, Message: message}
}

// InvalidArgument builds a CodeInvalidArgument error.
func InvalidArgument(message string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message}
}

// InvalidArgumentAt builds a CodeInvalidArgument error for path.
func InvalidArgumentAt(path fspath.Path, message string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message, Path: path.String()}
}

// IllegalState builds a CodeIllegalState error.
func IllegalState(message string) *Error {
	return &Error{Code: CodeIllegalState, Message: message}
}

// IO wraps a local I/O failure for path.
func IO(path fspath.Path, err error) *Error {
	return &Error{Code: CodeIO, Message: err.Error(), Path: path.String()}
}

// IsNotFound reports whether err is a CodeNotFound error.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsOutOfBounds reports whether err is a CodeOutOfBounds error.
func IsOutOfBounds(err error) bool { return hasCode(err, CodeOutOfBounds) }

// IsNullArgument reports whether err is a CodeNullArgument error.
func IsNullArgument(err error) bool { return hasCode(err, CodeNullArgument) }

// IsInvalidArgument reports whether err is a CodeInvalidArgument error.
func IsInvalidArgument(err error) bool { return hasCode(err, CodeInvalidArgument) }

// IsIllegalState reports whether err is a CodeIllegalState error.
func IsIllegalState(err error) bool { return hasCode(err, CodeIllegalState) }

// IsIO reports whether err is a CodeIO error.
func IsIO(err error) bool { return hasCode(err, CodeIO) }

func hasCode(err error, code ErrorCode) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}

// fromRemote maps an error returned by rpc.Call back into the domain.
// Server error envelopes with a known kind become typed errors; everything
// else passes through unchanged.
func fromRemote(err error) error {
	if err == nil {
		return nil
	}

	var se *rpc.ServerError
	if errors.As(err, &se) {
		if code, ok := codeForKind(se.Kind); ok {
			return &Error{Code: code, Message: se.Message, Path: se.Path}
		}
	}
	return err
}
