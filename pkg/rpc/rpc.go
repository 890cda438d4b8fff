// Package rpc implements the TreeDFS remote invocation substrate.
//
// A Skeleton is the server side: it listens on a TCP address and routes
// incoming calls to handlers installed in a static dispatch table keyed by
// method name and parameter-type descriptors. Stubs are the client side:
// thin, serializable values carrying nothing but an interface name and a
// remote address, whose methods are forwarded with Call.
//
// The wire format is XDR (github.com/rasky/go-xdr/xdr2). One call per
// connection: the client writes the method name, the parameter-type
// descriptor list and the arguments in order, then reads a single response
// consisting of a status word followed by either the return payload or an
// error envelope. Errors travel as payload so that the kind thrown by the
// server is re-raised on the caller.
package rpc

import (
	"errors"
	"fmt"
)

// Wire kind strings for the error envelope. Each kind names a semantic
// error category shared by every TreeDFS interface.
const (
	KindNotFound        = "not_found"
	KindOutOfBounds     = "out_of_bounds"
	KindNullArgument    = "null_argument"
	KindInvalidArgument = "invalid_argument"
	KindIllegalState    = "illegal_state"
	KindIO              = "io"
	KindRemote          = "remote"
)

// Parameter-type descriptors used in dispatch keys and on the wire.
const (
	TypePath   = "path"
	TypePaths  = "paths"
	TypeString = "str"
	TypeBool   = "bool"
	TypeInt32  = "i32"
	TypeInt64  = "i64"
	TypeBytes  = "bytes"
	TypeStub   = "stub"
)

// WireError is implemented by errors that know their own wire kind.
// Errors that do not implement it cross the boundary as KindRemote.
type WireError interface {
	error
	WireKind() string
	WirePath() string
}

// ServerError is an error envelope received from the remote side. The
// interface layer maps its kind back to a typed error.
type ServerError struct {
	Kind    string
	Message string
	Path    string
}

func (e *ServerError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// RemoteError reports a transport or serialization failure on the path
// between a stub and its skeleton. A call to a method the skeleton does
// not serve comes back as a *ServerError instead.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote call %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// errorEnvelope is the wire form of a server-side error.
type errorEnvelope struct {
	Kind    string
	Message string
	Path    string
}

func envelopeFor(err error) errorEnvelope {
	var se *ServerError
	if errors.As(err, &se) {
		return errorEnvelope{Kind: se.Kind, Message: se.Message, Path: se.Path}
	}

	var we WireError
	if errors.As(err, &we) {
		return errorEnvelope{Kind: we.WireKind(), Message: we.Error(), Path: we.WirePath()}
	}
	return errorEnvelope{Kind: KindRemote, Message: err.Error()}
}

// Stub identifies a remote implementation of a named interface. Two stubs
// are equal iff their interface name and address match; a stub carries no
// other state and this struct is its own wire form.
type Stub struct {
	Interface string
	Addr      string
}

func (s Stub) String() string {
	return s.Interface + "@" + s.Addr
}

// Zero reports whether the stub carries no address.
func (s Stub) Zero() bool {
	return s.Addr == ""
}
