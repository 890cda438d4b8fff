package rpc

import (
	"context"
	"net"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// Call dials addr, performs a single remote invocation and closes the
// connection. Arguments are marshalled in order after the method name and
// the parameter-type list. A non-nil reply receives the return payload.
//
// Transport and codec failures return *RemoteError; an error raised by the
// remote handler returns *ServerError carrying its wire kind.
func Call(ctx context.Context, addr, method string, paramTypes []string, args []any, reply any) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &RemoteError{Op: method, Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := xdr.Marshal(conn, method); err != nil {
		return &RemoteError{Op: method, Err: err}
	}
	if _, err := xdr.Marshal(conn, paramTypes); err != nil {
		return &RemoteError{Op: method, Err: err}
	}
	for _, arg := range args {
		if _, err := xdr.Marshal(conn, arg); err != nil {
			return &RemoteError{Op: method, Err: err}
		}
	}

	var status uint32
	if _, err := xdr.Unmarshal(conn, &status); err != nil {
		return &RemoteError{Op: method, Err: err}
	}

	if status != 0 {
		var env errorEnvelope
		if _, err := xdr.Unmarshal(conn, &env); err != nil {
			return &RemoteError{Op: method, Err: err}
		}
		return &ServerError{Kind: env.Kind, Message: env.Message, Path: env.Path}
	}

	if reply == nil {
		return nil
	}
	if _, err := xdr.Unmarshal(conn, reply); err != nil {
		return &RemoteError{Op: method, Err: err}
	}
	return nil
}
