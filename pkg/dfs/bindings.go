package dfs

import (
	"context"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/treedfs/pkg/fspath"
	"github.com/marmos91/treedfs/pkg/rpc"
)

// Bindings install an interface's dispatch table on a skeleton. Handlers
// decode arguments in the order the matching stub marshals them.

func readPath(r io.Reader) (fspath.Path, error) {
	var raw string
	if _, err := xdr.Unmarshal(r, &raw); err != nil {
		return fspath.Path{}, err
	}
	p, err := fspath.Parse(raw)
	if err != nil {
		return fspath.Path{}, InvalidArgument(err.Error())
	}
	return p, nil
}

func readBool(r io.Reader) (bool, error) {
	var v bool
	_, err := xdr.Unmarshal(r, &v)
	return v, err
}

func readInt64(r io.Reader) (int64, error) {
	var v int64
	_, err := xdr.Unmarshal(r, &v)
	return v, err
}

func readInt32(r io.Reader) (int32, error) {
	var v int32
	_, err := xdr.Unmarshal(r, &v)
	return v, err
}

func readBytes(r io.Reader) ([]byte, error) {
	var v []byte
	_, err := xdr.Unmarshal(r, &v)
	return v, err
}

func readStub(r io.Reader) (rpc.Stub, error) {
	var v rpc.Stub
	_, err := xdr.Unmarshal(r, &v)
	return v, err
}

func readPaths(r io.Reader) ([]fspath.Path, error) {
	var raw []string
	if _, err := xdr.Unmarshal(r, &raw); err != nil {
		return nil, err
	}
	out := make([]fspath.Path, len(raw))
	for i, s := range raw {
		p, err := fspath.Parse(s)
		if err != nil {
			return nil, InvalidArgument(err.Error())
		}
		out[i] = p
	}
	return out, nil
}

// pathBoolHandler adapts a single-path operation returning a bool.
func pathBoolHandler(op func(context.Context, fspath.Path) (bool, error)) rpc.Handler {
	return func(ctx context.Context, r io.Reader) (any, error) {
		p, err := readPath(r)
		if err != nil {
			return nil, err
		}
		ok, err := op(ctx, p)
		if err != nil {
			return nil, err
		}
		return ok, nil
	}
}

// BindService installs the Service dispatch table on sk, routing calls to
// impl.
func BindService(sk *rpc.Skeleton, impl Service) {
	sk.Handle(MethodIsDirectory, []string{rpc.TypePath}, pathBoolHandler(impl.IsDirectory))
	sk.Handle(MethodCreateFile, []string{rpc.TypePath}, pathBoolHandler(impl.CreateFile))
	sk.Handle(MethodCreateDirectory, []string{rpc.TypePath}, pathBoolHandler(impl.CreateDirectory))
	sk.Handle(MethodDelete, []string{rpc.TypePath}, pathBoolHandler(impl.Delete))

	sk.Handle(MethodList, []string{rpc.TypePath}, func(ctx context.Context, r io.Reader) (any, error) {
		p, err := readPath(r)
		if err != nil {
			return nil, err
		}
		entries, err := impl.List(ctx, p)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []string{}
		}
		return entries, nil
	})

	sk.Handle(MethodGetStorage, []string{rpc.TypePath}, func(ctx context.Context, r io.Reader) (any, error) {
		p, err := readPath(r)
		if err != nil {
			return nil, err
		}
		stub, err := impl.GetStorage(ctx, p)
		if err != nil {
			return nil, err
		}
		return stub.Stub, nil
	})

	lockArgs := []string{rpc.TypePath, rpc.TypeBool}
	sk.Handle(MethodLock, lockArgs, func(ctx context.Context, r io.Reader) (any, error) {
		p, err := readPath(r)
		if err != nil {
			return nil, err
		}
		exclusive, err := readBool(r)
		if err != nil {
			return nil, err
		}
		return nil, impl.Lock(ctx, p, exclusive)
	})
	sk.Handle(MethodUnlock, lockArgs, func(ctx context.Context, r io.Reader) (any, error) {
		p, err := readPath(r)
		if err != nil {
			return nil, err
		}
		exclusive, err := readBool(r)
		if err != nil {
			return nil, err
		}
		return nil, impl.Unlock(ctx, p, exclusive)
	})
}

// BindRegistration installs the Registration dispatch table on sk.
func BindRegistration(sk *rpc.Skeleton, impl Registration) {
	sk.Handle(MethodRegister, []string{rpc.TypeStub, rpc.TypeStub, rpc.TypePaths},
		func(ctx context.Context, r io.Reader) (any, error) {
			client, err := readStub(r)
			if err != nil {
				return nil, err
			}
			command, err := readStub(r)
			if err != nil {
				return nil, err
			}
			files, err := readPaths(r)
			if err != nil {
				return nil, err
			}

			dupes, err := impl.Register(ctx, StorageStub{client}, CommandStub{command}, files)
			if err != nil {
				return nil, err
			}

			wire := make([]string, len(dupes))
			for i, p := range dupes {
				wire[i] = p.String()
			}
			return wire, nil
		})
}

// BindStorage installs the Storage dispatch table on sk.
func BindStorage(sk *rpc.Skeleton, impl Storage) {
	sk.Handle(MethodSize, []string{rpc.TypePath}, func(ctx context.Context, r io.Reader) (any, error) {
		p, err := readPath(r)
		if err != nil {
			return nil, err
		}
		n, err := impl.Size(ctx, p)
		if err != nil {
			return nil, err
		}
		return n, nil
	})

	sk.Handle(MethodRead, []string{rpc.TypePath, rpc.TypeInt64, rpc.TypeInt32},
		func(ctx context.Context, r io.Reader) (any, error) {
			p, err := readPath(r)
			if err != nil {
				return nil, err
			}
			offset, err := readInt64(r)
			if err != nil {
				return nil, err
			}
			length, err := readInt32(r)
			if err != nil {
				return nil, err
			}
			data, err := impl.Read(ctx, p, offset, length)
			if err != nil {
				return nil, err
			}
			if data == nil {
				data = []byte{}
			}
			return data, nil
		})

	sk.Handle(MethodWrite, []string{rpc.TypePath, rpc.TypeInt64, rpc.TypeBytes},
		func(ctx context.Context, r io.Reader) (any, error) {
			p, err := readPath(r)
			if err != nil {
				return nil, err
			}
			offset, err := readInt64(r)
			if err != nil {
				return nil, err
			}
			data, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			return nil, impl.Write(ctx, p, offset, data)
		})
}

// BindCommand installs the Command dispatch table on sk.
func BindCommand(sk *rpc.Skeleton, impl Command) {
	sk.Handle(MethodCreate, []string{rpc.TypePath}, pathBoolHandler(impl.Create))
	sk.Handle(MethodDelete, []string{rpc.TypePath}, pathBoolHandler(impl.Delete))

	sk.Handle(MethodCopy, []string{rpc.TypePath, rpc.TypeStub},
		func(ctx context.Context, r io.Reader) (any, error) {
			p, err := readPath(r)
			if err != nil {
				return nil, err
			}
			from, err := readStub(r)
			if err != nil {
				return nil, err
			}
			ok, err := impl.Copy(ctx, p, StorageStub{from})
			if err != nil {
				return nil, err
			}
			return ok, nil
		})
}
