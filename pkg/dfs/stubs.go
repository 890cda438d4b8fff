package dfs

import (
	"context"

	"github.com/marmos91/treedfs/pkg/fspath"
	"github.com/marmos91/treedfs/pkg/rpc"
)

// Interface names carried by stubs. Two stubs are interchangeable iff
// both the interface name and the address match.
const (
	InterfaceService      = "service"
	InterfaceRegistration = "registration"
	InterfaceStorage      = "storage"
	InterfaceCommand      = "command"
)

// Wire method names. Bindings install these on skeletons and stubs invoke
// them; the two sides must agree exactly.
const (
	MethodIsDirectory     = "is_directory"
	MethodList            = "list"
	MethodCreateFile      = "create_file"
	MethodCreateDirectory = "create_directory"
	MethodDelete          = "delete"
	MethodGetStorage      = "get_storage"
	MethodLock            = "lock"
	MethodUnlock          = "unlock"

	MethodRegister = "register"

	MethodSize  = "size"
	MethodRead  = "read"
	MethodWrite = "write"

	MethodCreate = "create"
	MethodCopy   = "copy"
)

func call(ctx context.Context, s rpc.Stub, method string, paramTypes []string, args []any, reply any) error {
	return fromRemote(rpc.Call(ctx, s.Addr, method, paramTypes, args, reply))
}

// ServiceStub forwards the Service interface to a remote naming server.
type ServiceStub struct {
	rpc.Stub
}

// NewServiceStub returns a Service stub for the naming server at addr.
func NewServiceStub(addr string) ServiceStub {
	return ServiceStub{rpc.Stub{Interface: InterfaceService, Addr: addr}}
}

var _ Service = ServiceStub{}

func (s ServiceStub) IsDirectory(ctx context.Context, path fspath.Path) (bool, error) {
	var reply bool
	err := call(ctx, s.Stub, MethodIsDirectory,
		[]string{rpc.TypePath}, []any{path.String()}, &reply)
	return reply, err
}

func (s ServiceStub) List(ctx context.Context, path fspath.Path) ([]string, error) {
	var reply []string
	err := call(ctx, s.Stub, MethodList,
		[]string{rpc.TypePath}, []any{path.String()}, &reply)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (s ServiceStub) CreateFile(ctx context.Context, path fspath.Path) (bool, error) {
	var reply bool
	err := call(ctx, s.Stub, MethodCreateFile,
		[]string{rpc.TypePath}, []any{path.String()}, &reply)
	return reply, err
}

func (s ServiceStub) CreateDirectory(ctx context.Context, path fspath.Path) (bool, error) {
	var reply bool
	err := call(ctx, s.Stub, MethodCreateDirectory,
		[]string{rpc.TypePath}, []any{path.String()}, &reply)
	return reply, err
}

func (s ServiceStub) Delete(ctx context.Context, path fspath.Path) (bool, error) {
	var reply bool
	err := call(ctx, s.Stub, MethodDelete,
		[]string{rpc.TypePath}, []any{path.String()}, &reply)
	return reply, err
}

func (s ServiceStub) GetStorage(ctx context.Context, path fspath.Path) (StorageStub, error) {
	var reply rpc.Stub
	err := call(ctx, s.Stub, MethodGetStorage,
		[]string{rpc.TypePath}, []any{path.String()}, &reply)
	if err != nil {
		return StorageStub{}, err
	}
	return StorageStub{reply}, nil
}

func (s ServiceStub) Lock(ctx context.Context, path fspath.Path, exclusive bool) error {
	return call(ctx, s.Stub, MethodLock,
		[]string{rpc.TypePath, rpc.TypeBool}, []any{path.String(), exclusive}, nil)
}

func (s ServiceStub) Unlock(ctx context.Context, path fspath.Path, exclusive bool) error {
	return call(ctx, s.Stub, MethodUnlock,
		[]string{rpc.TypePath, rpc.TypeBool}, []any{path.String(), exclusive}, nil)
}

// RegistrationStub forwards the Registration interface to a remote naming
// server.
type RegistrationStub struct {
	rpc.Stub
}

// NewRegistrationStub returns a Registration stub for the naming server
// at addr.
func NewRegistrationStub(addr string) RegistrationStub {
	return RegistrationStub{rpc.Stub{Interface: InterfaceRegistration, Addr: addr}}
}

var _ Registration = RegistrationStub{}

func (s RegistrationStub) Register(ctx context.Context, client StorageStub, command CommandStub, files []fspath.Path) ([]fspath.Path, error) {
	wire := make([]string, len(files))
	for i, f := range files {
		wire[i] = f.String()
	}

	var reply []string
	err := call(ctx, s.Stub, MethodRegister,
		[]string{rpc.TypeStub, rpc.TypeStub, rpc.TypePaths},
		[]any{client.Stub, command.Stub, wire}, &reply)
	if err != nil {
		return nil, err
	}

	out := make([]fspath.Path, len(reply))
	for i, raw := range reply {
		p, err := fspath.Parse(raw)
		if err != nil {
			return nil, &rpc.RemoteError{Op: MethodRegister, Err: err}
		}
		out[i] = p
	}
	return out, nil
}

// StorageStub forwards the Storage interface to a remote storage server.
type StorageStub struct {
	rpc.Stub
}

// NewStorageStub returns a Storage stub for the storage server at addr.
func NewStorageStub(addr string) StorageStub {
	return StorageStub{rpc.Stub{Interface: InterfaceStorage, Addr: addr}}
}

var _ Storage = StorageStub{}

func (s StorageStub) Size(ctx context.Context, path fspath.Path) (int64, error) {
	var reply int64
	err := call(ctx, s.Stub, MethodSize,
		[]string{rpc.TypePath}, []any{path.String()}, &reply)
	return reply, err
}

func (s StorageStub) Read(ctx context.Context, path fspath.Path, offset int64, length int32) ([]byte, error) {
	var reply []byte
	err := call(ctx, s.Stub, MethodRead,
		[]string{rpc.TypePath, rpc.TypeInt64, rpc.TypeInt32},
		[]any{path.String(), offset, length}, &reply)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (s StorageStub) Write(ctx context.Context, path fspath.Path, offset int64, data []byte) error {
	return call(ctx, s.Stub, MethodWrite,
		[]string{rpc.TypePath, rpc.TypeInt64, rpc.TypeBytes},
		[]any{path.String(), offset, data}, nil)
}

// CommandStub forwards the Command interface to a remote storage server.
type CommandStub struct {
	rpc.Stub
}

// NewCommandStub returns a Command stub for the storage server at addr.
func NewCommandStub(addr string) CommandStub {
	return CommandStub{rpc.Stub{Interface: InterfaceCommand, Addr: addr}}
}

var _ Command = CommandStub{}

func (s CommandStub) Create(ctx context.Context, path fspath.Path) (bool, error) {
	var reply bool
	err := call(ctx, s.Stub, MethodCreate,
		[]string{rpc.TypePath}, []any{path.String()}, &reply)
	return reply, err
}

func (s CommandStub) Delete(ctx context.Context, path fspath.Path) (bool, error) {
	var reply bool
	err := call(ctx, s.Stub, MethodDelete,
		[]string{rpc.TypePath}, []any{path.String()}, &reply)
	return reply, err
}

func (s CommandStub) Copy(ctx context.Context, path fspath.Path, from StorageStub) (bool, error) {
	var reply bool
	err := call(ctx, s.Stub, MethodCopy,
		[]string{rpc.TypePath, rpc.TypeStub},
		[]any{path.String(), from.Stub}, &reply)
	return reply, err
}
