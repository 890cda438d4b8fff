// Package dfs defines the remote interface contracts shared by the naming
// server, the storage servers and their clients, together with the typed
// error model and the stub implementations that forward each contract over
// the rpc transport.
//
// Four interfaces cross the network. Service and Registration are served
// by the naming server; Storage and Command are served by every storage
// server. Command is the naming server's private control plane and is
// never exposed to clients.
package dfs

import (
	"context"

	"github.com/marmos91/treedfs/pkg/fspath"
)

// Service is the naming server's client-facing interface: directory
// queries, namespace mutation and the locking protocol.
type Service interface {
	// IsDirectory reports whether path names a directory.
	IsDirectory(ctx context.Context, path fspath.Path) (bool, error)

	// List returns the names of the entries directly under a directory.
	List(ctx context.Context, path fspath.Path) ([]string, error)

	// CreateFile creates an empty file on some registered storage server
	// and inserts it into the tree. It returns false if the path already
	// exists, and fails with IllegalState when no server is registered.
	CreateFile(ctx context.Context, path fspath.Path) (bool, error)

	// CreateDirectory inserts a directory node. It returns false if the
	// path already exists.
	CreateDirectory(ctx context.Context, path fspath.Path) (bool, error)

	// Delete removes a file or directory subtree from the namespace and
	// from every storage server holding its data. Deleting the root
	// returns false.
	Delete(ctx context.Context, path fspath.Path) (bool, error)

	// GetStorage returns a stub for a storage server hosting the file.
	GetStorage(ctx context.Context, path fspath.Path) (StorageStub, error)

	// Lock acquires path for shared or exclusive access, taking every
	// proper ancestor in shared mode first.
	Lock(ctx context.Context, path fspath.Path, exclusive bool) error

	// Unlock releases a lock previously granted by Lock with the same
	// mode. Unlocking a path that is not in the tree is an
	// InvalidArgument error.
	Unlock(ctx context.Context, path fspath.Path, exclusive bool) error
}

// Registration is the naming server's storage-facing interface.
type Registration interface {
	// Register announces a storage server and the files it already
	// hosts. The return value lists the files the server must delete
	// because the namespace already knows them; everything else is
	// absorbed into the tree. Registering the same server twice is an
	// IllegalState error.
	Register(ctx context.Context, client StorageStub, command CommandStub, files []fspath.Path) ([]fspath.Path, error)
}

// Storage is a storage server's client-facing data plane.
type Storage interface {
	// Size returns the length in bytes of a file.
	Size(ctx context.Context, path fspath.Path) (int64, error)

	// Read returns length bytes of the file starting at offset. The
	// requested range must lie entirely within the file.
	Read(ctx context.Context, path fspath.Path, offset int64, length int32) ([]byte, error)

	// Write stores data at offset, extending the file as needed.
	Write(ctx context.Context, path fspath.Path, offset int64, data []byte) error
}

// Command is a storage server's control plane, driven by the naming
// server only.
type Command interface {
	// Create makes an empty file, creating parent directories as needed.
	// It returns false if the path exists or is the root.
	Create(ctx context.Context, path fspath.Path) (bool, error)

	// Delete removes a file or directory subtree from local storage,
	// pruning directories left empty.
	Delete(ctx context.Context, path fspath.Path) (bool, error)

	// Copy fetches the file from the given source server and stores it
	// locally, replacing any previous contents.
	Copy(ctx context.Context, path fspath.Path, from StorageStub) (bool, error)
}
