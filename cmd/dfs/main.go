// Command dfs is a thin TreeDFS client. Every operation brackets its
// naming-server calls with the locking protocol: shared locks for reads,
// an exclusive lock on the parent for namespace changes and on the file
// itself for data writes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/marmos91/treedfs/pkg/dfs"
	"github.com/marmos91/treedfs/pkg/fspath"
)

const usage = `Usage: dfs [-naming host:port] <command> [args]

Commands:
  ls <path>            list a directory
  stat <path>          show type and size of an entry
  mkdir <path>         create a directory
  touch <path>         create an empty file
  rm <path>            delete a file or directory
  cat <path>           print a file to stdout
  put <local> <path>   upload a local file
  cp <src> <dst>       copy a file inside the filesystem
`

const callTimeout = 30 * time.Second

func main() {
	namingAddr := flag.String("naming", "127.0.0.1:8080", "Naming server service address")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}

	svc := dfs.NewServiceStub(*namingAddr)
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	if err := run(ctx, svc, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dfs: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, svc dfs.ServiceStub, command string, args []string) error {
	switch command {
	case "ls":
		return withPath(args, func(p fspath.Path) error { return ls(ctx, svc, p) })
	case "stat":
		return withPath(args, func(p fspath.Path) error { return stat(ctx, svc, p) })
	case "mkdir":
		return withPath(args, func(p fspath.Path) error { return mkdir(ctx, svc, p) })
	case "touch":
		return withPath(args, func(p fspath.Path) error { return touch(ctx, svc, p) })
	case "rm":
		return withPath(args, func(p fspath.Path) error { return rm(ctx, svc, p) })
	case "cat":
		return withPath(args, func(p fspath.Path) error { return cat(ctx, svc, p) })
	case "put":
		if len(args) != 2 {
			return fmt.Errorf("put needs a local file and a remote path")
		}
		remote, err := fspath.Parse(args[1])
		if err != nil {
			return err
		}
		return put(ctx, svc, args[0], remote)
	case "cp":
		if len(args) != 2 {
			return fmt.Errorf("cp needs a source and a destination path")
		}
		src, err := fspath.Parse(args[0])
		if err != nil {
			return err
		}
		dst, err := fspath.Parse(args[1])
		if err != nil {
			return err
		}
		return cp(ctx, svc, src, dst)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func withPath(args []string, fn func(fspath.Path) error) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one path argument")
	}
	p, err := fspath.Parse(args[0])
	if err != nil {
		return err
	}
	return fn(p)
}

// locked runs fn while path is held in the given mode, releasing the
// lock on every outcome.
func locked(ctx context.Context, svc dfs.ServiceStub, path fspath.Path, exclusive bool, fn func() error) error {
	if err := svc.Lock(ctx, path, exclusive); err != nil {
		return err
	}
	defer svc.Unlock(ctx, path, exclusive)
	return fn()
}

func ls(ctx context.Context, svc dfs.ServiceStub, path fspath.Path) error {
	return locked(ctx, svc, path, false, func() error {
		entries, err := svc.List(ctx, path)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			fmt.Println(entry)
		}
		return nil
	})
}

func stat(ctx context.Context, svc dfs.ServiceStub, path fspath.Path) error {
	return locked(ctx, svc, path, false, func() error {
		isDir, err := svc.IsDirectory(ctx, path)
		if err != nil {
			return err
		}
		if isDir {
			fmt.Printf("%s: directory\n", path)
			return nil
		}

		store, err := svc.GetStorage(ctx, path)
		if err != nil {
			return err
		}
		size, err := store.Size(ctx, path)
		if err != nil {
			return err
		}
		fmt.Printf("%s: file, %d bytes on %s\n", path, size, store.Addr)
		return nil
	})
}

func mkdir(ctx context.Context, svc dfs.ServiceStub, path fspath.Path) error {
	return locked(ctx, svc, path.Parent(), true, func() error {
		ok, err := svc.CreateDirectory(ctx, path)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s already exists", path)
		}
		return nil
	})
}

func touch(ctx context.Context, svc dfs.ServiceStub, path fspath.Path) error {
	return locked(ctx, svc, path.Parent(), true, func() error {
		ok, err := svc.CreateFile(ctx, path)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s already exists", path)
		}
		return nil
	})
}

func rm(ctx context.Context, svc dfs.ServiceStub, path fspath.Path) error {
	return locked(ctx, svc, path.Parent(), true, func() error {
		ok, err := svc.Delete(ctx, path)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("could not delete %s", path)
		}
		return nil
	})
}

func cat(ctx context.Context, svc dfs.ServiceStub, path fspath.Path) error {
	data, err := fetch(ctx, svc, path)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

// fetch reads a whole file under a shared lock.
func fetch(ctx context.Context, svc dfs.ServiceStub, path fspath.Path) ([]byte, error) {
	var data []byte
	err := locked(ctx, svc, path, false, func() error {
		store, err := svc.GetStorage(ctx, path)
		if err != nil {
			return err
		}
		size, err := store.Size(ctx, path)
		if err != nil {
			return err
		}

		data = make([]byte, 0, size)
		for offset := int64(0); offset < size; {
			length := size - offset
			if length > 1<<20 {
				length = 1 << 20
			}
			chunk, err := store.Read(ctx, path, offset, int32(length))
			if err != nil {
				return err
			}
			data = append(data, chunk...)
			offset += int64(len(chunk))
		}
		return nil
	})
	return data, err
}

// store creates path and writes data into it.
func store(ctx context.Context, svc dfs.ServiceStub, path fspath.Path, data []byte) error {
	if err := touch(ctx, svc, path); err != nil {
		return err
	}
	return locked(ctx, svc, path, true, func() error {
		storage, err := svc.GetStorage(ctx, path)
		if err != nil {
			return err
		}
		return storage.Write(ctx, path, 0, data)
	})
}

func put(ctx context.Context, svc dfs.ServiceStub, local string, remote fspath.Path) error {
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	return store(ctx, svc, remote, data)
}

func cp(ctx context.Context, svc dfs.ServiceStub, src, dst fspath.Path) error {
	data, err := fetch(ctx, svc, src)
	if err != nil {
		return err
	}
	return store(ctx, svc, dst, data)
}
