// Package storage implements the storage server: a flat store of file
// bytes below a local root directory, exposed through the Storage data
// plane for clients and the Command control plane for the naming server.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/marmos91/treedfs/internal/logger"
	"github.com/marmos91/treedfs/internal/ratelimiter"
	"github.com/marmos91/treedfs/pkg/dfs"
	"github.com/marmos91/treedfs/pkg/fspath"
	"github.com/marmos91/treedfs/pkg/rpc"
)

// copyChunk is the largest read issued against the source server while
// copying a file.
const copyChunk = 4 << 20

// Options configures a Server beyond its storage root.
type Options struct {
	// ClientAddr and CommandAddr are the listen addresses for the two
	// skeletons. Empty means an ephemeral loopback port.
	ClientAddr  string
	CommandAddr string

	// AdvertiseHost is the host name placed in the stubs sent to the
	// naming server. Defaults to 127.0.0.1.
	AdvertiseHost string

	// Registration overrides the naming server connection. When nil the
	// server dials NamingAddr through a RegistrationStub.
	Registration dfs.Registration
	NamingAddr   string

	// Connect maps a source stub received by Copy to a Storage
	// implementation. When nil the stub itself is used.
	Connect func(dfs.StorageStub) dfs.Storage

	// Metrics observes data-plane operations. Nil disables recording.
	Metrics Metrics

	// RPCMetrics observes the calls served by both skeletons.
	RPCMetrics rpc.Metrics

	// RateLimit caps the incoming connection rate across both
	// skeletons. Zero disables limiting.
	RateLimit uint
	RateBurst uint
}

// Metrics counts storage data-plane operations by name.
type Metrics interface {
	RecordOp(op string, err error)
}

// Server serves file bytes below a local root directory.
type Server struct {
	root string
	opts Options

	client  *rpc.Skeleton
	command *rpc.Skeleton

	// mu serializes the data plane. Copy holds it only while clearing
	// and creating its target, then transfers through the public Write,
	// so a long transfer does not starve reads.
	mu sync.Mutex

	startMu sync.Mutex
	started bool
}

// New returns a server rooted at dir. The directory must exist.
func New(dir string, opts Options) (*Server, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("storage root %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", dir)
	}

	if opts.AdvertiseHost == "" {
		opts.AdvertiseHost = "127.0.0.1"
	}
	if opts.ClientAddr == "" {
		opts.ClientAddr = "127.0.0.1:0"
	}
	if opts.CommandAddr == "" {
		opts.CommandAddr = "127.0.0.1:0"
	}
	if opts.Connect == nil {
		opts.Connect = func(s dfs.StorageStub) dfs.Storage { return s }
	}

	return &Server{root: dir, opts: opts}, nil
}

// Start binds both skeletons, enumerates the files already under the
// root, registers with the naming server and removes the files the
// naming server reports as duplicates.
func (s *Server) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return dfs.IllegalState("storage server already started")
	}

	client := rpc.NewSkeleton(s.opts.ClientAddr, s.opts.RPCMetrics)
	dfs.BindStorage(client, s)
	command := rpc.NewSkeleton(s.opts.CommandAddr, s.opts.RPCMetrics)
	dfs.BindCommand(command, s)

	if s.opts.RateLimit > 0 {
		limiter := ratelimiter.New(s.opts.RateLimit, s.opts.RateBurst)
		client.SetLimiter(limiter)
		command.SetLimiter(limiter)
	}

	if err := client.Start(ctx); err != nil {
		return err
	}
	if err := command.Start(ctx); err != nil {
		client.Stop()
		return err
	}
	s.client = client
	s.command = command

	clientStub := dfs.NewStorageStub(s.advertise(client))
	commandStub := dfs.NewCommandStub(s.advertise(command))

	files, err := fspath.List(s.root)
	if err != nil {
		s.stopSkeletons()
		return fmt.Errorf("enumerate %s: %w", s.root, err)
	}

	reg := s.opts.Registration
	if reg == nil {
		reg = dfs.NewRegistrationStub(s.opts.NamingAddr)
	}
	dupes, err := reg.Register(ctx, clientStub, commandStub, files)
	if err != nil {
		s.stopSkeletons()
		return fmt.Errorf("register with naming server: %w", err)
	}

	for _, p := range dupes {
		if err := os.Remove(p.Filename(s.root)); err != nil {
			logger.Warn("storage: remove duplicate %s: %v", p, err)
		}
	}
	s.pruneEmptyDirs()

	s.started = true
	logger.Info("storage server on %s serving %s (%d files, %d duplicates dropped)",
		clientStub.Addr, s.root, len(files)-len(dupes), len(dupes))
	return nil
}

func (s *Server) advertise(sk *rpc.Skeleton) string {
	return net.JoinHostPort(s.opts.AdvertiseHost, strconv.Itoa(sk.Port()))
}

// ClientAddr returns the advertised data-plane address. Valid after Start.
func (s *Server) ClientAddr() string { return s.advertise(s.client) }

// CommandAddr returns the advertised control-plane address. Valid after
// Start.
func (s *Server) CommandAddr() string { return s.advertise(s.command) }

func (s *Server) stopSkeletons() {
	if s.client != nil {
		s.client.Stop()
	}
	if s.command != nil {
		s.command.Stop()
	}
}

// Stop closes both listeners and waits for in-flight calls until ctx
// expires.
func (s *Server) Stop(ctx context.Context) error {
	s.startMu.Lock()
	s.started = false
	s.startMu.Unlock()

	var firstErr error
	for _, sk := range []*rpc.Skeleton{s.client, s.command} {
		if sk == nil {
			continue
		}
		if err := sk.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// pruneEmptyDirs removes directories below the root left empty after
// duplicate deletion, deepest first.
func (s *Server) pruneEmptyDirs() {
	var dirs []string
	filepath.WalkDir(s.root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && name != s.root {
			dirs = append(dirs, name)
		}
		return nil
	})

	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == 0 {
			os.Remove(dir)
		}
	}
}

func (s *Server) record(op string, err error) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordOp(op, err)
	}
}

// statFile resolves path to a regular file under the root.
func (s *Server) statFile(path fspath.Path) (string, os.FileInfo, error) {
	name := path.Filename(s.root)
	info, err := os.Stat(name)
	if err != nil || info.IsDir() {
		return "", nil, dfs.NotFound(path)
	}
	return name, info, nil
}

// Size implements dfs.Storage.
func (s *Server) Size(ctx context.Context, path fspath.Path) (n int64, err error) {
	defer func() { s.record("size", err) }()
	s.mu.Lock()
	defer s.mu.Unlock()

	_, info, err := s.statFile(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Read implements dfs.Storage. The requested range must lie entirely
// within the file.
func (s *Server) Read(ctx context.Context, path fspath.Path, offset int64, length int32) (data []byte, err error) {
	defer func() { s.record("read", err) }()
	s.mu.Lock()
	defer s.mu.Unlock()

	name, info, err := s.statFile(path)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset+int64(length) > info.Size() {
		return nil, dfs.OutOfBounds(path,
			fmt.Sprintf("read of %d bytes at %d beyond size %d", length, offset, info.Size()))
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, dfs.IO(path, err)
	}
	defer f.Close()

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, dfs.IO(path, err)
	}
	return buf, nil
}

// Write implements dfs.Storage, extending the file when the range ends
// past its current size.
func (s *Server) Write(ctx context.Context, path fspath.Path, offset int64, data []byte) (err error) {
	defer func() { s.record("write", err) }()
	s.mu.Lock()
	defer s.mu.Unlock()

	name, _, err := s.statFile(path)
	if err != nil {
		return err
	}
	if offset < 0 {
		return dfs.OutOfBounds(path, fmt.Sprintf("write at negative offset %d", offset))
	}

	f, err := os.OpenFile(name, os.O_WRONLY, 0)
	if err != nil {
		return dfs.IO(path, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(data, offset); err != nil {
		return dfs.IO(path, err)
	}
	return nil
}

// Create implements dfs.Command.
func (s *Server) Create(ctx context.Context, path fspath.Path) (ok bool, err error) {
	defer func() { s.record("create", err) }()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(path)
}

func (s *Server) createLocked(path fspath.Path) (bool, error) {
	if path.IsRoot() {
		return false, nil
	}

	name := path.Filename(s.root)
	if _, err := os.Stat(name); err == nil {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return false, nil
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return false, nil
	}
	f.Close()
	return true, nil
}

// Delete implements dfs.Command, pruning directories left empty by the
// removal.
func (s *Server) Delete(ctx context.Context, path fspath.Path) (ok bool, err error) {
	defer func() { s.record("delete", err) }()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(path)
}

func (s *Server) deleteLocked(path fspath.Path) (bool, error) {
	if path.IsRoot() {
		return false, nil
	}

	name := path.Filename(s.root)
	info, err := os.Stat(name)
	if err != nil {
		return false, nil
	}

	if info.IsDir() {
		if err := os.RemoveAll(name); err != nil {
			return false, nil
		}
	} else if err := os.Remove(name); err != nil {
		return false, nil
	}

	// Walk back up removing directories the deletion emptied.
	for parent := path.Parent(); !parent.IsRoot(); parent = parent.Parent() {
		dir := parent.Filename(s.root)
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return true, nil
}

// Copy implements dfs.Command. It replaces any local file at path with
// the contents held by the source server, fetched in bounded chunks.
// Copy composes Create and Write rather than holding the data-plane
// mutex across the network transfer.
func (s *Server) Copy(ctx context.Context, path fspath.Path, from dfs.StorageStub) (ok bool, err error) {
	defer func() { s.record("copy", err) }()

	if from.Zero() {
		return false, dfs.NullArgument("copy source stub is empty")
	}
	source := s.opts.Connect(from)

	size, err := source.Size(ctx, path)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	// Clear the target and anything squatting on its ancestor chain so
	// the subsequent create cannot fail on a stale entry.
	if _, err := os.Stat(path.Filename(s.root)); err == nil {
		s.deleteLocked(path)
	}
	for _, anc := range path.Ancestors() {
		if anc.IsRoot() {
			continue
		}
		if info, err := os.Stat(anc.Filename(s.root)); err == nil && !info.IsDir() {
			s.deleteLocked(anc)
		}
	}
	created, _ := s.createLocked(path)
	s.mu.Unlock()

	if !created {
		return false, dfs.IO(path, errors.New("cannot create copy target"))
	}

	for offset := int64(0); offset < size; {
		length := size - offset
		if length > copyChunk {
			length = copyChunk
		}
		chunk, err := source.Read(ctx, path, offset, int32(length))
		if err != nil {
			return false, err
		}
		if err := s.Write(ctx, path, offset, chunk); err != nil {
			return false, err
		}
		offset += int64(len(chunk))
	}
	return true, nil
}
