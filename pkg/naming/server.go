// Package naming implements the naming server: the single authority over
// the directory tree, the hierarchical locking protocol, storage server
// membership and the replication policy.
package naming

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/marmos91/treedfs/internal/logger"
	"github.com/marmos91/treedfs/internal/ratelimiter"
	"github.com/marmos91/treedfs/pkg/dfs"
	"github.com/marmos91/treedfs/pkg/fspath"
	"github.com/marmos91/treedfs/pkg/rpc"
)

// Well-known ports. Storage servers and clients find the naming server
// here unless configured otherwise.
const (
	ServicePort      = 8080
	RegistrationPort = 8090
)

// Replication policy constants.
const (
	// ReplicaGranularity is the request-count interval at which the
	// coarse counter is refreshed.
	ReplicaGranularity = 20

	// Alpha scales the coarse request count into a desired replica
	// count.
	Alpha = 0.2

	// ReplicaUpperBound caps the replica set of any single file.
	ReplicaUpperBound = 3
)

// Metrics observes naming-server activity. Nil disables recording.
type Metrics interface {
	RecordLock(exclusive bool)
	RecordReplication()
	RecordInvalidation(deleted int)
}

// Options configures a naming server.
type Options struct {
	// ServiceAddr and RegistrationAddr are the skeleton listen
	// addresses. Empty selects the well-known ports on all interfaces.
	ServiceAddr      string
	RegistrationAddr string

	// ConnectCommand maps a registered command stub to the Command
	// implementation used for create, delete and copy requests. When
	// nil the stub itself is used.
	ConnectCommand func(dfs.CommandStub) dfs.Command

	Metrics Metrics

	// RPCMetrics observes the calls served by both skeletons.
	RPCMetrics rpc.Metrics

	// RateLimit caps the incoming connection rate across both
	// skeletons. Zero disables limiting.
	RateLimit uint
	RateBurst uint
}

// storageRecord is one registered storage server.
type storageRecord struct {
	id      uuid.UUID
	client  dfs.StorageStub
	command dfs.Command
	cmdStub dfs.CommandStub
}

// Server is the naming server. It implements dfs.Service and
// dfs.Registration.
type Server struct {
	opts Options

	// mu guards the tree structure, the registry and the per-file
	// counters. It is held only for short critical sections, never
	// across lock waits or storage calls.
	mu       sync.Mutex
	root     *node
	registry []*storageRecord
	createRR int

	// gate admits lock requests one at a time in arrival order. It is
	// held from admission until the requested node is acquired, so a
	// blocked request keeps later arrivals queued behind it.
	gate *semaphore.Weighted

	service      *rpc.Skeleton
	registration *rpc.Skeleton
	started      bool
}

var (
	_ dfs.Service      = (*Server)(nil)
	_ dfs.Registration = (*Server)(nil)
)

// New returns an unstarted naming server with an empty tree.
func New(opts Options) *Server {
	if opts.ServiceAddr == "" {
		opts.ServiceAddr = ":8080"
	}
	if opts.RegistrationAddr == "" {
		opts.RegistrationAddr = ":8090"
	}
	if opts.ConnectCommand == nil {
		opts.ConnectCommand = func(s dfs.CommandStub) dfs.Command { return s }
	}

	return &Server{
		opts: opts,
		root: newDirNode(""),
		gate: semaphore.NewWeighted(1),
	}
}

// Start binds the Service and Registration skeletons.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return dfs.IllegalState("naming server already started")
	}
	s.started = true
	s.mu.Unlock()

	service := rpc.NewSkeleton(s.opts.ServiceAddr, s.opts.RPCMetrics)
	dfs.BindService(service, s)
	registration := rpc.NewSkeleton(s.opts.RegistrationAddr, s.opts.RPCMetrics)
	dfs.BindRegistration(registration, s)

	if s.opts.RateLimit > 0 {
		limiter := ratelimiter.New(s.opts.RateLimit, s.opts.RateBurst)
		service.SetLimiter(limiter)
		registration.SetLimiter(limiter)
	}

	if err := service.Start(ctx); err != nil {
		s.markStopped()
		return err
	}
	if err := registration.Start(ctx); err != nil {
		service.Stop()
		s.markStopped()
		return err
	}

	s.service = service
	s.registration = registration
	logger.Info("naming server listening on %s (service) and %s (registration)",
		service.Addr(), registration.Addr())
	return nil
}

func (s *Server) markStopped() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
}

// ServiceAddr returns the bound service address. Valid after Start.
func (s *Server) ServiceAddr() string { return s.service.Addr() }

// RegistrationAddr returns the bound registration address. Valid after
// Start.
func (s *Server) RegistrationAddr() string { return s.registration.Addr() }

// Stop closes both listeners and waits for in-flight calls until ctx
// expires.
func (s *Server) Stop(ctx context.Context) error {
	s.markStopped()

	var firstErr error
	for _, sk := range []*rpc.Skeleton{s.service, s.registration} {
		if sk == nil {
			continue
		}
		if err := sk.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Register implements dfs.Registration. The returned paths are files the
// server must delete because the namespace already contains them; every
// other file is absorbed into the tree with the new server as its first
// replica.
func (s *Server) Register(ctx context.Context, client dfs.StorageStub, command dfs.CommandStub, files []fspath.Path) ([]fspath.Path, error) {
	if client.Zero() {
		return nil, dfs.NullArgument("client stub is empty")
	}
	if command.Zero() {
		return nil, dfs.NullArgument("command stub is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.registry {
		if rec.client.Stub == client.Stub {
			return nil, dfs.IllegalState("storage server " + client.String() + " already registered")
		}
	}

	rec := &storageRecord{
		id:      uuid.New(),
		client:  client,
		command: s.opts.ConnectCommand(command),
		cmdStub: command,
	}
	s.registry = append(s.registry, rec)

	var dupes []fspath.Path
	for _, file := range files {
		if file.IsRoot() {
			continue
		}
		if !s.absorb(file, rec) {
			dupes = append(dupes, file)
		}
	}

	logger.Info("registered storage server %s (%s): %d files, %d duplicates",
		client.Addr, rec.id, len(files)-len(dupes), len(dupes))
	return dupes, nil
}

// absorb inserts file into the tree hosted by rec, creating missing
// ancestor directories. It returns false when the path or any of its
// ancestors is already taken in a conflicting way, in which case the
// server's copy is redundant. Callers hold s.mu.
func (s *Server) absorb(file fspath.Path, rec *storageRecord) bool {
	current := s.root
	comps := file.Components()
	for _, comp := range comps[:len(comps)-1] {
		next, ok := current.children[comp]
		if !ok {
			next = newDirNode(comp)
			current.children[comp] = next
		}
		if !next.dir {
			return false
		}
		current = next
	}

	name := comps[len(comps)-1]
	if _, ok := current.children[name]; ok {
		return false
	}
	current.children[name] = newFileNode(name, rec)
	return true
}
