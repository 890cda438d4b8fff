package naming

import (
	"context"

	"github.com/marmos91/treedfs/internal/logger"
	"github.com/marmos91/treedfs/pkg/dfs"
	"github.com/marmos91/treedfs/pkg/fspath"
)

// copyPlan is the replication work decided while a shared lock is being
// granted. The copies themselves run after admission is released, under
// the granted lock.
type copyPlan struct {
	source  dfs.StorageStub
	targets []*storageRecord
}

// Lock implements dfs.Service. The target's proper ancestors are taken
// shared from the root down, then the target itself in the requested
// mode. Requests pass a FIFO admission gate held until the target is
// acquired, so a request blocked on a busy node keeps every later
// arrival queued behind it regardless of mode.
func (s *Server) Lock(ctx context.Context, path fspath.Path, exclusive bool) error {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return err
	}

	s.mu.Lock()
	chain, ok := resolve(s.root, path)
	s.mu.Unlock()
	if !ok {
		s.gate.Release(1)
		return dfs.NotFound(path)
	}

	leaf := chain[len(chain)-1]
	ancestors := chain[:len(chain)-1]

	for i, anc := range ancestors {
		if err := anc.lock.lockShared(ctx); err != nil {
			unlockShared(ancestors[:i])
			s.gate.Release(1)
			return err
		}
	}

	var err error
	if exclusive {
		err = leaf.lock.lockExclusive(ctx)
	} else {
		err = leaf.lock.lockShared(ctx)
	}
	if err != nil {
		unlockShared(ancestors)
		s.gate.Release(1)
		return err
	}

	var plan *copyPlan
	if !exclusive && !leaf.dir {
		plan = s.planReplication(leaf)
	}

	s.gate.Release(1)

	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordLock(exclusive)
	}

	if plan != nil {
		s.replicate(ctx, path, leaf, plan)
	}
	return nil
}

// planReplication accounts one read of a file and decides which servers
// should receive new copies. The coarse counter refreshes only at
// multiples of ReplicaGranularity, so the desired replica count moves in
// steps rather than per request.
func (s *Server) planReplication(leaf *node) *copyPlan {
	s.mu.Lock()
	defer s.mu.Unlock()

	leaf.requests++
	if leaf.requests%ReplicaGranularity == 0 {
		leaf.coarse = leaf.requests
	}

	desired := int(Alpha * float64(leaf.coarse))
	if desired > ReplicaUpperBound {
		desired = ReplicaUpperBound
	}
	if desired <= len(leaf.replicas) {
		return nil
	}

	plan := &copyPlan{source: leaf.replicas[0].client}
	need := desired - len(leaf.replicas)
	for _, rec := range s.registry {
		if need == 0 {
			break
		}
		if leaf.hosts(rec) {
			continue
		}
		plan.targets = append(plan.targets, rec)
		need--
	}
	if len(plan.targets) == 0 {
		return nil
	}
	return plan
}

// replicate pushes the planned copies while the caller's shared lock is
// held. Failures are logged and leave the replica set unchanged; the
// lock grant itself already succeeded.
func (s *Server) replicate(ctx context.Context, path fspath.Path, leaf *node, plan *copyPlan) {
	for _, rec := range plan.targets {
		ok, err := rec.command.Copy(ctx, path, plan.source)
		if err != nil || !ok {
			logger.Warn("naming: replicate %s to %s: ok=%v err=%v", path, rec.client.Addr, ok, err)
			continue
		}

		s.mu.Lock()
		if !leaf.hosts(rec) && len(leaf.replicas) < ReplicaUpperBound {
			leaf.replicas = append(leaf.replicas, rec)
		}
		s.mu.Unlock()

		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordReplication()
		}
		logger.Debug("naming: replicated %s to %s", path, rec.client.Addr)
	}
}

// Unlock implements dfs.Service. The target is released first, then its
// ancestors from the deepest up. Releasing an exclusive hold on a file
// first invalidates every replica except the one a client most recently
// read, so stale copies never become visible once the write is.
func (s *Server) Unlock(ctx context.Context, path fspath.Path, exclusive bool) error {
	s.mu.Lock()
	chain, ok := resolve(s.root, path)
	s.mu.Unlock()
	if !ok {
		return dfs.InvalidArgumentAt(path, "cannot unlock unknown path")
	}

	leaf := chain[len(chain)-1]
	if exclusive {
		if !leaf.dir {
			s.invalidate(ctx, path, leaf)
		}
		leaf.lock.unlockExclusive()
	} else {
		leaf.lock.unlockShared()
	}

	unlockShared(chain[:len(chain)-1])
	return nil
}

func unlockShared(nodes []*node) {
	for i := len(nodes) - 1; i >= 0; i-- {
		nodes[i].lock.unlockShared()
	}
}

// invalidate shrinks a file's replica set to the copy clients were most
// recently directed to, deleting the rest before the exclusive hold is
// released.
func (s *Server) invalidate(ctx context.Context, path fspath.Path, leaf *node) {
	s.mu.Lock()
	if len(leaf.replicas) <= 1 {
		s.mu.Unlock()
		return
	}

	keep := leaf.recent
	if keep == nil || !leaf.hosts(keep) {
		keep = leaf.replicas[0]
	}

	stale := make([]*storageRecord, 0, len(leaf.replicas)-1)
	for _, rec := range leaf.replicas {
		if rec != keep {
			stale = append(stale, rec)
		}
	}
	leaf.replicas = []*storageRecord{keep}
	leaf.recent = keep
	s.mu.Unlock()

	for _, rec := range stale {
		if ok, err := rec.command.Delete(ctx, path); err != nil || !ok {
			logger.Warn("naming: invalidate %s on %s: ok=%v err=%v", path, rec.client.Addr, ok, err)
		}
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordInvalidation(len(stale))
	}
}
