package naming

import (
	"context"
	"sort"

	"golang.org/x/sync/semaphore"

	"github.com/marmos91/treedfs/pkg/fspath"
)

// rwLock is a readers/writer lock built from two FIFO semaphores: the
// resource semaphore held by the writer or by the group of readers, and an
// entry semaphore guarding the reader count. Waiters on either semaphore
// are served in arrival order.
type rwLock struct {
	resource *semaphore.Weighted
	entry    *semaphore.Weighted
	readers  int
}

func newRWLock() *rwLock {
	return &rwLock{
		resource: semaphore.NewWeighted(1),
		entry:    semaphore.NewWeighted(1),
	}
}

func (l *rwLock) lockShared(ctx context.Context) error {
	if err := l.entry.Acquire(ctx, 1); err != nil {
		return err
	}
	l.readers++
	if l.readers == 1 {
		if err := l.resource.Acquire(ctx, 1); err != nil {
			l.readers--
			l.entry.Release(1)
			return err
		}
	}
	l.entry.Release(1)
	return nil
}

func (l *rwLock) unlockShared() {
	l.entry.Acquire(context.Background(), 1)
	l.readers--
	if l.readers == 0 {
		l.resource.Release(1)
	}
	l.entry.Release(1)
}

func (l *rwLock) lockExclusive(ctx context.Context) error {
	return l.resource.Acquire(ctx, 1)
}

func (l *rwLock) unlockExclusive() {
	l.resource.Release(1)
}

// node is one entry of the directory tree. Directory nodes carry
// children; file nodes carry the replica set and the replication
// counters.
type node struct {
	name string
	dir  bool
	lock *rwLock

	children map[string]*node

	// File state. replicas[0] is the server the file was first seen on,
	// or the surviving replica after an invalidating write, and is the
	// source for every copy; recent is the server most recently handed
	// to a client.
	replicas []*storageRecord
	recent   *storageRecord
	requests int
	coarse   int
	rr       int
}

func newDirNode(name string) *node {
	return &node{
		name:     name,
		dir:      true,
		lock:     newRWLock(),
		children: make(map[string]*node),
	}
}

func newFileNode(name string, host *storageRecord) *node {
	return &node{
		name:     name,
		lock:     newRWLock(),
		replicas: []*storageRecord{host},
		recent:   host,
	}
}

// hosts reports whether rec already holds a replica of the file.
func (n *node) hosts(rec *storageRecord) bool {
	for _, r := range n.replicas {
		if r == rec {
			return true
		}
	}
	return false
}

func (n *node) childNames() []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolve walks the tree from the root along path. It returns the chain
// of nodes from the root to the target inclusive, or false when any
// component is missing or crosses a file. Callers hold the tree mutex.
func resolve(root *node, path fspath.Path) ([]*node, bool) {
	chain := make([]*node, 0, path.Depth()+1)
	chain = append(chain, root)

	current := root
	for _, comp := range path.Components() {
		if !current.dir {
			return nil, false
		}
		next, ok := current.children[comp]
		if !ok {
			return nil, false
		}
		chain = append(chain, next)
		current = next
	}
	return chain, true
}
