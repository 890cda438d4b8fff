package naming

import (
	"context"

	"github.com/marmos91/treedfs/internal/logger"
	"github.com/marmos91/treedfs/pkg/dfs"
	"github.com/marmos91/treedfs/pkg/fspath"
)

// IsDirectory implements dfs.Service.
func (s *Server) IsDirectory(ctx context.Context, path fspath.Path) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain, ok := resolve(s.root, path)
	if !ok {
		return false, dfs.NotFound(path)
	}
	return chain[len(chain)-1].dir, nil
}

// List implements dfs.Service.
func (s *Server) List(ctx context.Context, path fspath.Path) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain, ok := resolve(s.root, path)
	if !ok || !chain[len(chain)-1].dir {
		return nil, dfs.NotFound(path)
	}
	return chain[len(chain)-1].childNames(), nil
}

// CreateDirectory implements dfs.Service.
func (s *Server) CreateDirectory(ctx context.Context, path fspath.Path) (bool, error) {
	if path.IsRoot() {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := s.parentDir(path)
	if err != nil {
		return false, err
	}
	if _, ok := parent.children[path.Last()]; ok {
		return false, nil
	}
	parent.children[path.Last()] = newDirNode(path.Last())
	return true, nil
}

// CreateFile implements dfs.Service. The file bytes land on one
// registered storage server chosen round-robin; the node enters the tree
// only once that server confirms the create.
func (s *Server) CreateFile(ctx context.Context, path fspath.Path) (bool, error) {
	if path.IsRoot() {
		return false, nil
	}

	s.mu.Lock()
	parent, err := s.parentDir(path)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if _, ok := parent.children[path.Last()]; ok {
		s.mu.Unlock()
		return false, nil
	}
	if len(s.registry) == 0 {
		s.mu.Unlock()
		return false, dfs.IllegalState("no storage server registered")
	}
	rec := s.registry[s.createRR%len(s.registry)]
	s.createRR++
	s.mu.Unlock()

	ok, err := rec.command.Create(ctx, path)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The tree may have changed while the storage call was in flight.
	parent, err = s.parentDir(path)
	if err != nil {
		return false, err
	}
	if _, exists := parent.children[path.Last()]; exists {
		return false, nil
	}
	parent.children[path.Last()] = newFileNode(path.Last(), rec)
	return true, nil
}

// parentDir resolves the parent of path and requires it to be a
// directory. Callers hold s.mu.
func (s *Server) parentDir(path fspath.Path) (*node, error) {
	chain, ok := resolve(s.root, path.Parent())
	if !ok || !chain[len(chain)-1].dir {
		return nil, dfs.NotFound(path)
	}
	return chain[len(chain)-1], nil
}

// Delete implements dfs.Service. The node leaves the namespace first;
// storage deletions follow, and any of them failing turns the result
// false even though the namespace entry is gone.
func (s *Server) Delete(ctx context.Context, path fspath.Path) (bool, error) {
	if path.IsRoot() {
		return false, nil
	}

	s.mu.Lock()
	chain, ok := resolve(s.root, path)
	if !ok {
		s.mu.Unlock()
		return false, dfs.NotFound(path)
	}
	target := chain[len(chain)-1]
	parent := chain[len(chain)-2]
	delete(parent.children, path.Last())

	// Files live on their replica set; a directory subtree may have
	// files on any server, so its delete fans out to every one.
	var targets []*storageRecord
	if target.dir {
		targets = append(targets, s.registry...)
	} else {
		targets = append(targets, target.replicas...)
	}
	s.mu.Unlock()

	result := true
	for _, rec := range targets {
		ok, err := rec.command.Delete(ctx, path)
		if err != nil {
			logger.Warn("naming: delete %s on %s: %v", path, rec.client.Addr, err)
			result = false
		} else if !ok && !target.dir {
			result = false
		}
	}
	return result, nil
}

// GetStorage implements dfs.Service, rotating through the replica set so
// repeated readers spread across the servers hosting the file.
func (s *Server) GetStorage(ctx context.Context, path fspath.Path) (dfs.StorageStub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain, ok := resolve(s.root, path)
	if !ok || chain[len(chain)-1].dir {
		return dfs.StorageStub{}, dfs.NotFound(path)
	}

	n := chain[len(chain)-1]
	rec := n.replicas[n.rr%len(n.replicas)]
	n.rr++
	n.recent = rec
	return rec.client, nil
}
