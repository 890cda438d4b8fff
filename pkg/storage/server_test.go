package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/treedfs/pkg/dfs"
	"github.com/marmos91/treedfs/pkg/fspath"
)

// acceptAll registers every offered file without reporting duplicates.
type acceptAll struct {
	client  dfs.StorageStub
	command dfs.CommandStub
	files   []fspath.Path
}

func (r *acceptAll) Register(ctx context.Context, client dfs.StorageStub, command dfs.CommandStub, files []fspath.Path) ([]fspath.Path, error) {
	r.client = client
	r.command = command
	r.files = files
	return nil, nil
}

// rejectSome reports a fixed set of paths as duplicates.
type rejectSome struct {
	dupes []fspath.Path
}

func (r *rejectSome) Register(ctx context.Context, client dfs.StorageStub, command dfs.CommandStub, files []fspath.Path) ([]fspath.Path, error) {
	return r.dupes, nil
}

func newServer(t *testing.T, reg dfs.Registration) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	srv, err := New(dir, Options{Registration: reg})
	require.NoError(t, err)
	return srv, dir
}

func startServer(t *testing.T, reg dfs.Registration) (*Server, string) {
	t.Helper()
	srv, dir := newServer(t, reg)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop(context.Background()) })
	return srv, dir
}

func TestNewRejectsBadRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(file, Options{})
	assert.Error(t, err)
}

func TestStartRegistersExistingFiles(t *testing.T) {
	reg := &acceptAll{}
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "leaf"), []byte("y"), 0o644))

	srv, err := New(dir, Options{Registration: reg})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop(context.Background())

	got := make(map[string]bool)
	for _, p := range reg.files {
		got[p.String()] = true
	}
	assert.True(t, got["/top"])
	assert.True(t, got["/sub/leaf"])
	assert.Len(t, reg.files, 2)

	assert.False(t, reg.client.Zero())
	assert.False(t, reg.command.Zero())
	assert.Equal(t, srv.ClientAddr(), reg.client.Addr)
	assert.Equal(t, srv.CommandAddr(), reg.command.Addr)
}

func TestStartDeletesDuplicatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "deep", "dupe"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep"), []byte("y"), 0o644))

	reg := &rejectSome{dupes: []fspath.Path{fspath.MustParse("/sub/deep/dupe")}}
	srv, err := New(dir, Options{Registration: reg})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop(context.Background())

	_, err = os.Stat(filepath.Join(dir, "sub", "deep", "dupe"))
	assert.True(t, os.IsNotExist(err))
	// The directories the deletion emptied are gone too.
	_, err = os.Stat(filepath.Join(dir, "sub"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "keep"))
	assert.NoError(t, err)
}

func TestStartTwiceIsIllegalState(t *testing.T) {
	srv, _ := startServer(t, &acceptAll{})
	err := srv.Start(context.Background())
	assert.True(t, dfs.IsIllegalState(err))
}

func TestSizeReadWrite(t *testing.T) {
	ctx := context.Background()
	srv, dir := startServer(t, &acceptAll{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("hello world"), 0o644))

	p := fspath.MustParse("/f")

	n, err := srv.Size(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	data, err := srv.Read(ctx, p, 6, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), data)

	data, err = srv.Read(ctx, p, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, srv.Write(ctx, p, 6, []byte("there")))
	data, err = srv.Read(ctx, p, 0, 11)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello there"), data)

	// Writing past the end extends the file.
	require.NoError(t, srv.Write(ctx, p, 11, []byte("!")))
	n, err = srv.Size(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestReadWriteBounds(t *testing.T) {
	ctx := context.Background()
	srv, dir := startServer(t, &acceptAll{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("abc"), 0o644))

	p := fspath.MustParse("/f")

	_, err := srv.Read(ctx, p, -1, 1)
	assert.True(t, dfs.IsOutOfBounds(err))
	_, err = srv.Read(ctx, p, 0, -1)
	assert.True(t, dfs.IsOutOfBounds(err))
	_, err = srv.Read(ctx, p, 2, 2)
	assert.True(t, dfs.IsOutOfBounds(err))

	err = srv.Write(ctx, p, -1, []byte("x"))
	assert.True(t, dfs.IsOutOfBounds(err))
}

func TestMissingAndDirectoryAreNotFound(t *testing.T) {
	ctx := context.Background()
	srv, dir := startServer(t, &acceptAll{})
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "d"), 0o755))

	for _, p := range []fspath.Path{fspath.MustParse("/nope"), fspath.MustParse("/d")} {
		_, err := srv.Size(ctx, p)
		assert.True(t, dfs.IsNotFound(err), "size %s", p)
		_, err = srv.Read(ctx, p, 0, 1)
		assert.True(t, dfs.IsNotFound(err), "read %s", p)
		err = srv.Write(ctx, p, 0, []byte("x"))
		assert.True(t, dfs.IsNotFound(err), "write %s", p)
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	srv, dir := startServer(t, &acceptAll{})

	ok, err := srv.Create(ctx, fspath.MustParse("/a/b/c"))
	require.NoError(t, err)
	assert.True(t, ok)
	info, err := os.Stat(filepath.Join(dir, "a", "b", "c"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	// Existing paths and the root refuse without error.
	ok, err = srv.Create(ctx, fspath.MustParse("/a/b/c"))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = srv.Create(ctx, fspath.Root())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeletePrunesEmptyParents(t *testing.T) {
	ctx := context.Background()
	srv, dir := startServer(t, &acceptAll{})
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "leaf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "sibling"), []byte("y"), 0o644))

	ok, err := srv.Delete(ctx, fspath.MustParse("/a/b/leaf"))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = os.Stat(filepath.Join(dir, "a", "b"))
	assert.True(t, os.IsNotExist(err))
	// /a still holds the sibling, so it survives.
	_, err = os.Stat(filepath.Join(dir, "a", "sibling"))
	assert.NoError(t, err)

	ok, err = srv.Delete(ctx, fspath.MustParse("/missing"))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = srv.Delete(ctx, fspath.Root())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteDirectorySubtree(t *testing.T) {
	ctx := context.Background()
	srv, dir := startServer(t, &acceptAll{})
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "d", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d", "sub", "f"), []byte("x"), 0o644))

	ok, err := srv.Delete(ctx, fspath.MustParse("/d"))
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = os.Stat(filepath.Join(dir, "d"))
	assert.True(t, os.IsNotExist(err))
}

// memSource serves Copy fetches from an in-memory map.
type memSource struct {
	data map[string][]byte
}

func (m *memSource) Size(ctx context.Context, path fspath.Path) (int64, error) {
	b, ok := m.data[path.String()]
	if !ok {
		return 0, dfs.NotFound(path)
	}
	return int64(len(b)), nil
}

func (m *memSource) Read(ctx context.Context, path fspath.Path, offset int64, length int32) ([]byte, error) {
	b, ok := m.data[path.String()]
	if !ok {
		return nil, dfs.NotFound(path)
	}
	if offset < 0 || length < 0 || offset+int64(length) > int64(len(b)) {
		return nil, dfs.OutOfBounds(path, "range")
	}
	return b[offset : offset+int64(length)], nil
}

func (m *memSource) Write(ctx context.Context, path fspath.Path, offset int64, data []byte) error {
	return dfs.IllegalState("read-only source")
}

func startCopyServer(t *testing.T, source dfs.Storage) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	srv, err := New(dir, Options{
		Registration: &acceptAll{},
		Connect:      func(dfs.StorageStub) dfs.Storage { return source },
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop(context.Background()) })
	return srv, dir
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	source := &memSource{data: map[string][]byte{"/a/f": []byte("replicated bytes")}}
	srv, dir := startCopyServer(t, source)

	ok, err := srv.Copy(ctx, fspath.MustParse("/a/f"), dfs.NewStorageStub("127.0.0.1:7000"))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := os.ReadFile(filepath.Join(dir, "a", "f"))
	require.NoError(t, err)
	assert.Equal(t, []byte("replicated bytes"), got)
}

func TestCopyReplacesExisting(t *testing.T) {
	ctx := context.Background()
	source := &memSource{data: map[string][]byte{"/f": []byte("new")}}
	srv, dir := startCopyServer(t, source)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("old longer contents"), 0o644))

	ok, err := srv.Copy(ctx, fspath.MustParse("/f"), dfs.NewStorageStub("127.0.0.1:7000"))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := os.ReadFile(filepath.Join(dir, "f"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestCopyClearsFileSquattingOnAncestor(t *testing.T) {
	ctx := context.Background()
	source := &memSource{data: map[string][]byte{"/a/b": []byte("data")}}
	srv, dir := startCopyServer(t, source)
	// A plain file where the parent directory must go.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("in the way"), 0o644))

	ok, err := srv.Copy(ctx, fspath.MustParse("/a/b"), dfs.NewStorageStub("127.0.0.1:7000"))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := os.ReadFile(filepath.Join(dir, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)
}

func TestCopyErrors(t *testing.T) {
	ctx := context.Background()
	source := &memSource{data: map[string][]byte{}}
	srv, _ := startCopyServer(t, source)

	_, err := srv.Copy(ctx, fspath.MustParse("/f"), dfs.StorageStub{})
	assert.True(t, dfs.IsNullArgument(err))

	_, err = srv.Copy(ctx, fspath.MustParse("/f"), dfs.NewStorageStub("127.0.0.1:7000"))
	assert.True(t, dfs.IsNotFound(err))
}

func TestServedOverRPC(t *testing.T) {
	// The skeletons bound by Start serve the same semantics remotely.
	ctx := context.Background()
	srv, dir := startServer(t, &acceptAll{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("remote"), 0o644))

	client := dfs.NewStorageStub(srv.ClientAddr())
	n, err := client.Size(ctx, fspath.MustParse("/f"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	command := dfs.NewCommandStub(srv.CommandAddr())
	ok, err := command.Create(ctx, fspath.MustParse("/g"))
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = os.Stat(filepath.Join(dir, "g"))
	assert.NoError(t, err)
}
