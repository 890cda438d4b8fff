package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := GetRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestRegistryInitOnce(t *testing.T) {
	InitRegistry()
	first := GetRegistry()
	require.NotNil(t, first)
	assert.True(t, IsEnabled())

	InitRegistry()
	assert.Same(t, first, GetRegistry())
}

func TestRPCMetricsRecord(t *testing.T) {
	InitRegistry()
	m := NewRPCMetrics("test")

	m.RecordCall("lock", 5*time.Millisecond, nil)
	m.RecordCall("lock", time.Millisecond, errors.New("boom"))

	names := gatheredNames(t)
	assert.True(t, names["treedfs_rpc_calls_total"])
	assert.True(t, names["treedfs_rpc_call_duration_seconds"])
}

func TestNamingMetricsRecord(t *testing.T) {
	InitRegistry()
	m := NewNamingMetrics()

	m.RecordLock(true)
	m.RecordLock(false)
	m.RecordReplication()
	m.RecordInvalidation(2)

	names := gatheredNames(t)
	assert.True(t, names["treedfs_naming_lock_admissions_total"])
	assert.True(t, names["treedfs_naming_replications_total"])
	assert.True(t, names["treedfs_naming_invalidation_deletes_total"])
}

func TestStorageMetricsRecord(t *testing.T) {
	InitRegistry()
	m := NewStorageMetrics()

	m.RecordOp("read", nil)
	m.RecordOp("write", errors.New("disk"))

	names := gatheredNames(t)
	assert.True(t, names["treedfs_storage_ops_total"])
}

func TestNoopImplementations(t *testing.T) {
	// The no-op variants must absorb calls without a registry.
	noopRPCMetrics{}.RecordCall("x", time.Second, nil)
	noopNamingMetrics{}.RecordLock(true)
	noopNamingMetrics{}.RecordReplication()
	noopNamingMetrics{}.RecordInvalidation(1)
	noopStorageMetrics{}.RecordOp("x", nil)
}

func TestServerEndpoints(t *testing.T) {
	InitRegistry()
	s := NewServer("127.0.0.1:0")

	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/metrics")

	rec = httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
