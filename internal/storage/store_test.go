package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanward/scanward/internal/config"
	"github.com/scanward/scanward/internal/errors"
)

func newTestStore(t *testing.T, maxHistory int) *Store {
	t.Helper()
	store, err := New(config.StorageConfig{
		ResultsDir:      t.TempDir(),
		MaxHistoryFiles: maxHistory,
	}, nil)
	require.NoError(t, err)
	return store
}

// setClock pins the store clock and advances it by a second per write so
// generated names never collide.
func setClock(store *Store, start time.Time) {
	current := start
	store.now = func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestNewCreatesDirectories(t *testing.T) {
	base := filepath.Join(t.TempDir(), "results")
	store, err := New(config.StorageConfig{ResultsDir: base, MaxHistoryFiles: 5}, nil)
	require.NoError(t, err)

	assert.Equal(t, base, store.Dir())
	assert.DirExists(t, base)
	assert.DirExists(t, filepath.Join(base, "topology-history"))
}

func TestWriteScan(t *testing.T) {
	store := newTestStore(t, 5)
	setClock(store, time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))

	ref, err := store.WriteScan([]byte("<scanresult/>"))
	require.NoError(t, err)

	assert.Equal(t, "scan_20260828T120001Z.xml", ref.Name)
	assert.FileExists(t, ref.Path)

	data, err := store.Read(ref)
	require.NoError(t, err)
	assert.Equal(t, "<scanresult/>", string(data))
}

func TestListScansNewestFirst(t *testing.T) {
	store := newTestStore(t, 5)
	setClock(store, time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))

	_, err := store.WriteScan([]byte("first"))
	require.NoError(t, err)
	_, err = store.WriteScan([]byte("second"))
	require.NoError(t, err)
	third, err := store.WriteScan([]byte("third"))
	require.NoError(t, err)

	refs, err := store.ListScans()
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, third.Name, refs[0].Name, "newest artifact must come first")
	assert.True(t, refs[0].Name > refs[1].Name)
	assert.True(t, refs[1].Name > refs[2].Name)

	count, err := store.ScanCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestLatestScan(t *testing.T) {
	store := newTestStore(t, 5)

	_, ok, err := store.LatestScan()
	require.NoError(t, err)
	assert.False(t, ok, "empty store has no latest scan")

	setClock(store, time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))
	_, err = store.WriteScan([]byte("a"))
	require.NoError(t, err)
	want, err := store.WriteScan([]byte("b"))
	require.NoError(t, err)

	got, ok, err := store.LatestScan()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Name, got.Name)
}

func TestWriteTopology(t *testing.T) {
	store := newTestStore(t, 5)
	setClock(store, time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))

	assert.False(t, store.HasTopology())

	_, err := store.WriteTopology([]byte(`{"nodes":[]}`))
	require.NoError(t, err)

	assert.True(t, store.HasTopology())
	data, err := store.ReadTopology()
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[]}`, string(data))

	history, err := store.ListTopologyHistory()
	require.NoError(t, err)
	require.Len(t, history, 1)

	// A second write replaces the current document and adds a snapshot.
	_, err = store.WriteTopology([]byte(`{"nodes":[{"id":"gw"}]}`))
	require.NoError(t, err)

	data, err = store.ReadTopology()
	require.NoError(t, err)
	assert.Contains(t, string(data), "gw")

	history, err = store.ListTopologyHistory()
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestTopologyHistoryPruned(t *testing.T) {
	store := newTestStore(t, 3)
	setClock(store, time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 6; i++ {
		_, err := store.WriteTopology([]byte(`{}`))
		require.NoError(t, err)
	}

	history, err := store.ListTopologyHistory()
	require.NoError(t, err)
	assert.Len(t, history, 3, "history must be pruned to the retention limit")

	// Newest snapshots survive.
	assert.Equal(t, "topology_20260828T120006Z.json", history[0].Name)
}

func TestPruneDisabledWhenZero(t *testing.T) {
	store := newTestStore(t, 0)
	setClock(store, time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 4; i++ {
		_, err := store.WriteTopology([]byte(`{}`))
		require.NoError(t, err)
	}

	history, err := store.ListTopologyHistory()
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestReadMissing(t *testing.T) {
	store := newTestStore(t, 5)

	_, err := store.ReadTopology()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	_, err = store.Read(Ref{Name: "scan_x.xml", Path: filepath.Join(store.Dir(), "scan_x.xml")})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestWriteScanFailure(t *testing.T) {
	store := newTestStore(t, 5)
	// Remove the directory out from under the store.
	require.NoError(t, os.RemoveAll(store.Dir()))

	_, err := store.WriteScan([]byte("data"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStorageWriteFailed))
}

func TestRefTimestamp(t *testing.T) {
	ref := Ref{Name: "scan_20260828T120000Z.xml"}
	assert.Equal(t, time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC), ref.Timestamp())

	fallback := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	odd := Ref{Name: "scan_garbage.xml", ModTime: fallback}
	assert.Equal(t, fallback, odd.Timestamp())
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("scan_20260828T120000Z.xml"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("../etc/passwd"))
	assert.Error(t, ValidateName("a/b.xml"))
	assert.Error(t, ValidateName(`a\b.xml`))
}
