package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilyacartwright/iljicevs-ml/internal/ensemble"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreScoresRoundTrip(t *testing.T) {
	store := newTestStore(t)

	first := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	records := []ensemble.ScoreRecord{
		{CandidateID: "knn", Metric: "accuracy", Mean: 0.92, StdDev: 0.02, FoldScores: []float64{0.9, 0.94}},
		{CandidateID: "knn", Metric: "f1_macro", Mean: 0.9, StdDev: 0.03},
		{CandidateID: "nb", Metric: "accuracy", Mean: 0.85, StdDev: 0.04},
	}
	require.NoError(t, store.StoreScores(records, first))
	require.NoError(t, store.StoreScores([]ensemble.ScoreRecord{
		{CandidateID: "knn", Metric: "accuracy", Mean: 0.95},
	}, second))

	// Full range returns both runs for the candidate.
	entries, err := store.GetScores("knn", first.Add(-time.Hour), second.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// Range queries are inclusive and clip to the window.
	entries, err = store.GetScores("knn", first, first)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "knn", e.Record.CandidateID)
		assert.Equal(t, first, e.Timestamp)
	}

	// Another candidate's records are invisible.
	entries, err = store.GetScores("nb", first.Add(-time.Hour), second)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0.85, entries[0].Record.Mean)

	entries, err = store.GetScores("missing", first, second)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetScoresPrefixSharingCandidates(t *testing.T) {
	store := newTestStore(t)

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.StoreScores([]ensemble.ScoreRecord{
		{CandidateID: "knn", Metric: "accuracy", Mean: 0.9},
		{CandidateID: "knn_v2", Metric: "accuracy", Mean: 0.5},
		{CandidateID: "knn_tuned", Metric: "accuracy", Mean: 0.6},
	}, at))

	// "knn_v2" and "knn_tuned" sort inside the "knn_" key range, but a
	// query for "knn" must not pick them up.
	entries, err := store.GetScores("knn", at, at)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "knn", entries[0].Record.CandidateID)
	assert.Equal(t, 0.9, entries[0].Record.Mean)

	entries, err = store.GetScores("knn_v2", at, at)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0.5, entries[0].Record.Mean)
}

func TestEnsembleVersioning(t *testing.T) {
	store := newTestStore(t)

	// No active version on a fresh store.
	_, ok, err := store.ActiveVersion()
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, err = store.LoadActive()
	assert.Error(t, err)

	v1, err := store.SaveEnsemble([]byte("blob-one"), []string{"knn"}, "first run")
	require.NoError(t, err)
	v2, err := store.SaveEnsemble([]byte("blob-two"), []string{"knn", "nb"}, "second run")
	require.NoError(t, err)
	assert.Greater(t, v2, v1)

	// Saving activates the new version.
	active, ok, err := store.ActiveVersion()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v2, active)

	blob, version, err := store.LoadActive()
	require.NoError(t, err)
	assert.Equal(t, v2, version)
	assert.Equal(t, []byte("blob-two"), blob)

	blob, err = store.LoadVersion(v1)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob-one"), blob)

	versions, err := store.Versions()
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, v1, versions[0].Version)
	assert.Equal(t, []string{"knn", "nb"}, versions[1].Members)
	assert.Equal(t, "first run", versions[0].Note)
	assert.False(t, versions[0].CreatedAt.IsZero())
}

func TestActivateAndRollback(t *testing.T) {
	store := newTestStore(t)

	v1, err := store.SaveEnsemble([]byte("one"), nil, "")
	require.NoError(t, err)
	v2, err := store.SaveEnsemble([]byte("two"), nil, "")
	require.NoError(t, err)
	v3, err := store.SaveEnsemble([]byte("three"), nil, "")
	require.NoError(t, err)

	// Roll back v3 -> v2 -> v1, then nothing older remains.
	target, err := store.Rollback()
	require.NoError(t, err)
	assert.Equal(t, v2, target)

	blob, version, err := store.LoadActive()
	require.NoError(t, err)
	assert.Equal(t, v2, version)
	assert.Equal(t, []byte("two"), blob)

	target, err = store.Rollback()
	require.NoError(t, err)
	assert.Equal(t, v1, target)

	_, err = store.Rollback()
	assert.Error(t, err)

	// Explicit activation jumps forward again.
	require.NoError(t, store.Activate(v3))
	_, version, err = store.LoadActive()
	require.NoError(t, err)
	assert.Equal(t, v3, version)

	assert.Error(t, store.Activate(999))
	_, err = store.LoadVersion(999)
	assert.Error(t, err)
}

func TestStoreReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	v, err := store.SaveEnsemble([]byte("persisted"), []string{"knn"}, "")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := New(dir)
	require.NoError(t, err)
	defer reopened.Close()

	blob, version, err := reopened.LoadActive()
	require.NoError(t, err)
	assert.Equal(t, v, version)
	assert.Equal(t, []byte("persisted"), blob)
}
