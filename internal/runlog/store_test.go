package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	second := Record{ID: NewID(), StartedAt: base.Add(time.Minute), Target: "b.png", Steps: 10, FinalDist: 0.5}
	first := Record{ID: NewID(), StartedAt: base, Target: "a.png", Steps: 5, Outputs: []string{"proj.png"}}
	require.NoError(t, store.SaveRun(ctx, second))
	require.NoError(t, store.SaveRun(ctx, first))

	got, ok, err := store.GetRun(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a.png", got.Target)
	assert.Equal(t, []string{"proj.png"}, got.Outputs)

	_, ok, err = store.GetRun(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, first.ID, runs[0].ID)
	assert.Equal(t, second.ID, runs[1].ID)
	assert.Equal(t, 0.5, runs[1].FinalDist)
}

func TestMemoryStore(t *testing.T) {
	store, err := NewStore("memory", "")
	require.NoError(t, err)
	exerciseStore(t, store)
	assert.NoError(t, CloseIfSupported(store))
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	exerciseStore(t, store)
	assert.NoError(t, CloseIfSupported(store))
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	assert.Error(t, NewSQLiteStore("").Init(context.Background()))
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("postgres", "")
	assert.Error(t, err)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123abcd", Record{ID: "0123abcd-ffff"}.ShortID())
	assert.Equal(t, "r1", Record{ID: "r1"}.ShortID())
	assert.Equal(t, "", Record{}.ShortID())
}
