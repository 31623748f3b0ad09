package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/phone-enrich/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Runs ---

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "website", "leads.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "website", got.Pipeline)
	assert.Equal(t, "leads.csv", got.Input)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.CompletedAt)

	result := &model.RunResult{
		Rows:        3,
		Batches:     1,
		Resolved:    1,
		FollowUp:    2,
		PhonesFound: 1,
		Statuses:    map[model.Status]int{model.StatusSuccess: 1, model.StatusSkipped: 2},
	}
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusComplete, result))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, *result, *got.Result)
	require.NotNil(t, got.CompletedAt)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_CompleteRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteRun(context.Background(), "missing", model.RunStatusFailed, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRuns_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	fb, err := st.CreateRun(ctx, "facebook", "a.csv")
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "website", "a.csv")
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "website", "b.csv")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, fb.ID, model.RunStatusFailed, &model.RunResult{Error: "boom"}))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	web, err := st.ListRuns(ctx, RunFilter{Pipeline: "website"})
	require.NoError(t, err)
	assert.Len(t, web, 2)

	failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].Result.Error)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

// --- Probe cache ---

func TestSQLite_ProbeCache_SetAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	in := model.ProbeResult{URL: "acme.sg", Reachable: true, FinalURL: "https://acme.sg/", CheckedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, st.SetCachedProbe(ctx, in, time.Hour))

	got, err := st.GetCachedProbe(ctx, "acme.sg")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Reachable)
	assert.Equal(t, "https://acme.sg/", got.FinalURL)
	assert.True(t, in.CheckedAt.Equal(got.CheckedAt))
}

func TestSQLite_ProbeCache_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetCachedProbe(context.Background(), "nope.sg")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_ProbeCache_ExpiredAndOverwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedProbe(ctx, model.ProbeResult{URL: "down.sg", Reason: "Timeout"}, -time.Hour))
	got, err := st.GetCachedProbe(ctx, "down.sg")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := st.DeleteExpiredProbes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, st.SetCachedProbe(ctx, model.ProbeResult{URL: "down.sg", Reason: "Timeout"}, time.Hour))
	require.NoError(t, st.SetCachedProbe(ctx, model.ProbeResult{URL: "down.sg", Reason: "Connection Failed"}, time.Hour))
	got, err = st.GetCachedProbe(ctx, "down.sg")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Connection Failed", got.Reason)
}

func TestNewSQLite_BadPath(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	assert.Error(t, err)
}
