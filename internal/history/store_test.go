package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seunghyun-Min/nextjs-recoru/internal/batch"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(runID string, started time.Time) *batch.Result {
	return &batch.Result{
		RunID:     runID,
		Started:   started,
		Finished:  started.Add(90 * time.Second),
		Succeeded: []string{"b.txt"},
		Failed:    []string{"a.txt"},
		Records: []batch.Record{
			{Name: "a.txt", ErrorText: "missing field X\ninvalid date Y", Relocated: "/done/a.txt", ErrorLog: "/err/a_error_R.txt"},
			{Name: "b.txt", Accepted: true, Relocated: "/done/b.txt"},
		},
	}
}

func TestStore_RecordAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	started := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	id, err := s.Record(ctx, sampleResult("20261015_090000", started), nil)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	run, files, err := s.GetRun(ctx, "20261015_090000")
	require.NoError(t, err)

	assert.Equal(t, id, run.ID)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.True(t, started.Equal(run.Started))
	assert.Equal(t, 90*time.Second, run.Finished.Sub(run.Started))
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	assert.Empty(t, run.Fault)

	require.Len(t, files, 2)
	assert.Equal(t, File{Name: "a.txt", ErrorText: "missing field X\ninvalid date Y", Relocated: "/done/a.txt", ErrorLog: "/err/a_error_R.txt"}, files[0])
	assert.Equal(t, File{Name: "b.txt", Accepted: true, Relocated: "/done/b.txt"}, files[1])
}

func TestStore_Statuses(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	_, err := s.Record(ctx, batch.EmptyResult("E", at), nil)
	require.NoError(t, err)
	_, err = s.Record(ctx, sampleResult("A", at.Add(time.Hour)), errors.New("import modal not ready"))
	require.NoError(t, err)

	run, files, err := s.GetRun(ctx, "E")
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, run.Status)
	assert.Empty(t, files)

	run, _, err = s.GetRun(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, run.Status)
	assert.Equal(t, "import modal not ready", run.Fault)
}

func TestStore_ListRuns(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"R1", "R2", "R3"} {
		_, err := s.Record(ctx, sampleResult(id, base.Add(time.Duration(i)*24*time.Hour)), nil)
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "R3", runs[0].RunID, "newest first")
	assert.Equal(t, "R1", runs[2].RunID)

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestStore_GetRunMissing(t *testing.T) {
	_, _, err := newStore(t).GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_FilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "history.db")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)
	_, err = s.Record(ctx, sampleResult("R", time.Now()), nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
