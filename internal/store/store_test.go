package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rucktrack/sessionkit/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessionkit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTask(t *testing.T, sessionID string, created time.Time) *model.UploadTask {
	t.Helper()
	task, err := model.NewUploadTask(model.TaskLocationBatch, sessionID,
		map[string]int{"points": 200}, created)
	require.NoError(t, err)
	return task
}

func TestTaskRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	task := makeTask(t, "srv-100", now)
	task.RetryCount = 3

	require.NoError(t, s.SaveTask(task))

	pending, err := s.PendingTasks()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	got := pending[0]
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, model.TaskLocationBatch, got.Type)
	assert.Equal(t, "srv-100", got.SessionID)
	assert.JSONEq(t, `{"points":200}`, string(got.Payload))
	assert.Equal(t, 3, got.RetryCount)

	require.NoError(t, s.DeleteTask(task.ID))
	n, err := s.TaskCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPendingTasksOrderedOldestFirst(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	newer := makeTask(t, "srv-100", base.Add(time.Minute))
	older := makeTask(t, "srv-100", base)
	require.NoError(t, s.SaveTask(newer))
	require.NoError(t, s.SaveTask(older))

	pending, err := s.PendingTasks()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, older.ID, pending[0].ID)
	assert.Equal(t, newer.ID, pending[1].ID)
}

func TestSaveTaskUpdatesRetryCounters(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	task := makeTask(t, "srv-100", time.Now().UTC())
	require.NoError(t, s.SaveTask(task))

	task.RetryCount = 2
	task.StaleRetryCount = 1
	require.NoError(t, s.SaveTask(task))

	pending, err := s.PendingTasks()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].RetryCount)
	assert.Equal(t, 1, pending[0].StaleRetryCount)
}

func TestRebindSession(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	local := model.NewLocalSessionID()
	now := time.Now().UTC()
	require.NoError(t, s.SaveTask(makeTask(t, local, now)))
	require.NoError(t, s.SaveTask(makeTask(t, local, now.Add(time.Second))))
	require.NoError(t, s.SaveTask(makeTask(t, "srv-other", now)))

	n, err := s.RebindSession(local, "srv-42")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	pending, err := s.PendingTasks()
	require.NoError(t, err)
	rebound := 0
	for _, task := range pending {
		if task.SessionID == "srv-42" {
			rebound++
		}
	}
	assert.Equal(t, 2, rebound)
}

func TestSnapshotLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	// Empty store: no snapshot.
	_, ok, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.False(t, ok)

	snap := Snapshot{
		SessionID:      "srv-7",
		StartTime:      time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		TotalPaused:    90 * time.Second,
		Paused:         true,
		DistanceM:      4321.5,
		ElevationGainM: 120,
		ElevationLossM: 80,
		SampleCount:    950,
		SavedAt:        time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveSnapshot(snap))

	got, ok, err := s.LoadSnapshot()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.SessionID, got.SessionID)
	assert.Equal(t, snap.TotalPaused, got.TotalPaused)
	assert.True(t, got.Paused)
	assert.Equal(t, snap.DistanceM, got.DistanceM)
	assert.Equal(t, snap.SampleCount, got.SampleCount)
	assert.True(t, snap.StartTime.Equal(got.StartTime))

	// Overwrite keeps a single row.
	snap.DistanceM = 5000
	snap.Paused = false
	require.NoError(t, s.SaveSnapshot(snap))
	got, ok, err = s.LoadSnapshot()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5000.0, got.DistanceM)
	assert.False(t, got.Paused)

	require.NoError(t, s.ClearSnapshot())
	_, ok, err = s.LoadSnapshot()
	require.NoError(t, err)
	assert.False(t, ok)
}
