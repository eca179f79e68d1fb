package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rucktrack/sessionkit/internal/httputil"
	"github.com/rucktrack/sessionkit/internal/model"
)

func TestCreateSession(t *testing.T) {
	t.Parallel()

	t.Run("parses numeric id", func(t *testing.T) {
		t.Parallel()
		mock := httputil.NewMockClient()
		mock.Queue(http.StatusOK, `{"id": 4821}`)
		c := NewAPIClient("https://api.example.com", "tok-1", mock)

		id, err := c.CreateSession(context.Background(), SessionParams{RuckWeightKg: 20})
		require.NoError(t, err)
		assert.Equal(t, "4821", id)

		req := mock.Request(0)
		require.NotNil(t, req)
		assert.Equal(t, "/api/rucks", req.URL.Path)
		assert.Equal(t, "Bearer tok-1", req.Header.Get("Authorization"))
		assert.JSONEq(t, `{"ruck_weight_kg":20}`, string(mock.RequestBody(0)))
	})

	t.Run("rejects reply without id", func(t *testing.T) {
		t.Parallel()
		mock := httputil.NewMockClient()
		mock.Queue(http.StatusOK, `{}`)
		c := NewAPIClient("https://api.example.com", "", mock)
		_, err := c.CreateSession(context.Background(), SessionParams{})
		assert.Error(t, err)
	})
}

func TestLifecycleEndpoints(t *testing.T) {
	t.Parallel()

	mock := httputil.NewMockClient()
	c := NewAPIClient("https://api.example.com/", "", mock)
	ctx := context.Background()

	require.NoError(t, c.StartSession(ctx, "42"))
	require.NoError(t, c.PauseSession(ctx, "42"))
	require.NoError(t, c.ResumeSession(ctx, "42"))
	require.NoError(t, c.CompleteSession(ctx, "42", CompletionSummary{DistanceKm: 5.2}))

	paths := []string{
		"/api/rucks/42/start",
		"/api/rucks/42/pause",
		"/api/rucks/42/resume",
		"/api/rucks/42/complete",
	}
	require.Equal(t, len(paths), mock.RequestCount())
	for i, want := range paths {
		assert.Equal(t, want, mock.Request(i).URL.Path)
	}
	assert.Contains(t, string(mock.RequestBody(3)), `"final_distance_km":5.2`)
}

func TestUploadBatchRoutesByType(t *testing.T) {
	t.Parallel()

	mock := httputil.NewMockClient()
	c := NewAPIClient("https://api.example.com", "", mock)
	now := time.Now().UTC()

	for i, tc := range []struct {
		taskType model.TaskType
		path     string
	}{
		{model.TaskLocationBatch, "/api/rucks/42/location"},
		{model.TaskHeartRateBatch, "/api/rucks/42/heartrate"},
		{model.TaskTerrainBatch, "/api/rucks/42/terrain"},
	} {
		task, err := model.NewUploadTask(tc.taskType, "42", map[string]int{"n": i}, now)
		require.NoError(t, err)
		require.NoError(t, c.UploadBatch(context.Background(), task))
		assert.Equal(t, tc.path, mock.Request(i).URL.Path)
	}

	bad := &model.UploadTask{Type: "telemetry", SessionID: "42"}
	assert.Error(t, c.UploadBatch(context.Background(), bad))
}

func TestStaleClassification(t *testing.T) {
	t.Parallel()

	t.Run("404 is stale", func(t *testing.T) {
		t.Parallel()
		mock := httputil.NewMockClient()
		mock.Queue(http.StatusNotFound, `{"message": "Session not found"}`)
		c := NewAPIClient("https://api.example.com", "", mock)
		err := c.StartSession(context.Background(), "gone")
		assert.True(t, IsStale(err))
	})

	t.Run("session completed message is stale", func(t *testing.T) {
		t.Parallel()
		mock := httputil.NewMockClient()
		mock.Queue(http.StatusBadRequest, `{"message": "Session completed"}`)
		c := NewAPIClient("https://api.example.com", "", mock)
		err := c.StartSession(context.Background(), "done")
		assert.True(t, IsStale(err))
	})

	t.Run("server errors are transient", func(t *testing.T) {
		t.Parallel()
		mock := httputil.NewMockClient()
		mock.Queue(http.StatusInternalServerError, `{"message": "boom"}`)
		c := NewAPIClient("https://api.example.com", "", mock)
		err := c.StartSession(context.Background(), "42")
		require.Error(t, err)
		assert.False(t, IsStale(err))

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "boom", apiErr.Message)
	})

	t.Run("transport errors are transient", func(t *testing.T) {
		t.Parallel()
		mock := httputil.NewMockClient()
		mock.QueueError(errors.New("connection refused"))
		c := NewAPIClient("https://api.example.com", "", mock)
		err := c.StartSession(context.Background(), "42")
		require.Error(t, err)
		assert.False(t, IsStale(err))
	})

	t.Run("wrapped stale errors are recognized", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("attempt 3: %w",
			&APIError{StatusCode: http.StatusNotFound, Message: "Session not found"})
		assert.True(t, IsStale(err))
		assert.False(t, IsStale(nil))
		assert.False(t, IsStale(errors.New("plain")))
	})
}
