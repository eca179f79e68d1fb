package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClientQueuedResponses(t *testing.T) {
	t.Parallel()

	mock := NewMockClient().
		Queue(http.StatusCreated, `{"id":"abc"}`).
		Queue(http.StatusNotFound, `{"message":"Session not found"}`)

	req, _ := http.NewRequest(http.MethodPost, "http://backend/api/rucks", strings.NewReader(`{"x":1}`))
	resp, err := mock.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"id":"abc"}`, string(body))

	resp, err = mock.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Queue exhausted: default 200.
	resp, err = mock.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 3, mock.RequestCount())
	assert.Equal(t, `{"x":1}`, string(mock.RequestBody(0)))
}

func TestMockClientQueueError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("connection refused")
	mock := NewMockClient().QueueError(wantErr)

	req, _ := http.NewRequest(http.MethodPost, "http://backend/api/rucks", nil)
	_, err := mock.Do(req)
	assert.ErrorIs(t, err, wantErr)
}

func TestMockClientDoFunc(t *testing.T) {
	t.Parallel()

	mock := NewMockClient()
	mock.DoFunc = func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusTeapot,
			Body:       io.NopCloser(strings.NewReader("")),
		}, nil
	}

	req, _ := http.NewRequest(http.MethodGet, "http://backend/health", nil)
	resp, err := mock.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestMockClientReset(t *testing.T) {
	t.Parallel()

	mock := NewMockClient().Queue(http.StatusBadGateway, "")
	req, _ := http.NewRequest(http.MethodGet, "http://backend/", nil)
	_, _ = mock.Do(req)

	mock.Reset()
	assert.Equal(t, 0, mock.RequestCount())
	assert.Nil(t, mock.Request(0))
}

func TestStandardClient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewStandardClient(nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
