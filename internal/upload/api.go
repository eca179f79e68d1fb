// Package upload owns the durable-until-acknowledged upload queue and the
// backend API client it delivers through.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rucktrack/sessionkit/internal/httputil"
	"github.com/rucktrack/sessionkit/internal/model"
)

// APIError is a non-2xx backend reply.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// Stale reports whether the backend no longer recognizes the session as
// open. Uploads against a stale session are pointless and must not retry
// forever.
func (e *APIError) Stale() bool {
	if e.StatusCode == http.StatusNotFound {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "session not found") ||
		strings.Contains(msg, "session completed")
}

// IsStale reports whether err is a stale-session APIError.
func IsStale(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Stale()
}

// APIClient speaks the session backend's batch-ingest endpoints.
type APIClient struct {
	baseURL   string
	authToken string
	client    httputil.Client
}

func NewAPIClient(baseURL, authToken string, client httputil.Client) *APIClient {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &APIClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		client:    client,
	}
}

// SessionParams is the creation payload for a new backend session.
type SessionParams struct {
	RuckWeightKg float64 `json:"ruck_weight_kg"`
	UserWeightKg float64 `json:"user_weight_kg,omitempty"`
	Notes        string  `json:"notes,omitempty"`
}

// CompletionSummary is the final stats payload sent on session completion.
type CompletionSummary struct {
	DistanceKm      float64 `json:"final_distance_km"`
	Calories        float64 `json:"final_calories_burned"`
	ElevationGainM  float64 `json:"final_elevation_gain"`
	ElevationLossM  float64 `json:"final_elevation_loss"`
	AvgPaceMinKm    float64 `json:"final_average_pace,omitempty"`
	AvgHeartRateBPM float64 `json:"avg_heart_rate,omitempty"`
	MaxHeartRateBPM int     `json:"max_heart_rate,omitempty"`
}

// CreateSession registers a new session and returns the backend's
// authoritative session ID.
func (c *APIClient) CreateSession(ctx context.Context, p SessionParams) (string, error) {
	body, err := c.post(ctx, "/api/rucks", p)
	if err != nil {
		return "", err
	}
	var reply struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("decode create reply: %w", err)
	}
	if reply.ID.String() == "" {
		return "", fmt.Errorf("create reply carried no session id")
	}
	return reply.ID.String(), nil
}

// StartSession marks the session in progress.
func (c *APIClient) StartSession(ctx context.Context, sessionID string) error {
	_, err := c.post(ctx, "/api/rucks/"+sessionID+"/start", struct{}{})
	return err
}

// PauseSession records a pause on the backend.
func (c *APIClient) PauseSession(ctx context.Context, sessionID string) error {
	_, err := c.post(ctx, "/api/rucks/"+sessionID+"/pause", struct{}{})
	return err
}

// ResumeSession records a resume on the backend.
func (c *APIClient) ResumeSession(ctx context.Context, sessionID string) error {
	_, err := c.post(ctx, "/api/rucks/"+sessionID+"/resume", struct{}{})
	return err
}

// CompleteSession finalizes the session with its summary stats.
func (c *APIClient) CompleteSession(ctx context.Context, sessionID string, s CompletionSummary) error {
	_, err := c.post(ctx, "/api/rucks/"+sessionID+"/complete", s)
	return err
}

// UploadBatch delivers one queued task to its per-type ingest endpoint.
func (c *APIClient) UploadBatch(ctx context.Context, task *model.UploadTask) error {
	var suffix string
	switch task.Type {
	case model.TaskLocationBatch:
		suffix = "/location"
	case model.TaskHeartRateBatch:
		suffix = "/heartrate"
	case model.TaskTerrainBatch:
		suffix = "/terrain"
	default:
		return fmt.Errorf("unknown task type %q", task.Type)
	}
	_, err := c.postRaw(ctx, "/api/rucks/"+task.SessionID+suffix, task.Payload)
	return err
}

func (c *APIClient) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", path, err)
	}
	return c.postRaw(ctx, path, raw)
}

func (c *APIClient) postRaw(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	replyBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: extractMessage(replyBody)}
	}
	return replyBody, nil
}

// extractMessage pulls the backend's {"message": ...} field, falling back to
// the raw body.
func extractMessage(body []byte) string {
	var reply struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &reply); err == nil && reply.Message != "" {
		return reply.Message
	}
	return string(body)
}
