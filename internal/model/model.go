// Package model defines the data types shared across the session tracking
// pipeline: sensor samples, upload tasks, session context, and the event
// kinds the coordinator fans out to the trackers.
package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocationSample is one GPS reading. Immutable once created; the location
// tracker owns the accepted sequence until it is uploaded and trimmed.
type LocationSample struct {
	ID         string    `json:"id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ElevationM float64   `json:"elevation"`
	AccuracyM  float64   `json:"accuracy"`
	SpeedMps   float64   `json:"speed"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewLocationSample stamps a fresh sample with a unique ID.
func NewLocationSample(lat, lon, elev, accuracy, speed float64, ts time.Time) LocationSample {
	return LocationSample{
		ID:         uuid.NewString(),
		Latitude:   lat,
		Longitude:  lon,
		ElevationM: elev,
		AccuracyM:  accuracy,
		SpeedMps:   speed,
		Timestamp:  ts.UTC(),
	}
}

// HeartRateSample is one BLE heart-rate reading. Readings with BPM <= 0 are
// discarded at ingestion and never reach a buffer.
type HeartRateSample struct {
	BPM       int       `json:"bpm"`
	Timestamp time.Time `json:"timestamp"`
}

// TerrainSegment classifies the surface between two consecutive accepted
// location samples. Best-effort side channel: losing one is not an error.
type TerrainSegment struct {
	Start     LocationSample `json:"start"`
	End       LocationSample `json:"end"`
	Surface   string         `json:"surface"`
	DistanceM float64        `json:"distance_m"`
}

// TaskType identifies the payload kind of an UploadTask.
type TaskType string

const (
	TaskLocationBatch  TaskType = "location-batch"
	TaskHeartRateBatch TaskType = "heart-rate-batch"
	TaskTerrainBatch   TaskType = "terrain-batch"
)

// UploadTask is a finalized batch waiting in the upload queue. Retry
// counters are incremented in place; everything else is immutable.
type UploadTask struct {
	ID              string          `json:"id"`
	Type            TaskType        `json:"type"`
	SessionID       string          `json:"session_id"`
	Payload         json.RawMessage `json:"payload"`
	RetryCount      int             `json:"retry_count"`
	StaleRetryCount int             `json:"stale_retry_count"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewUploadTask wraps a payload for the queue. Marshal errors are the
// caller's bug, so they surface as an error rather than a panic.
func NewUploadTask(taskType TaskType, sessionID string, payload interface{}, now time.Time) (*UploadTask, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &UploadTask{
		ID:        uuid.NewString(),
		Type:      taskType,
		SessionID: sessionID,
		Payload:   raw,
		CreatedAt: now.UTC(),
	}, nil
}

// LocalSessionPrefix marks a provisional, locally generated session ID that
// the backend has not confirmed. Batches for such a session go to durable
// storage, not over the network.
const LocalSessionPrefix = "local-"

// NewLocalSessionID generates a provisional session ID.
func NewLocalSessionID() string {
	return LocalSessionPrefix + uuid.NewString()
}

// IsLocalSessionID reports whether id is a provisional local ID.
func IsLocalSessionID(id string) bool {
	return strings.HasPrefix(id, LocalSessionPrefix)
}

// SessionContext is the single mutable record for the active session. The
// lifecycle tracker owns it; other trackers hold read-only copies refreshed
// on lifecycle events.
type SessionContext struct {
	SessionID      string
	StartTime      time.Time
	Paused         bool
	TotalPaused    time.Duration
	RuckWeightKg   float64
	UserWeightKg   float64
	Gender         string
	UnitPreference string
}

// AccuracyMode is the GPS sampling mode the memory monitor steps through
// under pressure.
type AccuracyMode int

const (
	ModeHighAccuracy AccuracyMode = iota
	ModeBalanced
	ModePowerSave
	ModeEmergency
)

func (m AccuracyMode) String() string {
	switch m {
	case ModeHighAccuracy:
		return "highAccuracy"
	case ModeBalanced:
		return "balanced"
	case ModePowerSave:
		return "powerSave"
	case ModeEmergency:
		return "emergency"
	}
	return "unknown"
}

// PressureLevel is the memory monitor's severity ladder.
type PressureLevel int

const (
	PressureNormal PressureLevel = iota
	PressureLow
	PressureModerate
	PressureHigh
	PressureCritical
)

func (p PressureLevel) String() string {
	switch p {
	case PressureNormal:
		return "normal"
	case PressureLow:
		return "low"
	case PressureModerate:
		return "moderate"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	}
	return "unknown"
}

// LocationState is the location tracker's published snapshot.
type LocationState struct {
	DistanceM       float64
	PaceSecPerKm    float64
	AvgPaceSecPerKm float64
	ElevationGainM  float64
	ElevationLossM  float64
	CaloriesKcal    float64
	SampleCount     int
	TrackingActive  bool
	ErrorMessage    string
}

// HeartRateState is the heart-rate tracker's published snapshot.
type HeartRateState struct {
	CurrentBPM  int
	AverageBPM  float64
	MaxBPM      int
	SampleCount int
	Active      bool
}
