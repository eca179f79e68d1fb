package model

import "time"

// Event is the closed set of happenings the coordinator fans out to the
// trackers. Each kind is its own struct so consumers dispatch with a type
// switch instead of probing untyped maps.
type Event interface {
	eventKind() string
}

// SessionStarted announces a new active session context.
type SessionStarted struct {
	Session SessionContext
}

// SessionStopped announces the end of the active session.
type SessionStopped struct {
	SessionID string
	Duration  time.Duration
}

// SessionPaused announces a user-initiated pause.
type SessionPaused struct {
	SessionID string
	At        time.Time
}

// SessionResumed announces the end of a pause.
type SessionResumed struct {
	SessionID string
	At        time.Time
	PausedFor time.Duration
}

// SessionIDConfirmed announces that the backend assigned an authoritative
// ID replacing the provisional local one.
type SessionIDConfirmed struct {
	OldID string
	NewID string
}

// LocationUpdated carries a newly accepted location sample and the
// recomputed location state.
type LocationUpdated struct {
	Sample LocationSample
	State  LocationState
}

// HeartRateUpdated carries a newly accepted heart-rate sample.
type HeartRateUpdated struct {
	Sample HeartRateSample
	State  HeartRateState
}

// MemoryPressureChanged announces a severity transition.
type MemoryPressureChanged struct {
	From    PressureLevel
	To      PressureLevel
	UsedMB  float64
	Sampled time.Time
}

// TickKind names the periodic timers.
type TickKind string

const (
	TickMain         TickKind = "main"
	TickWatchdog     TickKind = "watchdog"
	TickPersistence  TickKind = "persistence"
	TickUpload       TickKind = "upload"
	TickConnectivity TickKind = "connectivity"
	TickMemory       TickKind = "memory"
)

// Tick is one timer firing.
type Tick struct {
	Kind TickKind
	At   time.Time
}

func (SessionStarted) eventKind() string        { return "session-started" }
func (SessionStopped) eventKind() string        { return "session-stopped" }
func (SessionPaused) eventKind() string         { return "session-paused" }
func (SessionResumed) eventKind() string        { return "session-resumed" }
func (SessionIDConfirmed) eventKind() string    { return "session-id-confirmed" }
func (LocationUpdated) eventKind() string       { return "location-updated" }
func (HeartRateUpdated) eventKind() string      { return "heart-rate-updated" }
func (MemoryPressureChanged) eventKind() string { return "memory-pressure-changed" }
func (Tick) eventKind() string                  { return "tick" }
