// Package session owns the lifecycle state machine for one tracking session
// and the single mutable SessionContext record.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rucktrack/sessionkit/internal/model"
	"github.com/rucktrack/sessionkit/internal/monitoring"
	"github.com/rucktrack/sessionkit/internal/timeutil"
)

// State is the lifecycle position. completed is terminal; a new Begin starts
// a fresh instance.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StatePaused
	StateStopping
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

// ErrSessionActive is returned by Begin when a session is already underway.
var ErrSessionActive = errors.New("session already active")

// Params carries the user-supplied inputs for a new session.
type Params struct {
	RuckWeightKg   float64
	UserWeightKg   float64
	Gender         string
	UnitPreference string
}

// Tracker is the lifecycle tracker. All methods are safe for concurrent use.
type Tracker struct {
	clock timeutil.Clock

	mu          sync.Mutex
	state       State
	ctx         model.SessionContext
	pauseStart  time.Time
	frozenSpan  time.Duration
	spanFrozen  bool
}

func NewTracker(clock timeutil.Clock) *Tracker {
	return &Tracker{clock: clock, state: StateIdle}
}

// Begin creates a fresh SessionContext under a provisional local ID so
// dependent trackers can start buffering before the backend answers.
// Rejected while a session is active.
func (t *Tracker) Begin(p Params) (model.SessionContext, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateIdle, StateCompleted:
	default:
		return model.SessionContext{}, fmt.Errorf("%w: state %s", ErrSessionActive, t.state)
	}

	t.state = StateStarting
	t.ctx = model.SessionContext{
		SessionID:      model.NewLocalSessionID(),
		StartTime:      t.clock.Now().UTC(),
		RuckWeightKg:   p.RuckWeightKg,
		UserWeightKg:   p.UserWeightKg,
		Gender:         p.Gender,
		UnitPreference: p.UnitPreference,
	}
	t.pauseStart = time.Time{}
	t.frozenSpan = 0
	t.spanFrozen = false
	monitoring.Logf("session: starting %s", t.ctx.SessionID)
	return t.ctx, nil
}

// Activate moves starting to running. No-op in any other state.
func (t *Tracker) Activate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateStarting {
		t.state = StateRunning
	}
}

// ConfirmID switches the provisional session ID to the backend-issued one
// and returns the ID it replaced. No-op when id is empty or the session
// already carries a confirmed ID.
func (t *Tracker) ConfirmID(id string) (previous string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == "" || !model.IsLocalSessionID(t.ctx.SessionID) {
		return ""
	}
	previous = t.ctx.SessionID
	t.ctx.SessionID = id
	monitoring.Logf("session: confirmed id %s (was %s)", id, previous)
	return previous
}

// Pause suspends the session. No-op unless running.
func (t *Tracker) Pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRunning {
		return false
	}
	t.state = StatePaused
	t.ctx.Paused = true
	t.pauseStart = t.clock.Now()
	return true
}

// Resume continues a paused session, folding the pause span into the
// accumulated paused total. No-op unless paused.
func (t *Tracker) Resume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePaused {
		return false
	}
	t.state = StateRunning
	t.ctx.Paused = false
	t.ctx.TotalPaused += t.clock.Now().Sub(t.pauseStart)
	t.pauseStart = time.Time{}
	return true
}

// BeginStop freezes the active duration and moves to stopping. An in-progress
// pause is closed out first. No-op unless running or paused.
func (t *Tracker) BeginStop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case StateRunning, StatePaused:
	default:
		return false
	}
	now := t.clock.Now()
	if t.state == StatePaused {
		t.ctx.TotalPaused += now.Sub(t.pauseStart)
		t.ctx.Paused = false
		t.pauseStart = time.Time{}
	}
	t.frozenSpan = now.Sub(t.ctx.StartTime) - t.ctx.TotalPaused
	t.spanFrozen = true
	t.state = StateStopping
	return true
}

// Complete marks the session finished. Identifiers are retained so the
// summary flow can still reference them.
func (t *Tracker) Complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateStopping {
		return false
	}
	t.state = StateCompleted
	monitoring.Logf("session: completed %s", t.ctx.SessionID)
	return true
}

// State reports the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Context returns a copy of the session context. Zero value when idle.
func (t *Tracker) Context() model.SessionContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx
}

// SessionID reports the current (provisional or confirmed) session ID.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx.SessionID
}

// ActiveDuration is wall time since start minus accumulated pauses. After
// BeginStop it stays frozen at the stop-time value.
func (t *Tracker) ActiveDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.spanFrozen {
		return t.frozenSpan
	}
	if t.state == StateIdle {
		return 0
	}
	now := t.clock.Now()
	paused := t.ctx.TotalPaused
	if t.state == StatePaused {
		paused += now.Sub(t.pauseStart)
	}
	return now.Sub(t.ctx.StartTime) - paused
}

// Active reports whether trackers should be processing events.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateStarting || t.state == StateRunning || t.state == StatePaused
}
