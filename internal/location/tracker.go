// Package location owns the GPS sample buffer: validation, derived metrics,
// upload offload, and the watchdog over the raw input stream.
package location

import (
	"sync"
	"time"

	"github.com/rucktrack/sessionkit/internal/config"
	"github.com/rucktrack/sessionkit/internal/metrics"
	"github.com/rucktrack/sessionkit/internal/model"
	"github.com/rucktrack/sessionkit/internal/monitoring"
	"github.com/rucktrack/sessionkit/internal/sensors"
	"github.com/rucktrack/sessionkit/internal/terrain"
	"github.com/rucktrack/sessionkit/internal/timeutil"
)

// errorDisplayWindow is how long a surfaced stream error stays visible
// before auto-clearing.
const errorDisplayWindow = 10 * time.Second

// Enqueuer is the slice of the upload queue the tracker needs.
type Enqueuer interface {
	Enqueue(task *model.UploadTask) error
}

// Counters are the tracker's diagnostic tallies.
type Counters struct {
	RawSamples         int
	Accepted           int
	RejectedAccuracy   int
	RejectedTeleport   int
	RejectedOutOfOrder int
	DroppedOverflow    int
	OffloadedBatches   int
	Restarts           int
}

// Deps are the tracker's collaborators, injected at construction.
type Deps struct {
	Config  *config.Tuning
	Clock   timeutil.Clock
	Source  sensors.LocationSource
	Queue   Enqueuer
	Terrain *terrain.SegmentBuilder
}

// Tracker ingests raw GPS samples for one session. All methods are safe for
// concurrent use; a single mutex guards the buffer and derived state.
type Tracker struct {
	cfg     *config.Tuning
	clock   timeutil.Clock
	source  sensors.LocationSource
	queue   Enqueuer
	terrain *terrain.SegmentBuilder

	mu        sync.Mutex
	active    bool
	paused    bool
	offline   bool
	mode      model.AccuracyMode
	session   model.SessionContext
	buffer    []model.LocationSample
	validator *metrics.SampleValidator
	distance  *metrics.DistanceAccumulator
	pace      *metrics.PaceCalculator
	elevation *metrics.ElevationAccumulator

	lastRaw      time.Time
	lastAccepted time.Time
	healthySince time.Time
	plainTries   int
	boostedTries int

	errorMsg   string
	errorSetAt time.Time

	terrainDistM    float64
	terrainWeighted float64

	counters Counters
	onState  func(model.LocationState)
}

func NewTracker(d Deps) *Tracker {
	return &Tracker{
		cfg:     d.Config,
		clock:   d.Clock,
		source:  d.Source,
		queue:   d.Queue,
		terrain: d.Terrain,
	}
}

// SetStateListener registers the aggregated-state callback. Must be called
// before Start.
func (t *Tracker) SetStateListener(fn func(model.LocationState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

// Start binds the tracker to a session and starts the location source.
// A source failure is non-fatal: tracking begins in degraded offline mode.
func (t *Tracker) Start(session model.SessionContext) error {
	t.mu.Lock()
	t.active = true
	t.paused = false
	t.offline = false
	t.mode = model.ModeHighAccuracy
	t.session = session
	t.buffer = nil
	t.validator = metrics.NewSampleValidator(t.cfg.GetAccuracyCeilingM(), t.cfg.GetMaxImpliedSpeedMps())
	t.distance = metrics.NewDistanceAccumulator(t.cfg.GetMinDisplacementM(), t.cfg.GetSettleDistanceM())
	t.pace = metrics.NewPaceCalculator(
		t.cfg.GetPaceWarmup(), t.cfg.GetPaceCacheInterval(),
		t.cfg.GetPaceWindowSize(), t.cfg.GetPaceMinWindow(),
		t.cfg.GetWalkingSpeedMps(),
	)
	noise := t.cfg.GetElevationNoiseM()
	if t.cfg.GetBarometricAltimeter() {
		noise = t.cfg.GetElevationNoiseBarometricM()
	}
	t.elevation = metrics.NewElevationAccumulator(noise)
	t.lastRaw = time.Time{}
	t.lastAccepted = time.Time{}
	t.healthySince = time.Time{}
	t.plainTries = 0
	t.boostedTries = 0
	t.errorMsg = ""
	t.counters = Counters{}
	t.terrainDistM = 0
	t.terrainWeighted = 0
	t.mu.Unlock()

	if err := t.source.Start(model.ModeHighAccuracy); err != nil {
		t.degrade("GPS unavailable, session continues without location", err)
	}
	return nil
}

// Stop ends tracking and flushes any remaining unoffloaded samples to the
// upload queue.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.mu.Unlock()

	t.offload(0) // 0 means "everything left"
	if err := t.source.Stop(); err != nil {
		monitoring.Logf("location: source stop: %v", err)
	}
}

// Pause suspends raw-sample consumption without losing buffered data. The
// source is paused too, not torn down, so resuming needs no reacquisition.
func (t *Tracker) Pause() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
	t.source.Pause()
}

// Resume continues consumption. Nothing is recomputed retroactively.
func (t *Tracker) Resume() {
	t.mu.Lock()
	t.paused = false
	t.mu.Unlock()
	t.source.Resume()
}

// ConfirmSession switches the tracker's session ID after backend
// confirmation.
func (t *Tracker) ConfirmSession(newID string) {
	t.mu.Lock()
	t.session.SessionID = newID
	t.mu.Unlock()
}

// OnRawSample ingests one reading from the location source.
func (t *Tracker) OnRawSample(s model.LocationSample) {
	t.mu.Lock()
	if !t.active || t.paused {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	t.lastRaw = now
	t.counters.RawSamples++

	var prev *model.LocationSample
	if n := len(t.buffer); n > 0 {
		// Copy, not a pointer into the buffer: offload trims the backing
		// array concurrently once the lock is released.
		last := t.buffer[n-1]
		prev = &last
	}
	switch t.validator.Check(prev, s) {
	case metrics.RejectAccuracy:
		t.counters.RejectedAccuracy++
		t.mu.Unlock()
		monitoring.Logf("location: rejected sample %s: accuracy %.1fm", s.ID, s.AccuracyM)
		return
	case metrics.RejectTeleport:
		t.counters.RejectedTeleport++
		t.mu.Unlock()
		monitoring.Logf("location: rejected sample %s: implausible speed", s.ID)
		return
	case metrics.RejectOutOfOrder:
		t.counters.RejectedOutOfOrder++
		t.mu.Unlock()
		monitoring.Logf("location: rejected sample %s: timestamp before previous fix", s.ID)
		return
	}

	// Hard ceiling: if offloads cannot keep up, the oldest samples give way
	// rather than growing the buffer without bound.
	dropped := 0
	if bufCap := t.cfg.GetLocationBufferCap(); len(t.buffer) >= bufCap {
		dropped = len(t.buffer) - bufCap + 1
		t.buffer = append(t.buffer[:0], t.buffer[dropped:]...)
		t.distance.ShiftIndex(dropped)
		t.counters.DroppedOverflow += dropped
	}
	t.buffer = append(t.buffer, s)
	t.counters.Accepted++
	t.lastAccepted = now
	t.distance.Process(t.buffer)
	t.elevation.Add(s.ElevationM)
	if prev != nil {
		t.pace.Observe(*prev, s)
	}
	overPressure := len(t.buffer) >= t.cfg.GetLocationPressureMark()
	state := t.stateLocked(now)
	onState := t.onState
	t.mu.Unlock()

	if dropped > 0 {
		monitoring.Logf("location: buffer at cap, dropped %d oldest samples", dropped)
	}
	if prev != nil && t.terrain != nil {
		t.terrain.Observe(*prev, s)
	}
	if overPressure {
		t.offload(t.cfg.GetLocationOffloadBatch())
	}
	if onState != nil {
		onState(state)
	}
}

// offload moves the oldest n buffered samples (everything when n <= 0)
// into the upload queue, then trims them. Ownership transfers to the queue,
// which stays durable until acknowledgment.
func (t *Tracker) offload(n int) {
	t.mu.Lock()
	if len(t.buffer) == 0 {
		t.mu.Unlock()
		t.flushTerrain()
		return
	}
	if n <= 0 || n > len(t.buffer) {
		n = len(t.buffer)
	}
	batch := make([]model.LocationSample, n)
	copy(batch, t.buffer[:n])
	sessionID := t.session.SessionID
	now := t.clock.Now()
	t.mu.Unlock()

	task, err := model.NewUploadTask(model.TaskLocationBatch, sessionID, batch, now)
	if err != nil {
		monitoring.Logf("location: build batch: %v", err)
		return
	}
	if err := t.queue.Enqueue(task); err != nil {
		// Batch not handed over; keep the samples for the next attempt.
		monitoring.Logf("location: enqueue batch: %v", err)
		return
	}

	t.mu.Lock()
	// Trim only what was handed to the queue.
	if n > len(t.buffer) {
		n = len(t.buffer)
	}
	t.buffer = append(t.buffer[:0], t.buffer[n:]...)
	t.distance.ShiftIndex(n)
	t.counters.OffloadedBatches++
	t.mu.Unlock()

	t.flushTerrain()
}

// ForceOffload pushes the oldest unacknowledged batch out immediately, used
// by the memory monitor under pressure.
func (t *Tracker) ForceOffload() {
	t.offload(t.cfg.GetLocationOffloadBatch())
}

func (t *Tracker) flushTerrain() {
	if t.terrain == nil || t.terrain.Len() == 0 {
		return
	}
	segments := t.terrain.Drain()
	t.mu.Lock()
	sessionID := t.session.SessionID
	now := t.clock.Now()
	for _, seg := range segments {
		t.terrainDistM += seg.DistanceM
		t.terrainWeighted += seg.DistanceM * terrain.Multiplier(seg.Surface)
	}
	t.mu.Unlock()
	task, err := model.NewUploadTask(model.TaskTerrainBatch, sessionID, segments, now)
	if err != nil {
		monitoring.Logf("location: build terrain batch: %v", err)
		return
	}
	if err := t.queue.Enqueue(task); err != nil {
		monitoring.Logf("location: enqueue terrain batch: %v", err)
	}
}

// SetAccuracyMode relays the memory monitor's degradation step to the
// source.
func (t *Tracker) SetAccuracyMode(mode model.AccuracyMode) {
	t.mu.Lock()
	t.mode = mode
	t.mu.Unlock()
	t.source.SetAccuracyMode(mode)
}

// OnTick drives the periodic state publication and error auto-clear. Runs
// on the coordinator's pace cadence (every ~5s).
func (t *Tracker) OnTick() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	if t.errorMsg != "" && now.Sub(t.errorSetAt) > errorDisplayWindow {
		t.errorMsg = ""
	}
	state := t.stateLocked(now)
	onState := t.onState
	t.mu.Unlock()

	if onState != nil {
		onState(state)
	}
}

// State returns the current published snapshot.
func (t *Tracker) State() model.LocationState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked(t.clock.Now())
}

func (t *Tracker) stateLocked(now time.Time) model.LocationState {
	if t.distance == nil {
		return model.LocationState{}
	}
	activeElapsed := now.Sub(t.session.StartTime) - t.session.TotalPaused
	totalM := t.distance.TotalM()
	durationSec := activeElapsed.Seconds()
	multiplier := 1.0
	if t.terrainDistM > 0 {
		multiplier = t.terrainWeighted / t.terrainDistM
	}
	cal := metrics.Calories(metrics.CalorieParams{
		UserWeightKg:      t.session.UserWeightKg,
		RuckWeightKg:      t.session.RuckWeightKg,
		DistanceKm:        totalM / 1000.0,
		ElevationGainM:    t.elevation.GainM(),
		ElevationLossM:    t.elevation.LossM(),
		DurationSeconds:   durationSec,
		Gender:            t.session.Gender,
		TerrainMultiplier: multiplier,
	})
	return model.LocationState{
		DistanceM:       totalM,
		PaceSecPerKm:    t.pace.Current(now, t.session.StartTime),
		AvgPaceSecPerKm: t.pace.Average(now, t.session.StartTime, totalM, activeElapsed),
		ElevationGainM:  t.elevation.GainM(),
		ElevationLossM:  t.elevation.LossM(),
		CaloriesKcal:    cal,
		SampleCount:     len(t.buffer),
		TrackingActive:  t.active && !t.offline,
		ErrorMessage:    t.errorMsg,
	}
}

// Counters returns a copy of the diagnostic tallies.
func (t *Tracker) Counters() Counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters
}

// BufferLen reports the number of samples currently buffered.
func (t *Tracker) BufferLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}

// Offline reports whether the watchdog has given up on the source.
func (t *Tracker) Offline() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offline
}

func (t *Tracker) degrade(msg string, err error) {
	t.mu.Lock()
	t.offline = true
	t.errorMsg = msg
	t.errorSetAt = t.clock.Now()
	t.mu.Unlock()
	monitoring.Logf("location: degraded: %s (%v)", msg, err)
}
