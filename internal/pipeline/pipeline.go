// Package pipeline composes the trackers under one coordinator: it routes
// the shared event stream (sensor samples, timer ticks, lifecycle changes)
// to each tracker and aggregates their state for downstream consumers.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rucktrack/sessionkit/internal/config"
	"github.com/rucktrack/sessionkit/internal/diag"
	"github.com/rucktrack/sessionkit/internal/heartrate"
	"github.com/rucktrack/sessionkit/internal/location"
	"github.com/rucktrack/sessionkit/internal/memorymon"
	"github.com/rucktrack/sessionkit/internal/model"
	"github.com/rucktrack/sessionkit/internal/monitoring"
	"github.com/rucktrack/sessionkit/internal/sensors"
	"github.com/rucktrack/sessionkit/internal/session"
	"github.com/rucktrack/sessionkit/internal/store"
	"github.com/rucktrack/sessionkit/internal/terrain"
	"github.com/rucktrack/sessionkit/internal/timers"
	"github.com/rucktrack/sessionkit/internal/timeutil"
	"github.com/rucktrack/sessionkit/internal/upload"
)

// Backend is the slice of the API client the pipeline drives directly.
type Backend interface {
	upload.Uploader
	CreateSession(ctx context.Context, p upload.SessionParams) (string, error)
	StartSession(ctx context.Context, sessionID string) error
	PauseSession(ctx context.Context, sessionID string) error
	ResumeSession(ctx context.Context, sessionID string) error
	CompleteSession(ctx context.Context, sessionID string, s upload.CompletionSummary) error
}

// Storage is the durable store the pipeline and queue share.
type Storage interface {
	upload.TaskStore
	SaveSnapshot(snap store.Snapshot) error
	LoadSnapshot() (store.Snapshot, bool, error)
	ClearSnapshot() error
}

// State is the aggregated snapshot published to consumers. Cross-tracker
// values may lag each other by a tick.
type State struct {
	Session        model.SessionContext
	Lifecycle      session.State
	ActiveDuration time.Duration
	Location       model.LocationState
	HeartRate      model.HeartRateState
	PendingUploads int
	Pressure       model.PressureLevel
}

// Deps are the pipeline's collaborators.
type Deps struct {
	Config     *config.Tuning
	Clock      timeutil.Clock
	Backend    Backend
	Storage    Storage
	LocSource  sensors.LocationSource
	HRSource   sensors.HeartRateSource
	Classifier terrain.Classifier
	MemSampler memorymon.Sampler
}

// Pipeline is the top-level coordinator.
type Pipeline struct {
	cfg     *config.Tuning
	clock   timeutil.Clock
	backend Backend
	storage Storage

	lifecycle *session.Tracker
	location  *location.Tracker
	heartrate *heartrate.Tracker
	queue     *upload.Queue
	memory    *memorymon.Monitor
	timers    *timers.Coordinator
	reporter  *diag.Reporter

	locSource sensors.LocationSource
	hrSource  sensors.HeartRateSource

	mu      sync.Mutex
	onState func(State)
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func New(d Deps) *Pipeline {
	p := &Pipeline{
		cfg:       d.Config,
		clock:     d.Clock,
		backend:   d.Backend,
		storage:   d.Storage,
		locSource: d.LocSource,
		hrSource:  d.HRSource,
	}
	p.lifecycle = session.NewTracker(d.Clock)
	p.queue = upload.NewQueue(d.Config, d.Backend, d.Storage)

	var builder *terrain.SegmentBuilder
	if d.Classifier != nil {
		builder = terrain.NewSegmentBuilder(d.Classifier)
	}
	p.location = location.NewTracker(location.Deps{
		Config:  d.Config,
		Clock:   d.Clock,
		Source:  d.LocSource,
		Queue:   p.queue,
		Terrain: builder,
	})
	p.heartrate = heartrate.NewTracker(d.Config, d.Clock, p.queue)

	p.memory = memorymon.NewMonitor(d.Config, d.Clock, d.MemSampler)
	p.memory.SetModeListener(p.location.SetAccuracyMode)
	p.memory.SetCriticalListener(p.onCriticalPressure)

	p.timers = timers.NewCoordinator(timers.Deps{
		Config: d.Config,
		Clock:  d.Clock,
		OnTick: p.onTick,
		OnPace: p.location.OnTick,
		Paused: func() bool { return p.lifecycle.State() == session.StatePaused },
	})

	p.reporter = diag.NewReporter(d.Clock, diag.Sources{
		SessionID:       p.lifecycle.SessionID,
		Location:        p.location.Counters,
		HeartRate:       p.heartrate.Counters,
		Upload:          p.queue.Stats,
		LocationBuffer:  p.location.BufferLen,
		HeartRateBuffer: p.heartrate.BufferLen,
		PendingUploads:  p.queue.Len,
		Pressure:        p.memory.Level,
		Offline:         p.location.Offline,
	})
	return p
}

// SetStateListener registers the aggregated-state callback. Must be called
// before StartSession.
func (p *Pipeline) SetStateListener(fn func(State)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

// Reporter exposes the diagnostics reporter.
func (p *Pipeline) Reporter() *diag.Reporter { return p.reporter }

// RecoverSnapshot reports a crash-recovery snapshot from a previous run, if
// one exists, and reloads stored upload tasks for redelivery.
func (p *Pipeline) RecoverSnapshot() (store.Snapshot, bool, error) {
	snap, ok, err := p.storage.LoadSnapshot()
	if err != nil {
		return store.Snapshot{}, false, err
	}
	if ok {
		monitoring.Logf("pipeline: found crash snapshot for session %s (%.0f m, %d samples)",
			snap.SessionID, snap.DistanceM, snap.SampleCount)
	}
	if err := p.queue.RestorePending(); err != nil {
		monitoring.Logf("pipeline: restore pending tasks: %v", err)
	}
	return snap, ok, nil
}

// StartSession begins a new session under a provisional local ID, starts
// every tracker, and tries to register the session with the backend. A
// backend failure falls back to an offline session rather than blocking.
func (p *Pipeline) StartSession(ctx context.Context, params session.Params) error {
	sc, err := p.lifecycle.Begin(params)
	if err != nil {
		return err
	}

	if err := p.location.Start(sc); err != nil {
		monitoring.Logf("pipeline: location start: %v", err)
	}
	p.heartrate.Start(sc)
	if err := p.hrSource.Start(); err != nil {
		monitoring.Logf("pipeline: heart rate source unavailable: %v", err)
	}

	stop := make(chan struct{})
	p.mu.Lock()
	p.stopCh = stop
	p.mu.Unlock()
	p.wg.Add(2)
	go p.consumeLocations(stop)
	go p.consumeHeartRates(stop)

	p.lifecycle.Activate()
	p.timers.Start()

	p.ensureBackendSession(ctx)
	p.publish()
	return nil
}

// StopSession freezes the session, flushes the trackers, finalizes against
// the backend, and emits the final diagnostics report.
func (p *Pipeline) StopSession(ctx context.Context) {
	if !p.lifecycle.BeginStop() {
		return
	}
	sc := p.lifecycle.Context()

	p.timers.Stop()
	p.location.Stop()
	p.heartrate.Stop()
	if err := p.hrSource.Stop(); err != nil {
		monitoring.Logf("pipeline: heart rate source stop: %v", err)
	}

	p.mu.Lock()
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	p.mu.Unlock()
	p.wg.Wait()

	p.queue.OnSessionStop(ctx)

	if !model.IsLocalSessionID(sc.SessionID) {
		if err := p.backend.CompleteSession(ctx, sc.SessionID, p.summary()); err != nil {
			monitoring.Logf("pipeline: complete session: %v", err)
		}
	}
	if err := p.storage.ClearSnapshot(); err != nil {
		monitoring.Logf("pipeline: clear snapshot: %v", err)
	}

	p.reporter.Final()
	p.lifecycle.Complete()
	p.publish()
}

// Pause suspends tracking. No-op unless running.
func (p *Pipeline) Pause(ctx context.Context) {
	if !p.lifecycle.Pause() {
		return
	}
	p.location.Pause()
	p.heartrate.Pause()
	p.hrSource.Pause()
	sc := p.lifecycle.Context()
	if !model.IsLocalSessionID(sc.SessionID) {
		if err := p.backend.PauseSession(ctx, sc.SessionID); err != nil {
			monitoring.Logf("pipeline: pause session: %v", err)
		}
	}
	p.publish()
}

// Resume continues a paused session. No-op unless paused.
func (p *Pipeline) Resume(ctx context.Context) {
	if !p.lifecycle.Resume() {
		return
	}
	p.location.Resume()
	p.heartrate.Resume()
	p.hrSource.Resume()
	sc := p.lifecycle.Context()
	if !model.IsLocalSessionID(sc.SessionID) {
		if err := p.backend.ResumeSession(ctx, sc.SessionID); err != nil {
			monitoring.Logf("pipeline: resume session: %v", err)
		}
	}
	p.publish()
}

// ForceUpload drains the queue immediately.
func (p *Pipeline) ForceUpload(ctx context.Context) {
	p.queue.Drain(ctx)
}

// State assembles the current aggregated snapshot.
func (p *Pipeline) State() State {
	return State{
		Session:        p.lifecycle.Context(),
		Lifecycle:      p.lifecycle.State(),
		ActiveDuration: p.lifecycle.ActiveDuration(),
		Location:       p.location.State(),
		HeartRate:      p.heartrate.State(),
		PendingUploads: p.queue.Len(),
		Pressure:       p.memory.Level(),
	}
}

func (p *Pipeline) publish() {
	p.mu.Lock()
	onState := p.onState
	p.mu.Unlock()
	if onState != nil {
		onState(p.State())
	}
}

// onTick routes timer ticks to their trackers.
func (p *Pipeline) onTick(kind model.TickKind, now time.Time) {
	switch kind {
	case model.TickMain:
		p.publish()
	case model.TickWatchdog:
		p.location.OnWatchdogTick()
	case model.TickPersistence:
		p.persist()
		p.reporter.Periodic()
	case model.TickUpload:
		p.heartrate.OnUploadTick()
		// The drain talks to the network; it never runs on the timer
		// goroutine, or a slow backend would stall every other tick.
		go p.queue.Drain(context.Background())
	case model.TickConnectivity:
		p.ensureBackendSession(context.Background())
	case model.TickMemory:
		p.memory.OnMemoryTick()
	}
}

// persist writes the crash-recovery snapshot.
func (p *Pipeline) persist() {
	if !p.lifecycle.Active() {
		return
	}
	sc := p.lifecycle.Context()
	loc := p.location.State()
	err := p.storage.SaveSnapshot(store.Snapshot{
		SessionID:      sc.SessionID,
		StartTime:      sc.StartTime,
		TotalPaused:    sc.TotalPaused,
		Paused:         sc.Paused,
		DistanceM:      loc.DistanceM,
		ElevationGainM: loc.ElevationGainM,
		ElevationLossM: loc.ElevationLossM,
		SampleCount:    loc.SampleCount,
		SavedAt:        p.clock.Now(),
	})
	if err != nil {
		monitoring.Logf("pipeline: save snapshot: %v", err)
	}
}

// ensureBackendSession registers a provisionally-identified session with the
// backend and switches every tracker to the confirmed ID. Runs at start and
// again on each connectivity tick until it succeeds.
func (p *Pipeline) ensureBackendSession(ctx context.Context) {
	if !p.lifecycle.Active() {
		return
	}
	sc := p.lifecycle.Context()
	if !model.IsLocalSessionID(sc.SessionID) {
		return
	}

	id, err := p.backend.CreateSession(ctx, upload.SessionParams{
		RuckWeightKg: sc.RuckWeightKg,
		UserWeightKg: sc.UserWeightKg,
	})
	if err != nil {
		monitoring.Logf("pipeline: session create failed, staying offline: %v", err)
		return
	}
	if err := p.backend.StartSession(ctx, id); err != nil {
		monitoring.Logf("pipeline: session start failed, staying offline: %v", err)
		return
	}

	old := p.lifecycle.ConfirmID(id)
	if old == "" {
		return
	}
	p.location.ConfirmSession(id)
	p.heartrate.ConfirmSession(id)
	if err := p.queue.ConfirmSession(old, id); err != nil {
		monitoring.Logf("pipeline: rebind stored tasks: %v", err)
	}
	monitoring.Logf("pipeline: session confirmed as %s", id)
}

// onCriticalPressure forces buffered data out and drains the queue. The
// drain goes off the timer goroutine for the same reason as the upload tick.
func (p *Pipeline) onCriticalPressure() {
	p.location.ForceOffload()
	p.heartrate.ForceOffload()
	go p.queue.Drain(context.Background())
}

// consumeLocations pumps the source channel into the tracker. The watchdog
// may stop and restart the source, which replaces its channel, so a closed
// channel means "re-fetch", not "done".
func (p *Pipeline) consumeLocations(stop <-chan struct{}) {
	defer p.wg.Done()
	for {
		select {
		case s, ok := <-p.locSource.Samples():
			if !ok {
				select {
				case <-stop:
					return
				default:
					time.Sleep(10 * time.Millisecond)
				}
				continue
			}
			p.location.OnRawSample(s)
		case <-stop:
			return
		}
	}
}

func (p *Pipeline) consumeHeartRates(stop <-chan struct{}) {
	defer p.wg.Done()
	for {
		select {
		case s, ok := <-p.hrSource.Samples():
			if !ok {
				select {
				case <-stop:
					return
				default:
					time.Sleep(10 * time.Millisecond)
				}
				continue
			}
			p.heartrate.OnSample(s)
		case <-stop:
			return
		}
	}
}

// summary builds the completion payload from the final tracker state.
func (p *Pipeline) summary() upload.CompletionSummary {
	loc := p.location.State()
	hr := p.heartrate.State()
	var avgPaceMinKm float64
	if loc.AvgPaceSecPerKm > 0 {
		avgPaceMinKm = loc.AvgPaceSecPerKm / 60.0
	}
	return upload.CompletionSummary{
		DistanceKm:      loc.DistanceM / 1000.0,
		Calories:        loc.CaloriesKcal,
		ElevationGainM:  loc.ElevationGainM,
		ElevationLossM:  loc.ElevationLossM,
		AvgPaceMinKm:    avgPaceMinKm,
		AvgHeartRateBPM: hr.AverageBPM,
		MaxHeartRateBPM: hr.MaxBPM,
	}
}
