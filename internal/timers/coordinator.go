// Package timers is the single source of periodic ticks for the pipeline:
// main, watchdog, persistence, upload, connectivity, and memory cadences,
// plus a meta health check that restarts any timer whose ticks stop
// arriving.
package timers

import (
	"sync"
	"time"

	"github.com/rucktrack/sessionkit/internal/config"
	"github.com/rucktrack/sessionkit/internal/model"
	"github.com/rucktrack/sessionkit/internal/monitoring"
	"github.com/rucktrack/sessionkit/internal/timeutil"
)

// Deps are the coordinator's collaborators.
type Deps struct {
	Config *config.Tuning
	Clock  timeutil.Clock

	// OnTick receives every tick, tagged by kind.
	OnTick func(kind model.TickKind, now time.Time)

	// OnPace fires every 5th main tick to match the pace cache cadence.
	OnPace func()

	// Paused gates the health check: a stale main timer is never restarted
	// while the session is paused, since that would silently resume
	// wall-clock accumulation.
	Paused func() bool
}

type timerState struct {
	kind     model.TickKind
	interval time.Duration
	ticker   timeutil.Ticker
	mu       sync.Mutex
	lastTick time.Time
	restarts int
}

func (t *timerState) touch(now time.Time) {
	t.mu.Lock()
	t.lastTick = now
	t.mu.Unlock()
}

func (t *timerState) last() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastTick
}

// Coordinator owns the six pipeline timers. Start launches one goroutine
// multiplexing all of them; Stop tears it down.
type Coordinator struct {
	cfg    *config.Tuning
	clock  timeutil.Clock
	onTick func(model.TickKind, time.Time)
	onPace func()
	paused func() bool

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	timers    map[model.TickKind]*timerState
	mainTicks int
}

func NewCoordinator(d Deps) *Coordinator {
	paused := d.Paused
	if paused == nil {
		paused = func() bool { return false }
	}
	return &Coordinator{
		cfg:    d.Config,
		clock:  d.Clock,
		onTick: d.OnTick,
		onPace: d.OnPace,
		paused: paused,
	}
}

// Start creates the timers and begins dispatching ticks.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	now := c.clock.Now()
	intervals := map[model.TickKind]time.Duration{
		model.TickMain:         c.cfg.GetMainInterval(),
		model.TickWatchdog:     c.cfg.GetWatchdogInterval(),
		model.TickPersistence:  c.cfg.GetPersistenceInterval(),
		model.TickUpload:       c.cfg.GetUploadInterval(),
		model.TickConnectivity: c.cfg.GetConnectivityInterval(),
		model.TickMemory:       c.cfg.GetMemoryInterval(),
	}
	c.timers = make(map[model.TickKind]*timerState, len(intervals))
	for kind, interval := range intervals {
		c.timers[kind] = &timerState{
			kind:     kind,
			interval: interval,
			ticker:   c.clock.NewTicker(interval),
			lastTick: now,
		}
	}
	c.mainTicks = 0
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	health := c.clock.NewTicker(c.cfg.GetHealthCheckInterval())
	c.mu.Unlock()

	go c.loop(health)
}

// Stop halts dispatch and all timers.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	done := c.doneCh
	c.mu.Unlock()

	<-done
	c.mu.Lock()
	for _, t := range c.timers {
		t.ticker.Stop()
	}
	c.mu.Unlock()
}

func (c *Coordinator) loop(health timeutil.Ticker) {
	defer close(c.doneCh)
	defer health.Stop()

	main := c.timers[model.TickMain]
	watchdog := c.timers[model.TickWatchdog]
	persistence := c.timers[model.TickPersistence]
	upload := c.timers[model.TickUpload]
	connectivity := c.timers[model.TickConnectivity]
	memory := c.timers[model.TickMemory]

	for {
		select {
		case now := <-main.ticker.C():
			c.fire(main, now)
		case now := <-watchdog.ticker.C():
			c.fire(watchdog, now)
		case now := <-persistence.ticker.C():
			c.fire(persistence, now)
		case now := <-upload.ticker.C():
			c.fire(upload, now)
		case now := <-connectivity.ticker.C():
			c.fire(connectivity, now)
		case now := <-memory.ticker.C():
			c.fire(memory, now)
		case now := <-health.C():
			c.healthCheck(now)
		case <-c.stopCh:
			return
		}
	}
}

func (c *Coordinator) fire(t *timerState, now time.Time) {
	t.touch(now)
	if c.onTick != nil {
		c.onTick(t.kind, now)
	}
	if t.kind == model.TickMain {
		c.mu.Lock()
		c.mainTicks++
		fifth := c.mainTicks%5 == 0
		c.mu.Unlock()
		if fifth && c.onPace != nil {
			c.onPace()
		}
	}
}

// healthCheck restarts any timer whose ticks have stopped arriving. The
// main timer is exempt while the session is paused.
func (c *Coordinator) healthCheck(now time.Time) {
	stale := time.Duration(c.cfg.GetStalenessMultiplier())
	for _, t := range c.timers {
		bound := t.interval * stale
		if bound < c.cfg.GetHealthCheckInterval() {
			bound = c.cfg.GetHealthCheckInterval()
		}
		if now.Sub(t.last()) <= bound {
			continue
		}
		if t.kind == model.TickMain && c.paused() {
			continue
		}
		monitoring.Logf("timers: %s timer stale (last tick %s ago), restarting",
			t.kind, now.Sub(t.last()))
		t.ticker.Reset(t.interval)
		t.touch(now)
		t.mu.Lock()
		t.restarts++
		t.mu.Unlock()
	}
}

// Restarts reports how many times the health check revived the given timer.
func (c *Coordinator) Restarts(kind model.TickKind) int {
	c.mu.Lock()
	t, ok := c.timers[kind]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.restarts
}
