// Package memorymon samples process memory usage and degrades the pipeline
// gracefully as pressure climbs: GPS accuracy steps down a notch at a time,
// and critical pressure forces an upload drain plus a collection hint.
package memorymon

import (
	"runtime"
	"sync"
	"time"

	"github.com/rucktrack/sessionkit/internal/config"
	"github.com/rucktrack/sessionkit/internal/model"
	"github.com/rucktrack/sessionkit/internal/monitoring"
	"github.com/rucktrack/sessionkit/internal/timeutil"
)

// Sampler reports current memory usage in MB.
type Sampler interface {
	UsageMB() float64
}

// RuntimeSampler reads the Go heap via runtime.MemStats.
type RuntimeSampler struct{}

func (RuntimeSampler) UsageMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / (1024 * 1024)
}

// Monitor is the memory-pressure state machine. OnMemoryTick runs on the
// coordinator's memory cadence.
type Monitor struct {
	cfg     *config.Tuning
	clock   timeutil.Clock
	sampler Sampler

	mu         sync.Mutex
	level      model.PressureLevel
	mode       model.AccuracyMode
	lastSwitch time.Time

	onMode     func(model.AccuracyMode)
	onCritical func()
	gcHint     func()
}

func NewMonitor(cfg *config.Tuning, clock timeutil.Clock, sampler Sampler) *Monitor {
	if sampler == nil {
		sampler = RuntimeSampler{}
	}
	return &Monitor{
		cfg:     cfg,
		clock:   clock,
		sampler: sampler,
		level:   model.PressureNormal,
		mode:    model.ModeHighAccuracy,
		gcHint:  runtime.GC,
	}
}

// SetModeListener registers the accuracy-mode degradation callback.
func (m *Monitor) SetModeListener(fn func(model.AccuracyMode)) {
	m.mu.Lock()
	m.onMode = fn
	m.mu.Unlock()
}

// SetCriticalListener registers the forced-drain callback for critical
// pressure.
func (m *Monitor) SetCriticalListener(fn func()) {
	m.mu.Lock()
	m.onCritical = fn
	m.mu.Unlock()
}

// Level reports the current pressure level.
func (m *Monitor) Level() model.PressureLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Mode reports the accuracy mode the monitor last requested.
func (m *Monitor) Mode() model.AccuracyMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// OnMemoryTick samples usage, reclassifies the pressure level, and steps the
// accuracy mode. Mode switches are debounced to one per debounce window, and
// recovery steps back up one notch at a time rather than jumping.
func (m *Monitor) OnMemoryTick() {
	usage := m.sampler.UsageMB()

	m.mu.Lock()
	prevLevel := m.level
	m.level = m.classify(usage)
	level := m.level

	var switched bool
	var newMode model.AccuracyMode
	now := m.clock.Now()
	if m.lastSwitch.IsZero() || now.Sub(m.lastSwitch) >= m.cfg.GetModeSwitchDebounce() {
		switch {
		case level >= model.PressureModerate && m.mode < model.ModeEmergency:
			m.mode++
			switched = true
		case level <= model.PressureLow && m.mode > model.ModeHighAccuracy:
			m.mode--
			switched = true
		}
		if switched {
			m.lastSwitch = now
			newMode = m.mode
		}
	}
	onMode := m.onMode
	onCritical := m.onCritical
	gcHint := m.gcHint
	m.mu.Unlock()

	if level != prevLevel {
		monitoring.Logf("memory: %.0f MB, pressure %s (was %s)", usage, level, prevLevel)
	}
	if switched && onMode != nil {
		onMode(newMode)
	}
	if level == model.PressureCritical {
		if onCritical != nil {
			onCritical()
		}
		gcHint()
	}
}

func (m *Monitor) classify(usageMB float64) model.PressureLevel {
	switch {
	case usageMB < m.cfg.GetMemoryLowMB():
		return model.PressureNormal
	case usageMB < m.cfg.GetMemoryModerateMB():
		return model.PressureLow
	case usageMB < m.cfg.GetMemoryHighMB():
		return model.PressureModerate
	case usageMB < m.cfg.GetMemoryCriticalMB():
		return model.PressureHigh
	default:
		return model.PressureCritical
	}
}
