// Package sensors defines the inbound sample sources the pipeline consumes.
// A source pushes samples on a channel; it knows nothing about buffering,
// validation, or upload.
package sensors

import (
	"sync"

	"github.com/rucktrack/sessionkit/internal/model"
)

// LocationSource produces position fixes. Implementations own their channel
// and close it from Stop.
type LocationSource interface {
	// Start begins sample delivery in the requested accuracy mode.
	Start(mode model.AccuracyMode) error
	// Stop halts delivery and closes the sample channel.
	Stop() error
	// Pause suspends delivery without releasing the underlying device, so
	// Resume needs no reacquisition.
	Pause()
	// Resume continues delivery after a Pause.
	Resume()
	// SetAccuracyMode adjusts fix quality without restarting the source.
	SetAccuracyMode(mode model.AccuracyMode)
	// Samples is the delivery channel. Valid after Start.
	Samples() <-chan model.LocationSample
}

// HeartRateSource produces heart rate readings.
type HeartRateSource interface {
	Start() error
	Stop() error
	Pause()
	Resume()
	Samples() <-chan model.HeartRateSample
}

// ScriptedLocationSource is a hand-driven LocationSource for tests and
// replay. Samples are emitted only when the caller pushes them.
type ScriptedLocationSource struct {
	mu       sync.Mutex
	ch       chan model.LocationSample
	started  bool
	stopped  bool
	paused   bool
	mode     model.AccuracyMode
	starts   int
	modeLog  []model.AccuracyMode
	startErr error
}

// NewScriptedLocationSource returns a source with a buffered channel large
// enough that tests never block on emit.
func NewScriptedLocationSource() *ScriptedLocationSource {
	return &ScriptedLocationSource{ch: make(chan model.LocationSample, 2048)}
}

// FailNextStart makes the next Start call return err.
func (s *ScriptedLocationSource) FailNextStart(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startErr = err
}

func (s *ScriptedLocationSource) Start(mode model.AccuracyMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		err := s.startErr
		s.startErr = nil
		return err
	}
	if s.stopped {
		s.ch = make(chan model.LocationSample, 2048)
		s.stopped = false
	}
	s.started = true
	s.paused = false
	s.mode = mode
	s.starts++
	s.modeLog = append(s.modeLog, mode)
	return nil
}

func (s *ScriptedLocationSource) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

func (s *ScriptedLocationSource) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Paused reports whether the source is currently paused.
func (s *ScriptedLocationSource) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *ScriptedLocationSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started && !s.stopped {
		close(s.ch)
		s.stopped = true
		s.started = false
	}
	return nil
}

func (s *ScriptedLocationSource) SetAccuracyMode(mode model.AccuracyMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.modeLog = append(s.modeLog, mode)
}

func (s *ScriptedLocationSource) Samples() <-chan model.LocationSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Emit pushes one sample to the channel. No-op when the source is stopped
// or paused.
func (s *ScriptedLocationSource) Emit(sample model.LocationSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped || s.paused {
		return
	}
	s.ch <- sample
}

// StartCount reports how many times Start succeeded.
func (s *ScriptedLocationSource) StartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Mode reports the current accuracy mode.
func (s *ScriptedLocationSource) Mode() model.AccuracyMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// ModeLog reports every mode passed to Start or SetAccuracyMode, in order.
func (s *ScriptedLocationSource) ModeLog() []model.AccuracyMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AccuracyMode, len(s.modeLog))
	copy(out, s.modeLog)
	return out
}

// Running reports whether the source is currently started.
func (s *ScriptedLocationSource) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// ScriptedHeartRateSource is the heart rate counterpart of
// ScriptedLocationSource.
type ScriptedHeartRateSource struct {
	mu      sync.Mutex
	ch      chan model.HeartRateSample
	started bool
	stopped bool
	paused  bool
}

func NewScriptedHeartRateSource() *ScriptedHeartRateSource {
	return &ScriptedHeartRateSource{ch: make(chan model.HeartRateSample, 2048)}
}

func (s *ScriptedHeartRateSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.ch = make(chan model.HeartRateSample, 2048)
		s.stopped = false
	}
	s.started = true
	s.paused = false
	return nil
}

func (s *ScriptedHeartRateSource) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

func (s *ScriptedHeartRateSource) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Paused reports whether the source is currently paused.
func (s *ScriptedHeartRateSource) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *ScriptedHeartRateSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started && !s.stopped {
		close(s.ch)
		s.stopped = true
		s.started = false
	}
	return nil
}

func (s *ScriptedHeartRateSource) Samples() <-chan model.HeartRateSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

func (s *ScriptedHeartRateSource) Emit(sample model.HeartRateSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped || s.paused {
		return
	}
	s.ch <- sample
}
