// Package heartrate owns the BLE heart-rate sample buffer. Same shape as the
// location tracker but simpler: one numeric stream, smaller thresholds, and
// a periodic upload independent of the pressure trigger.
package heartrate

import (
	"sync"
	"time"

	"github.com/rucktrack/sessionkit/internal/config"
	"github.com/rucktrack/sessionkit/internal/model"
	"github.com/rucktrack/sessionkit/internal/monitoring"
	"github.com/rucktrack/sessionkit/internal/timeutil"
)

// Enqueuer is the slice of the upload queue the tracker needs.
type Enqueuer interface {
	Enqueue(task *model.UploadTask) error
}

// Counters are the tracker's diagnostic tallies.
type Counters struct {
	Received           int
	Accepted           int
	RejectedInvalid    int
	RejectedOutOfOrder int
	DroppedOverflow    int
	OffloadedBatches   int
}

// Tracker buffers heart-rate samples for one session.
type Tracker struct {
	cfg   *config.Tuning
	clock timeutil.Clock
	queue Enqueuer

	mu      sync.Mutex
	active  bool
	paused  bool
	session model.SessionContext

	// bpms mirrors samples so numeric aggregates never re-walk the full
	// sample structs.
	samples []model.HeartRateSample
	bpms    []int

	currentBPM    int
	maxBPM        int
	sumBPM        int64
	totalCount    int
	lastUpload    time.Time
	lastTimestamp time.Time

	counters Counters
	onState  func(model.HeartRateState)
}

func NewTracker(cfg *config.Tuning, clock timeutil.Clock, queue Enqueuer) *Tracker {
	return &Tracker{cfg: cfg, clock: clock, queue: queue}
}

// SetStateListener registers the aggregated-state callback. Must be called
// before Start.
func (t *Tracker) SetStateListener(fn func(model.HeartRateState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

func (t *Tracker) Start(session model.SessionContext) {
	t.mu.Lock()
	t.active = true
	t.paused = false
	t.session = session
	t.samples = nil
	t.bpms = nil
	t.currentBPM = 0
	t.maxBPM = 0
	t.sumBPM = 0
	t.totalCount = 0
	t.lastUpload = t.clock.Now()
	t.lastTimestamp = time.Time{}
	t.counters = Counters{}
	t.mu.Unlock()
}

// Stop ends tracking and flushes buffered samples to the upload queue.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.mu.Unlock()
	t.offload(0)
}

func (t *Tracker) Pause() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
}

func (t *Tracker) Resume() {
	t.mu.Lock()
	t.paused = false
	t.mu.Unlock()
}

// ConfirmSession switches the tracker's session ID after backend
// confirmation.
func (t *Tracker) ConfirmSession(newID string) {
	t.mu.Lock()
	t.session.SessionID = newID
	t.mu.Unlock()
}

// OnSample ingests one reading. Readings with bpm <= 0 or a timestamp
// before the previously accepted one never reach the buffer or the upload
// queue.
func (t *Tracker) OnSample(s model.HeartRateSample) {
	t.mu.Lock()
	if !t.active || t.paused {
		t.mu.Unlock()
		return
	}
	t.counters.Received++
	if s.BPM <= 0 {
		t.counters.RejectedInvalid++
		t.mu.Unlock()
		return
	}
	if !t.lastTimestamp.IsZero() && s.Timestamp.Before(t.lastTimestamp) {
		t.counters.RejectedOutOfOrder++
		t.mu.Unlock()
		return
	}
	t.lastTimestamp = s.Timestamp

	// Hard ceiling: if offloads cannot keep up, the oldest readings give way.
	dropped := 0
	if bufCap := t.cfg.GetHeartRateBufferCap(); len(t.samples) >= bufCap {
		dropped = len(t.samples) - bufCap + 1
		t.samples = append(t.samples[:0], t.samples[dropped:]...)
		t.bpms = append(t.bpms[:0], t.bpms[dropped:]...)
		t.counters.DroppedOverflow += dropped
	}
	t.samples = append(t.samples, s)
	t.bpms = append(t.bpms, s.BPM)
	t.counters.Accepted++
	t.currentBPM = s.BPM
	if s.BPM > t.maxBPM {
		t.maxBPM = s.BPM
	}
	t.sumBPM += int64(s.BPM)
	t.totalCount++

	overPressure := len(t.samples) >= t.cfg.GetHeartRatePressureMark()
	overTrigger := len(t.samples) >= t.cfg.GetHeartRateUploadTrigger()
	state := t.stateLocked()
	onState := t.onState
	t.mu.Unlock()

	if dropped > 0 {
		monitoring.Logf("heartrate: buffer at cap, dropped %d oldest readings", dropped)
	}
	switch {
	case overPressure:
		// Past the pressure mark everything goes out, not just one batch.
		t.offload(0)
	case overTrigger:
		t.offload(t.cfg.GetHeartRateOffloadBatch())
	}
	if onState != nil {
		onState(state)
	}
}

// OnUploadTick runs on the periodic heart-rate upload cadence and pushes
// whatever is buffered, so data leaves the device even under light load.
func (t *Tracker) OnUploadTick() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	due := t.clock.Since(t.lastUpload) >= t.cfg.GetHeartRateUploadEvery()
	empty := len(t.samples) == 0
	t.mu.Unlock()
	if !due || empty {
		return
	}
	t.offload(0)
}

// ForceOffload pushes the oldest batch out immediately, used by the memory
// monitor under pressure.
func (t *Tracker) ForceOffload() {
	t.offload(t.cfg.GetHeartRateOffloadBatch())
}

// offload moves the oldest n buffered samples (everything when n <= 0) into
// the upload queue and trims them.
func (t *Tracker) offload(n int) {
	t.mu.Lock()
	if len(t.samples) == 0 {
		t.mu.Unlock()
		return
	}
	if n <= 0 || n > len(t.samples) {
		n = len(t.samples)
	}
	batch := make([]model.HeartRateSample, n)
	copy(batch, t.samples[:n])
	sessionID := t.session.SessionID
	now := t.clock.Now()
	t.mu.Unlock()

	task, err := model.NewUploadTask(model.TaskHeartRateBatch, sessionID, batch, now)
	if err != nil {
		monitoring.Logf("heartrate: build batch: %v", err)
		return
	}
	if err := t.queue.Enqueue(task); err != nil {
		monitoring.Logf("heartrate: enqueue batch: %v", err)
		return
	}

	t.mu.Lock()
	if n > len(t.samples) {
		n = len(t.samples)
	}
	t.samples = append(t.samples[:0], t.samples[n:]...)
	t.bpms = append(t.bpms[:0], t.bpms[n:]...)
	t.counters.OffloadedBatches++
	t.lastUpload = now
	t.mu.Unlock()
}

// State returns the current published snapshot.
func (t *Tracker) State() model.HeartRateState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Tracker) stateLocked() model.HeartRateState {
	var avg float64
	if t.totalCount > 0 {
		avg = float64(t.sumBPM) / float64(t.totalCount)
	}
	return model.HeartRateState{
		CurrentBPM:  t.currentBPM,
		AverageBPM:  avg,
		MaxBPM:      t.maxBPM,
		SampleCount: len(t.samples),
		Active:      t.active,
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
	return len(t.samples)
}
