// Package diag aggregates counters from every tracker into periodic and
// final health reports.
package diag

import (
	"sync"
	"time"

	"github.com/rucktrack/sessionkit/internal/heartrate"
	"github.com/rucktrack/sessionkit/internal/location"
	"github.com/rucktrack/sessionkit/internal/model"
	"github.com/rucktrack/sessionkit/internal/monitoring"
	"github.com/rucktrack/sessionkit/internal/timeutil"
	"github.com/rucktrack/sessionkit/internal/upload"
)

// Snapshot is one point-in-time health report.
type Snapshot struct {
	SessionID string
	At        time.Time

	Location  location.Counters
	HeartRate heartrate.Counters
	Upload    upload.Stats

	BufferedLocation  int
	BufferedHeartRate int
	PendingUploads    int
	Pressure          model.PressureLevel
	TrackingOffline   bool
}

// Sources pulls live counters from the trackers. Any nil func contributes
// its zero value.
type Sources struct {
	SessionID func() string

	Location        func() location.Counters
	HeartRate       func() heartrate.Counters
	Upload          func() upload.Stats
	LocationBuffer  func() int
	HeartRateBuffer func() int
	PendingUploads  func() int
	Pressure        func() model.PressureLevel
	Offline         func() bool
}

// Reporter assembles snapshots on demand and logs them on the periodic
// cadence.
type Reporter struct {
	clock   timeutil.Clock
	sources Sources

	mu       sync.Mutex
	reports  int
	lastSnap Snapshot
}

func NewReporter(clock timeutil.Clock, sources Sources) *Reporter {
	return &Reporter{clock: clock, sources: sources}
}

// Snapshot assembles a fresh report.
func (r *Reporter) Snapshot() Snapshot {
	s := Snapshot{At: r.clock.Now()}
	if f := r.sources.SessionID; f != nil {
		s.SessionID = f()
	}
	if f := r.sources.Location; f != nil {
		s.Location = f()
	}
	if f := r.sources.HeartRate; f != nil {
		s.HeartRate = f()
	}
	if f := r.sources.Upload; f != nil {
		s.Upload = f()
	}
	if f := r.sources.LocationBuffer; f != nil {
		s.BufferedLocation = f()
	}
	if f := r.sources.HeartRateBuffer; f != nil {
		s.BufferedHeartRate = f()
	}
	if f := r.sources.PendingUploads; f != nil {
		s.PendingUploads = f()
	}
	if f := r.sources.Pressure; f != nil {
		s.Pressure = f()
	}
	if f := r.sources.Offline; f != nil {
		s.TrackingOffline = f()
	}
	r.mu.Lock()
	r.lastSnap = s
	r.mu.Unlock()
	return s
}

// Periodic logs one condensed health line. Runs on the persistence cadence.
func (r *Reporter) Periodic() {
	s := r.Snapshot()
	r.mu.Lock()
	r.reports++
	n := r.reports
	r.mu.Unlock()
	monitoring.Logf(
		"diag[%d] session=%s loc{raw=%d ok=%d buf=%d} hr{ok=%d buf=%d} up{sent=%d pend=%d dropped=%d stored=%d} mem=%s offline=%v",
		n, s.SessionID,
		s.Location.RawSamples, s.Location.Accepted, s.BufferedLocation,
		s.HeartRate.Accepted, s.BufferedHeartRate,
		s.Upload.Uploaded, s.PendingUploads, s.Upload.DroppedStale,
		s.Upload.PersistedRetry+s.Upload.PersistedOffline,
		s.Pressure, s.TrackingOffline,
	)
}

// Final assembles and logs the end-of-session report, returning it so the
// completion flow can attach it to the summary.
func (r *Reporter) Final() Snapshot {
	s := r.Snapshot()
	monitoring.Logf(
		"diag final: session=%s accepted=%d/%d rejected_acc=%d rejected_tel=%d rejected_ord=%d restarts=%d hr=%d/%d uploads=%d retried=%d retried_stale=%d dropped=%d persisted=%d",
		s.SessionID,
		s.Location.Accepted, s.Location.RawSamples,
		s.Location.RejectedAccuracy, s.Location.RejectedTeleport,
		s.Location.RejectedOutOfOrder,
		s.Location.Restarts,
		s.HeartRate.Accepted, s.HeartRate.Received,
		s.Upload.Uploaded, s.Upload.Retried, s.Upload.RetriedStale, s.Upload.DroppedStale,
		s.Upload.PersistedRetry+s.Upload.PersistedOffline,
	)
	return s
}

// Last returns the most recently assembled snapshot.
func (r *Reporter) Last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSnap
}

// Reports counts how many periodic reports have been emitted.
func (r *Reporter) Reports() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports
}
