package diag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rucktrack/sessionkit/internal/heartrate"
	"github.com/rucktrack/sessionkit/internal/location"
	"github.com/rucktrack/sessionkit/internal/model"
	"github.com/rucktrack/sessionkit/internal/timeutil"
	"github.com/rucktrack/sessionkit/internal/upload"
)

func TestSnapshotAggregation(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewManualClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	r := NewReporter(clock, Sources{
		SessionID: func() string { return "srv-9" },
		Location: func() location.Counters {
			return location.Counters{RawSamples: 120, Accepted: 110, RejectedAccuracy: 10}
		},
		HeartRate: func() heartrate.Counters {
			return heartrate.Counters{Received: 60, Accepted: 58, RejectedInvalid: 2}
		},
		Upload:          func() upload.Stats { return upload.Stats{Enqueued: 5, Uploaded: 4} },
		LocationBuffer:  func() int { return 110 },
		HeartRateBuffer: func() int { return 58 },
		PendingUploads:  func() int { return 1 },
		Pressure:        func() model.PressureLevel { return model.PressureModerate },
		Offline:         func() bool { return false },
	})

	s := r.Snapshot()
	assert.Equal(t, "srv-9", s.SessionID)
	assert.Equal(t, clock.Now(), s.At)
	assert.Equal(t, 110, s.Location.Accepted)
	assert.Equal(t, 58, s.HeartRate.Accepted)
	assert.Equal(t, 4, s.Upload.Uploaded)
	assert.Equal(t, model.PressureModerate, s.Pressure)
	assert.False(t, s.TrackingOffline)

	assert.Equal(t, s, r.Last())
}

func TestNilSourcesContributeZeroValues(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewManualClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	r := NewReporter(clock, Sources{})

	s := r.Snapshot()
	assert.Empty(t, s.SessionID)
	assert.Zero(t, s.Location.RawSamples)
	assert.Zero(t, s.PendingUploads)
	assert.Equal(t, model.PressureNormal, s.Pressure)
}

func TestPeriodicCountsReports(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewManualClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	r := NewReporter(clock, Sources{})
	r.Periodic()
	r.Periodic()
	assert.Equal(t, 2, r.Reports())

	final := r.Final()
	assert.Equal(t, clock.Now(), final.At)
	assert.Equal(t, 2, r.Reports(), "final report is not a periodic report")
}
