package location

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rucktrack/sessionkit/internal/model"
)

// silentRound advances past the raw-silence threshold and runs the watchdog.
func silentRound(f *fixture) {
	f.clock.Advance(61 * time.Second)
	f.tr.OnWatchdogTick()
}

func TestWatchdogIgnoresStreamThatNeverFlowed(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	// No raw sample ever arrived: silence is not a failure yet.
	silentRound(f)
	assert.Equal(t, 1, f.source.StartCount())
	assert.False(t, f.tr.Offline())
}

func TestWatchdogAdaptiveRestartLadder(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	// Stream flowed once, then went silent.
	f.clock.Advance(time.Second)
	f.tr.OnRawSample(sample(0, 8, f.clock.Now()))

	// Three plain restarts keep the current mode.
	for i := 0; i < 3; i++ {
		silentRound(f)
	}
	assert.Equal(t, 4, f.source.StartCount())
	assert.Equal(t, 3, f.tr.Counters().Restarts)

	// Three boosted restarts request high accuracy.
	for i := 0; i < 3; i++ {
		silentRound(f)
	}
	assert.Equal(t, 7, f.source.StartCount())
	assert.False(t, f.tr.Offline())

	// Seventh failure: give up, mark offline, keep the session alive.
	silentRound(f)
	assert.Equal(t, 7, f.source.StartCount(), "no further restarts after giving up")
	assert.True(t, f.tr.Offline())

	state := f.tr.State()
	assert.False(t, state.TrackingActive)
	assert.Contains(t, state.ErrorMessage, "GPS unavailable")

	// Offline is sticky for the watchdog.
	silentRound(f)
	assert.Equal(t, 7, f.source.StartCount())
}

func TestWatchdogBoostedRestartsRequestHighAccuracy(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	// Degraded mode set by the memory monitor.
	f.tr.SetAccuracyMode(model.ModePowerSave)

	f.clock.Advance(time.Second)
	f.tr.OnRawSample(sample(0, 8, f.clock.Now()))

	for i := 0; i < 4; i++ {
		silentRound(f)
	}

	log := f.source.ModeLog()
	require.GreaterOrEqual(t, len(log), 6)
	// Initial start, powerSave switch, three plain restarts in powerSave,
	// then the first boosted restart.
	assert.Equal(t, model.ModePowerSave, log[len(log)-2])
	assert.Equal(t, model.ModeHighAccuracy, log[len(log)-1])
}

func TestWatchdogRejectionRestart(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	// One good sample, then raw cadence stays healthy but everything is
	// rejected on accuracy.
	f.clock.Advance(time.Second)
	f.tr.OnRawSample(sample(0, 8, f.clock.Now()))

	for i := 0; i < 8; i++ {
		f.clock.Advance(15 * time.Second)
		f.tr.OnRawSample(sample(i+1, 500, f.clock.Now()))
		f.tr.OnWatchdogTick()
	}

	// 120 s of rejections with healthy raw cadence crossed the 90 s bound.
	assert.GreaterOrEqual(t, f.tr.Counters().Restarts, 1)
	assert.False(t, f.tr.Offline())
}

func TestWatchdogHealthyCadenceResetsCounters(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.clock.Advance(time.Second)
	f.tr.OnRawSample(sample(0, 8, f.clock.Now()))
	silentRound(f)
	require.Equal(t, 1, f.tr.plainTries)

	// Healthy cadence for well over the 30 s window.
	for i := 0; i < 6; i++ {
		f.clock.Advance(10 * time.Second)
		f.tr.OnRawSample(sample(i+1, 8, f.clock.Now()))
		f.tr.OnWatchdogTick()
	}

	assert.Zero(t, f.tr.plainTries)
	assert.Zero(t, f.tr.boostedTries)
}

func TestWatchdogSkipsWhilePaused(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.clock.Advance(time.Second)
	f.tr.OnRawSample(sample(0, 8, f.clock.Now()))
	f.tr.Pause()

	silentRound(f)
	assert.Equal(t, 1, f.source.StartCount(), "paused session must not trigger restarts")
	assert.Zero(t, f.tr.Counters().Restarts)
}

func TestErrorMessageAutoClears(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.clock.Advance(time.Second)
	f.tr.OnRawSample(sample(0, 8, f.clock.Now()))
	for i := 0; i < 7; i++ {
		silentRound(f)
	}
	require.True(t, f.tr.Offline())
	require.NotEmpty(t, f.tr.State().ErrorMessage)

	f.clock.Advance(11 * time.Second)
	f.tr.OnTick()
	assert.Empty(t, f.tr.State().ErrorMessage)
}
