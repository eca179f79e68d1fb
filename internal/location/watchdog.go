package location

import (
	"github.com/rucktrack/sessionkit/internal/model"
	"github.com/rucktrack/sessionkit/internal/monitoring"
)

// OnWatchdogTick inspects raw and accepted sample cadence and restarts the
// location source when the stream has gone silent or validation is rejecting
// everything. Adaptive: plain restarts first, then high-accuracy restarts,
// then give up and mark tracking offline. The session itself keeps running.
func (t *Tracker) OnWatchdogTick() {
	t.mu.Lock()
	if !t.active || t.paused || t.offline {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()

	// A stretch of healthy cadence forgives earlier restarts.
	healthy := !t.lastRaw.IsZero() &&
		now.Sub(t.lastRaw) <= t.cfg.GetHealthyCadenceWindow() &&
		now.Sub(t.lastAccepted) <= t.cfg.GetHealthyCadenceWindow()
	if healthy {
		if t.healthySince.IsZero() {
			t.healthySince = now
		} else if now.Sub(t.healthySince) >= t.cfg.GetHealthyCadenceWindow() &&
			(t.plainTries > 0 || t.boostedTries > 0) {
			monitoring.Logf("location: cadence healthy, resetting restart counters")
			t.plainTries = 0
			t.boostedTries = 0
		}
	} else {
		t.healthySince = now
	}

	// Sensor dead: raw samples had been flowing, then stopped.
	rawSilent := !t.lastRaw.IsZero() &&
		now.Sub(t.lastRaw) > t.cfg.GetRawSilenceThreshold()

	// Sensor noisy: raw cadence fine but nothing passes validation.
	allRejected := !rawSilent && !t.lastRaw.IsZero() &&
		now.Sub(t.lastRaw) <= t.cfg.GetHealthyCadenceWindow() &&
		(t.lastAccepted.IsZero() || now.Sub(t.lastAccepted) > t.cfg.GetRejectionThreshold())

	if !rawSilent && !allRejected {
		t.mu.Unlock()
		return
	}

	reason := "raw stream silent"
	if allRejected {
		reason = "all samples rejected"
	}
	t.mu.Unlock()

	t.restart(reason)
}

func (t *Tracker) restart(reason string) {
	t.mu.Lock()
	var mode model.AccuracyMode
	switch {
	case t.plainTries < t.cfg.GetMaxPlainRestarts():
		// Plain restart keeps whatever mode the source was in.
		t.plainTries++
		mode = t.mode
	case t.boostedTries < t.cfg.GetMaxBoostedRestarts():
		t.boostedTries++
		mode = model.ModeHighAccuracy
		t.mode = mode
	default:
		t.offline = true
		t.errorMsg = "GPS unavailable, session continues without location"
		t.errorSetAt = t.clock.Now()
		t.mu.Unlock()
		monitoring.Logf("location: watchdog giving up after %d restarts (%s)",
			t.cfg.GetMaxPlainRestarts()+t.cfg.GetMaxBoostedRestarts(), reason)
		if err := t.source.Stop(); err != nil {
			monitoring.Logf("location: source stop: %v", err)
		}
		return
	}
	t.counters.Restarts++
	plain, boosted := t.plainTries, t.boostedTries
	// Give the restarted stream a full silence window before judging it.
	now := t.clock.Now()
	t.lastRaw = now
	t.lastAccepted = now
	t.healthySince = now
	t.mu.Unlock()

	monitoring.Logf("location: watchdog restart (%s), plain=%d boosted=%d mode=%s",
		reason, plain, boosted, mode)
	if err := t.source.Stop(); err != nil {
		monitoring.Logf("location: source stop before restart: %v", err)
	}
	if err := t.source.Start(mode); err != nil {
		t.degrade("GPS unavailable, session continues without location", err)
	}
}
