package metrics

import (
	"github.com/rucktrack/sessionkit/internal/geo"
	"github.com/rucktrack/sessionkit/internal/model"
)

// RejectReason classifies why a sample failed validation.
type RejectReason string

const (
	RejectNone       RejectReason = ""
	RejectAccuracy   RejectReason = "accuracy"
	RejectTeleport   RejectReason = "teleport"
	RejectOutOfOrder RejectReason = "out_of_order"
)

// SampleValidator gates raw GPS samples before they reach the accepted
// buffer. A rejected sample is logged and dropped; it never affects metrics.
type SampleValidator struct {
	accuracyCeilingM   float64
	maxImpliedSpeedMps float64
}

// NewSampleValidator builds a validator with the given accuracy ceiling and
// plausibility speed limit.
func NewSampleValidator(accuracyCeilingM, maxImpliedSpeedMps float64) *SampleValidator {
	return &SampleValidator{
		accuracyCeilingM:   accuracyCeilingM,
		maxImpliedSpeedMps: maxImpliedSpeedMps,
	}
}

// Check validates curr against the previously accepted sample (nil for the
// first sample of a session). It returns RejectNone when the sample should
// be accepted.
func (v *SampleValidator) Check(prev *model.LocationSample, curr model.LocationSample) RejectReason {
	if curr.AccuracyM > v.accuracyCeilingM {
		return RejectAccuracy
	}
	if prev != nil {
		dt := curr.Timestamp.Sub(prev.Timestamp).Seconds()
		if dt < 0 {
			// The accepted sequence stays ordered by timestamp; a fix that
			// predates its predecessor would corrupt distance and pace.
			return RejectOutOfOrder
		}
		if dt > 0 {
			hop := geo.Haversine3D(
				prev.Latitude, prev.Longitude, prev.ElevationM,
				curr.Latitude, curr.Longitude, curr.ElevationM,
			)
			if geo.ImpliedSpeed(hop, dt) > v.maxImpliedSpeedMps {
				return RejectTeleport
			}
		}
	}
	return RejectNone
}
