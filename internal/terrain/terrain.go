// Package terrain derives surface classifications between consecutive
// accepted location samples. This is a best-effort side channel: a dropped
// segment never fails the session.
package terrain

import (
	"sync"
	"time"

	"github.com/rucktrack/sessionkit/internal/geo"
	"github.com/rucktrack/sessionkit/internal/model"
	"github.com/rucktrack/sessionkit/internal/timeutil"
)

// Known surface types, pavement being the energy-cost baseline.
const (
	SurfacePaved     = "paved"
	SurfaceTrail     = "trail"
	SurfaceGravel    = "gravel"
	SurfaceMixed     = "mixed"
	SurfaceRocky     = "rocky"
	SurfaceTechnical = "technical"
)

// Multiplier maps a surface type to its energy cost relative to pavement.
// Unknown surfaces fall back to the baseline.
func Multiplier(surface string) float64 {
	switch surface {
	case SurfaceTrail:
		return 1.2
	case SurfaceGravel:
		return 1.15
	case SurfaceMixed:
		return 1.1
	case SurfaceRocky:
		return 1.35
	case SurfaceTechnical:
		return 1.5
	default:
		return 1.0
	}
}

// Classifier resolves the surface type at a coordinate. Returning ok=false
// means the classifier declined, typically because it is rate limiting
// itself; the caller simply skips the segment.
type Classifier interface {
	Classify(lat, lon float64) (surface string, ok bool)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(lat, lon float64) (string, bool)

func (f ClassifierFunc) Classify(lat, lon float64) (string, bool) { return f(lat, lon) }

// RateLimited wraps a classifier so it answers at most once per interval.
// Queries inside the window decline without consulting the inner classifier.
type RateLimited struct {
	inner    Classifier
	clock    timeutil.Clock
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func NewRateLimited(inner Classifier, clock timeutil.Clock, interval time.Duration) *RateLimited {
	return &RateLimited{inner: inner, clock: clock, interval: interval}
}

func (r *RateLimited) Classify(lat, lon float64) (string, bool) {
	r.mu.Lock()
	now := r.clock.Now()
	if !r.last.IsZero() && now.Sub(r.last) < r.interval {
		r.mu.Unlock()
		return "", false
	}
	r.last = now
	r.mu.Unlock()
	return r.inner.Classify(lat, lon)
}

// SegmentBuilder turns pairs of accepted samples into TerrainSegments
// whenever the classifier answers. Segments accumulate until drained into
// an upload batch.
type SegmentBuilder struct {
	classifier Classifier

	mu       sync.Mutex
	segments []model.TerrainSegment
}

func NewSegmentBuilder(classifier Classifier) *SegmentBuilder {
	return &SegmentBuilder{classifier: classifier}
}

// Observe classifies the midpoint between prev and curr. Declined queries
// produce no segment.
func (b *SegmentBuilder) Observe(prev, curr model.LocationSample) {
	if b.classifier == nil {
		return
	}
	midLat := (prev.Latitude + curr.Latitude) / 2
	midLon := (prev.Longitude + curr.Longitude) / 2
	surface, ok := b.classifier.Classify(midLat, midLon)
	if !ok {
		return
	}
	seg := model.TerrainSegment{
		Start:   prev,
		End:     curr,
		Surface: surface,
		DistanceM: geo.Haversine3D(
			prev.Latitude, prev.Longitude, prev.ElevationM,
			curr.Latitude, curr.Longitude, curr.ElevationM,
		),
	}
	b.mu.Lock()
	b.segments = append(b.segments, seg)
	b.mu.Unlock()
}

// Drain returns accumulated segments and clears the builder.
func (b *SegmentBuilder) Drain() []model.TerrainSegment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.segments
	b.segments = nil
	return out
}

// Len reports the number of pending segments.
func (b *SegmentBuilder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.segments)
}

// WeightedMultiplier averages the energy-cost multipliers of the given
// segments, weighted by distance. Empty input is the pavement baseline.
func WeightedMultiplier(segments []model.TerrainSegment) float64 {
	var total, weighted float64
	for _, seg := range segments {
		total += seg.DistanceM
		weighted += seg.DistanceM * Multiplier(seg.Surface)
	}
	if total <= 0 {
		return 1.0
	}
	return weighted / total
}
