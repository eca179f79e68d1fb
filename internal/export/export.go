// Package export renders a finished session's accepted samples to GPX and
// to an elevation-profile PNG, and loads GPX files back for replay.
package export

import (
	"fmt"
	"os"
	"time"

	"github.com/tkrajina/gpxgo/gpx"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/rucktrack/sessionkit/internal/geo"
	"github.com/rucktrack/sessionkit/internal/model"
)

const creator = "sessionkit"

// ToGPX renders samples as a single-track GPX 1.1 document.
func ToGPX(sessionID string, samples []model.LocationSample) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to export")
	}

	points := make([]gpx.GPXPoint, 0, len(samples))
	for _, s := range samples {
		p := gpx.GPXPoint{Timestamp: s.Timestamp}
		p.Latitude = s.Latitude
		p.Longitude = s.Longitude
		p.Elevation = *gpx.NewNullableFloat64(s.ElevationM)
		points = append(points, p)
	}

	start := samples[0].Timestamp
	doc := &gpx.GPX{
		Version: "1.1",
		Creator: creator,
		Name:    sessionID,
		Time:    &start,
		Tracks: []gpx.GPXTrack{{
			Name:     sessionID,
			Segments: []gpx.GPXTrackSegment{{Points: points}},
		}},
	}
	return gpx.ToXml(doc, gpx.ToXmlParams{Version: "1.1", Indent: true})
}

// WriteGPX renders samples to a GPX file at path.
func WriteGPX(path, sessionID string, samples []model.LocationSample) error {
	data, err := ToGPX(sessionID, samples)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadGPX reads a GPX file and flattens its track points into location
// samples, preserving point order. Points without a timestamp get synthetic
// one-second spacing so replay pacing stays plausible.
func LoadGPX(path string) ([]model.LocationSample, error) {
	doc, err := gpx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse gpx %s: %w", path, err)
	}

	var samples []model.LocationSample
	synthetic := time.Now().UTC()
	appendPoint := func(p *gpx.GPXPoint) {
		ts := p.Timestamp
		if ts.IsZero() {
			ts = synthetic.Add(time.Duration(len(samples)) * time.Second)
		}
		samples = append(samples, model.NewLocationSample(
			p.Latitude, p.Longitude, p.Elevation.Value(),
			0, 0, ts,
		))
	}
	for _, track := range doc.Tracks {
		for _, segment := range track.Segments {
			for i := range segment.Points {
				appendPoint(&segment.Points[i])
			}
		}
	}
	if len(samples) == 0 {
		for _, route := range doc.Routes {
			for i := range route.Points {
				appendPoint(&route.Points[i])
			}
		}
	}
	if len(samples) < 2 {
		return nil, fmt.Errorf("gpx %s carries no usable track points", path)
	}
	return samples, nil
}

// ElevationProfilePNG plots elevation against cumulative distance and saves
// the chart as a PNG.
func ElevationProfilePNG(path, sessionID string, samples []model.LocationSample) error {
	if len(samples) < 2 {
		return fmt.Errorf("need at least two samples for a profile")
	}

	pts := make(plotter.XYs, 0, len(samples))
	var distM float64
	for i, s := range samples {
		if i > 0 {
			prev := samples[i-1]
			distM += geo.Haversine3D(
				prev.Latitude, prev.Longitude, prev.ElevationM,
				s.Latitude, s.Longitude, s.ElevationM,
			)
		}
		pts = append(pts, plotter.XY{X: distM / 1000.0, Y: s.ElevationM})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Elevation Profile - %s", sessionID)
	p.X.Label.Text = "Distance (km)"
	p.Y.Label.Text = "Elevation (m)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Add(plotter.NewGrid())

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
