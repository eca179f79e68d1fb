package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkrajina/gpxgo/gpx"

	"github.com/rucktrack/sessionkit/internal/model"
)

func walkSamples(n int) []model.LocationSample {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	samples := make([]model.LocationSample, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, model.NewLocationSample(
			47.60+float64(i)*0.0001, -122.33, 100+float64(i), 5, 1.4,
			start.Add(time.Duration(i)*8*time.Second),
		))
	}
	return samples
}

func TestGPXRoundTrip(t *testing.T) {
	t.Parallel()

	samples := walkSamples(5)
	data, err := ToGPX("42", samples)
	require.NoError(t, err)

	doc, err := gpx.ParseBytes(data)
	require.NoError(t, err)
	require.Len(t, doc.Tracks, 1)
	require.Len(t, doc.Tracks[0].Segments, 1)

	points := doc.Tracks[0].Segments[0].Points
	require.Len(t, points, 5)
	assert.InDelta(t, samples[0].Latitude, points[0].Latitude, 1e-9)
	assert.InDelta(t, samples[4].ElevationM, points[4].Elevation.Value(), 1e-9)
	assert.True(t, points[2].Timestamp.Equal(samples[2].Timestamp))
}

func TestToGPXRejectsEmpty(t *testing.T) {
	t.Parallel()
	_, err := ToGPX("42", nil)
	assert.Error(t, err)
}

func TestLoadGPXFlattensTrack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "walk.gpx")
	require.NoError(t, WriteGPX(path, "42", walkSamples(4)))

	loaded, err := LoadGPX(path)
	require.NoError(t, err)
	require.Len(t, loaded, 4)
	assert.InDelta(t, 47.60, loaded[0].Latitude, 1e-9)
	assert.NotEmpty(t, loaded[0].ID, "loaded samples get fresh IDs")
}

func TestLoadGPXRejectsEmptyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "empty.gpx")
	doc := &gpx.GPX{Version: "1.1", Creator: creator}
	data, err := gpx.ToXml(doc, gpx.ToXmlParams{Version: "1.1"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = LoadGPX(path)
	assert.Error(t, err)
}

func TestElevationProfilePNG(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "profile.png")
	require.NoError(t, ElevationProfilePNG(path, "42", walkSamples(10)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
