// Command replay feeds a GPX file through the full tracking pipeline as if
// it were a live session, then writes the session's GPX and elevation
// profile next to the input. Useful for exercising validation, metrics, and
// the upload path against recorded walks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/rucktrack/sessionkit/internal/config"
	"github.com/rucktrack/sessionkit/internal/export"
	"github.com/rucktrack/sessionkit/internal/httputil"
	"github.com/rucktrack/sessionkit/internal/model"
	"github.com/rucktrack/sessionkit/internal/pipeline"
	"github.com/rucktrack/sessionkit/internal/security"
	"github.com/rucktrack/sessionkit/internal/sensors"
	"github.com/rucktrack/sessionkit/internal/session"
	"github.com/rucktrack/sessionkit/internal/store"
	"github.com/rucktrack/sessionkit/internal/timeutil"
	"github.com/rucktrack/sessionkit/internal/units"
	"github.com/rucktrack/sessionkit/internal/upload"
	"github.com/rucktrack/sessionkit/internal/version"
)

var errOffline = errors.New("replay running offline")

// offlineBackend keeps the pipeline on its provisional local session ID, so
// every batch lands in durable storage instead of the network.
type offlineBackend struct{}

func (offlineBackend) CreateSession(context.Context, upload.SessionParams) (string, error) {
	return "", errOffline
}
func (offlineBackend) StartSession(context.Context, string) error  { return errOffline }
func (offlineBackend) PauseSession(context.Context, string) error  { return errOffline }
func (offlineBackend) ResumeSession(context.Context, string) error { return errOffline }
func (offlineBackend) CompleteSession(context.Context, string, upload.CompletionSummary) error {
	return errOffline
}
func (offlineBackend) UploadBatch(context.Context, *model.UploadTask) error { return errOffline }

func main() {
	var gpxPath string
	var dbPath string
	var baseURL string
	var authToken string
	var cfgPath string
	var outDir string
	var ruckKg float64
	var userKg float64
	var gender string
	var unitPref string
	var speedup float64
	var showVersion bool

	flag.StringVar(&gpxPath, "gpx", "", "path to the GPX file to replay")
	flag.StringVar(&dbPath, "db", "sessionkit.db", "path to the sqlite store")
	flag.StringVar(&baseURL, "base-url", "", "backend base URL (empty = offline)")
	flag.StringVar(&authToken, "token", "", "backend bearer token")
	flag.StringVar(&cfgPath, "config", "", "optional tuning JSON")
	flag.StringVar(&outDir, "out", "", "output directory (default: beside the input)")
	flag.Float64Var(&ruckKg, "ruck", 10, "ruck weight in kg")
	flag.Float64Var(&userKg, "weight", 75, "user weight in kg")
	flag.StringVar(&gender, "gender", "", "gender for the calorie model (male/female)")
	flag.StringVar(&unitPref, "units", units.Metric, "display units (metric/standard)")
	flag.Float64Var(&speedup, "speed", 60, "replay acceleration factor")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("sessionkit replay %s\n", version.String())
		return
	}
	if gpxPath == "" {
		log.Fatalf("-gpx must be provided")
	}
	if !units.IsValid(unitPref) {
		log.Fatalf("unknown unit preference %q (want one of %v)", unitPref, units.ValidPreferences)
	}
	if speedup <= 0 {
		speedup = 1
	}
	if outDir == "" {
		outDir = filepath.Dir(gpxPath)
	}

	samples, err := export.LoadGPX(gpxPath)
	if err != nil {
		log.Fatalf("load gpx: %v", err)
	}
	fmt.Printf("loaded %d points from %s\n", len(samples), gpxPath)

	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	var backend pipeline.Backend = offlineBackend{}
	if baseURL != "" {
		backend = upload.NewAPIClient(baseURL, authToken, httputil.NewStandardClient(nil))
	}

	locSrc := sensors.NewScriptedLocationSource()
	hrSrc := sensors.NewScriptedHeartRateSource()

	cfg := config.Default()
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	p := pipeline.New(pipeline.Deps{
		Config:    cfg,
		Clock:     timeutil.RealClock{},
		Backend:   backend,
		Storage:   st,
		LocSource: locSrc,
		HRSource:  hrSrc,
	})

	if snap, ok, err := p.RecoverSnapshot(); err != nil {
		log.Fatalf("recover snapshot: %v", err)
	} else if ok {
		fmt.Printf("recovered snapshot from interrupted session %s (%.0f m)\n",
			snap.SessionID, snap.DistanceM)
	}

	ctx := context.Background()
	if err := p.StartSession(ctx, session.Params{
		RuckWeightKg:   ruckKg,
		UserWeightKg:   userKg,
		Gender:         gender,
		UnitPreference: unitPref,
	}); err != nil {
		log.Fatalf("start session: %v", err)
	}

	for i, s := range samples {
		if i > 0 {
			gap := s.Timestamp.Sub(samples[i-1].Timestamp)
			if gap > 0 {
				time.Sleep(time.Duration(float64(gap) / speedup))
			}
		}
		locSrc.Emit(s)
	}

	// Let the consumer goroutine catch up before stopping.
	time.Sleep(200 * time.Millisecond)
	final := p.State()
	p.StopSession(ctx)

	fmt.Printf("replayed session %s: %.2f %s, +%.0f/-%.0f elevation, %.0f kcal, %d samples buffered at stop\n",
		final.Session.SessionID,
		units.Distance(final.Location.DistanceM, unitPref), units.Label(unitPref),
		units.Elevation(final.Location.ElevationGainM, unitPref),
		units.Elevation(final.Location.ElevationLossM, unitPref),
		final.Location.CaloriesKcal, final.Location.SampleCount,
	)

	base := security.SanitizeFilename(strings.TrimSuffix(filepath.Base(gpxPath), filepath.Ext(gpxPath)))
	gpxOut := filepath.Join(outDir, base+"-replayed.gpx")
	if err := export.WriteGPX(gpxOut, final.Session.SessionID, samples); err != nil {
		log.Fatalf("write gpx: %v", err)
	}
	pngOut := filepath.Join(outDir, base+"-profile.png")
	if err := export.ElevationProfilePNG(pngOut, final.Session.SessionID, samples); err != nil {
		log.Fatalf("write profile: %v", err)
	}
	fmt.Printf("wrote %s and %s\n", gpxOut, pngOut)
}
