// Package config holds the tuning parameters for the session tracking
// pipeline. Every threshold has a hard-coded default; a JSON file can
// override any subset of them, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Tuning is the root tuning configuration. All fields are optional; nil
// means "use the default". Durations are strings like "30s" so the same
// JSON works for startup configuration and runtime updates.
type Tuning struct {
	// Location validation
	MinDisplacementM   *float64 `json:"min_displacement_m,omitempty"`
	AccuracyCeilingM   *float64 `json:"accuracy_ceiling_m,omitempty"`
	MaxImpliedSpeedMps *float64 `json:"max_implied_speed_mps,omitempty"`
	SettleDistanceM    *float64 `json:"settle_distance_m,omitempty"`

	// Location buffer
	LocationBufferCap      *int `json:"location_buffer_cap,omitempty"`
	LocationPressureMark   *int `json:"location_pressure_mark,omitempty"`
	LocationOffloadBatch   *int `json:"location_offload_batch,omitempty"`

	// Pace
	PaceWarmup         *string  `json:"pace_warmup,omitempty"`
	PaceCacheInterval  *string  `json:"pace_cache_interval,omitempty"`
	PaceWindowSize     *int     `json:"pace_window_size,omitempty"`
	PaceMinWindow      *int     `json:"pace_min_window,omitempty"`
	WalkingSpeedMps    *float64 `json:"walking_speed_mps,omitempty"`

	// Elevation
	ElevationNoiseM           *float64 `json:"elevation_noise_m,omitempty"`
	ElevationNoiseBarometricM *float64 `json:"elevation_noise_barometric_m,omitempty"`
	BarometricAltimeter       *bool    `json:"barometric_altimeter,omitempty"`

	// Heart rate
	HeartRateBufferCap     *int    `json:"heart_rate_buffer_cap,omitempty"`
	HeartRatePressureMark  *int    `json:"heart_rate_pressure_mark,omitempty"`
	HeartRateOffloadBatch  *int    `json:"heart_rate_offload_batch,omitempty"`
	HeartRateUploadTrigger *int    `json:"heart_rate_upload_trigger,omitempty"`
	HeartRateUploadEvery   *string `json:"heart_rate_upload_every,omitempty"`

	// Upload queue
	UploadInterval  *string `json:"upload_interval,omitempty"`
	UploadChunkSize *int    `json:"upload_chunk_size,omitempty"`
	InterChunkDelay *string `json:"inter_chunk_delay,omitempty"`
	AttemptTimeout  *string `json:"attempt_timeout,omitempty"`
	MaxRetries      *int    `json:"max_retries,omitempty"`
	MaxStaleRetries *int    `json:"max_stale_retries,omitempty"`
	FlushOnStop     *bool   `json:"flush_on_stop,omitempty"`

	// Watchdog
	WatchdogInterval     *string `json:"watchdog_interval,omitempty"`
	RawSilenceThreshold  *string `json:"raw_silence_threshold,omitempty"`
	RejectionThreshold   *string `json:"rejection_threshold,omitempty"`
	HealthyCadenceWindow *string `json:"healthy_cadence_window,omitempty"`
	MaxPlainRestarts     *int    `json:"max_plain_restarts,omitempty"`
	MaxBoostedRestarts   *int    `json:"max_boosted_restarts,omitempty"`

	// Memory pressure (thresholds in MB)
	MemoryInterval     *string  `json:"memory_interval,omitempty"`
	MemoryLowMB        *float64 `json:"memory_low_mb,omitempty"`
	MemoryModerateMB   *float64 `json:"memory_moderate_mb,omitempty"`
	MemoryHighMB       *float64 `json:"memory_high_mb,omitempty"`
	MemoryCriticalMB   *float64 `json:"memory_critical_mb,omitempty"`
	ModeSwitchDebounce *string  `json:"mode_switch_debounce,omitempty"`

	// Timer coordinator
	MainInterval         *string `json:"main_interval,omitempty"`
	PersistenceInterval  *string `json:"persistence_interval,omitempty"`
	ConnectivityInterval *string `json:"connectivity_interval,omitempty"`
	HealthCheckInterval  *string `json:"health_check_interval,omitempty"`
	StalenessMultiplier  *int    `json:"staleness_multiplier,omitempty"`
}

// Default returns a Tuning with every field nil, so the Get* accessors
// answer with the built-in defaults.
func Default() *Tuning {
	return &Tuning{}
}

// Load reads a Tuning from a JSON file. Fields omitted from the file retain
// their defaults.
func Load(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that set values are sane.
func (c *Tuning) Validate() error {
	for name, d := range map[string]*string{
		"pace_warmup":           c.PaceWarmup,
		"pace_cache_interval":   c.PaceCacheInterval,
		"heart_rate_upload_every": c.HeartRateUploadEvery,
		"upload_interval":       c.UploadInterval,
		"inter_chunk_delay":     c.InterChunkDelay,
		"attempt_timeout":       c.AttemptTimeout,
		"watchdog_interval":     c.WatchdogInterval,
		"raw_silence_threshold": c.RawSilenceThreshold,
		"rejection_threshold":   c.RejectionThreshold,
		"healthy_cadence_window": c.HealthyCadenceWindow,
		"memory_interval":       c.MemoryInterval,
		"mode_switch_debounce":  c.ModeSwitchDebounce,
		"main_interval":         c.MainInterval,
		"persistence_interval":  c.PersistenceInterval,
		"connectivity_interval": c.ConnectivityInterval,
		"health_check_interval": c.HealthCheckInterval,
	} {
		if d != nil && *d != "" {
			if _, err := time.ParseDuration(*d); err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, *d, err)
			}
		}
	}

	if c.LocationBufferCap != nil && c.LocationPressureMark != nil &&
		*c.LocationPressureMark >= *c.LocationBufferCap {
		return fmt.Errorf("location_pressure_mark (%d) must be below location_buffer_cap (%d)",
			*c.LocationPressureMark, *c.LocationBufferCap)
	}
	if c.HeartRateBufferCap != nil && c.HeartRatePressureMark != nil &&
		*c.HeartRatePressureMark >= *c.HeartRateBufferCap {
		return fmt.Errorf("heart_rate_pressure_mark (%d) must be below heart_rate_buffer_cap (%d)",
			*c.HeartRatePressureMark, *c.HeartRateBufferCap)
	}
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", *c.MaxRetries)
	}
	if c.MaxStaleRetries != nil && *c.MaxStaleRetries < 0 {
		return fmt.Errorf("max_stale_retries must be non-negative, got %d", *c.MaxStaleRetries)
	}
	if c.AccuracyCeilingM != nil && *c.AccuracyCeilingM <= 0 {
		return fmt.Errorf("accuracy_ceiling_m must be positive, got %f", *c.AccuracyCeilingM)
	}
	return nil
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// Location validation accessors.

func (c *Tuning) GetMinDisplacementM() float64   { return floatOr(c.MinDisplacementM, 5.0) }
func (c *Tuning) GetAccuracyCeilingM() float64   { return floatOr(c.AccuracyCeilingM, 50.0) }
func (c *Tuning) GetMaxImpliedSpeedMps() float64 { return floatOr(c.MaxImpliedSpeedMps, 12.0) }
func (c *Tuning) GetSettleDistanceM() float64    { return floatOr(c.SettleDistanceM, 20.0) }

// Location buffer accessors.

func (c *Tuning) GetLocationBufferCap() int    { return intOr(c.LocationBufferCap, 1000) }
func (c *Tuning) GetLocationPressureMark() int { return intOr(c.LocationPressureMark, 800) }
func (c *Tuning) GetLocationOffloadBatch() int { return intOr(c.LocationOffloadBatch, 200) }

// Pace accessors.

func (c *Tuning) GetPaceWarmup() time.Duration        { return durationOr(c.PaceWarmup, 60*time.Second) }
func (c *Tuning) GetPaceCacheInterval() time.Duration { return durationOr(c.PaceCacheInterval, 5*time.Second) }
func (c *Tuning) GetPaceWindowSize() int              { return intOr(c.PaceWindowSize, 10) }
func (c *Tuning) GetPaceMinWindow() int               { return intOr(c.PaceMinWindow, 3) }
func (c *Tuning) GetWalkingSpeedMps() float64         { return floatOr(c.WalkingSpeedMps, 1.9) }

// Elevation accessors.

func (c *Tuning) GetElevationNoiseM() float64 { return floatOr(c.ElevationNoiseM, 0.5) }
func (c *Tuning) GetElevationNoiseBarometricM() float64 {
	return floatOr(c.ElevationNoiseBarometricM, 0.1)
}

// GetBarometricAltimeter reports whether the device fuses a barometric
// altimeter into its fixes, which selects the tighter elevation noise gate.
func (c *Tuning) GetBarometricAltimeter() bool {
	if c.BarometricAltimeter == nil {
		return false
	}
	return *c.BarometricAltimeter
}

// Heart-rate accessors.

func (c *Tuning) GetHeartRateBufferCap() int     { return intOr(c.HeartRateBufferCap, 300) }
func (c *Tuning) GetHeartRatePressureMark() int  { return intOr(c.HeartRatePressureMark, 250) }
func (c *Tuning) GetHeartRateOffloadBatch() int  { return intOr(c.HeartRateOffloadBatch, 50) }
func (c *Tuning) GetHeartRateUploadTrigger() int { return intOr(c.HeartRateUploadTrigger, 100) }
func (c *Tuning) GetHeartRateUploadEvery() time.Duration {
	return durationOr(c.HeartRateUploadEvery, 2*time.Minute)
}

// Upload queue accessors.

func (c *Tuning) GetUploadInterval() time.Duration  { return durationOr(c.UploadInterval, 2*time.Minute) }
func (c *Tuning) GetUploadChunkSize() int           { return intOr(c.UploadChunkSize, 10) }
func (c *Tuning) GetInterChunkDelay() time.Duration { return durationOr(c.InterChunkDelay, 500*time.Millisecond) }
func (c *Tuning) GetAttemptTimeout() time.Duration  { return durationOr(c.AttemptTimeout, 30*time.Second) }
func (c *Tuning) GetMaxRetries() int                { return intOr(c.MaxRetries, 3) }
func (c *Tuning) GetMaxStaleRetries() int           { return intOr(c.MaxStaleRetries, 10) }

// GetFlushOnStop reports whether the queue should attempt a final drain when
// the session stops. Default false: a session the server is about to
// finalise tends to answer late uploads with spurious 400s.
func (c *Tuning) GetFlushOnStop() bool {
	if c.FlushOnStop == nil {
		return false
	}
	return *c.FlushOnStop
}

// Watchdog accessors.

func (c *Tuning) GetWatchdogInterval() time.Duration { return durationOr(c.WatchdogInterval, 30*time.Second) }
func (c *Tuning) GetRawSilenceThreshold() time.Duration {
	return durationOr(c.RawSilenceThreshold, 60*time.Second)
}
func (c *Tuning) GetRejectionThreshold() time.Duration {
	return durationOr(c.RejectionThreshold, 90*time.Second)
}
func (c *Tuning) GetHealthyCadenceWindow() time.Duration {
	return durationOr(c.HealthyCadenceWindow, 30*time.Second)
}
func (c *Tuning) GetMaxPlainRestarts() int   { return intOr(c.MaxPlainRestarts, 3) }
func (c *Tuning) GetMaxBoostedRestarts() int { return intOr(c.MaxBoostedRestarts, 3) }

// Memory pressure accessors.

func (c *Tuning) GetMemoryInterval() time.Duration { return durationOr(c.MemoryInterval, 30*time.Second) }
func (c *Tuning) GetMemoryLowMB() float64          { return floatOr(c.MemoryLowMB, 200) }
func (c *Tuning) GetMemoryModerateMB() float64     { return floatOr(c.MemoryModerateMB, 300) }
func (c *Tuning) GetMemoryHighMB() float64         { return floatOr(c.MemoryHighMB, 400) }
func (c *Tuning) GetMemoryCriticalMB() float64     { return floatOr(c.MemoryCriticalMB, 500) }
func (c *Tuning) GetModeSwitchDebounce() time.Duration {
	return durationOr(c.ModeSwitchDebounce, 30*time.Second)
}

// Timer coordinator accessors.

func (c *Tuning) GetMainInterval() time.Duration { return durationOr(c.MainInterval, time.Second) }
func (c *Tuning) GetPersistenceInterval() time.Duration {
	return durationOr(c.PersistenceInterval, 60*time.Second)
}
func (c *Tuning) GetConnectivityInterval() time.Duration {
	return durationOr(c.ConnectivityInterval, 15*time.Second)
}
func (c *Tuning) GetHealthCheckInterval() time.Duration {
	return durationOr(c.HealthCheckInterval, 60*time.Second)
}
func (c *Tuning) GetStalenessMultiplier() int { return intOr(c.StalenessMultiplier, 3) }
