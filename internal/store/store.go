// Package store provides the durable sqlite-backed storage for the upload
// pipeline: overflow/offline upload tasks and the crash-recovery session
// snapshot. Schema is managed by embedded migrations.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/rucktrack/sessionkit/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the sqlite handle. Safe for concurrent use; database/sql
// serializes access.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store pragmas: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveTask persists an upload task. Saving the same task ID twice replaces
// it, so re-persisting after further retries is safe.
func (s *Store) SaveTask(task *model.UploadTask) error {
	_, err := s.db.Exec(`
		INSERT INTO upload_tasks (id, type, session_id, payload, retry_count, stale_retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			retry_count = excluded.retry_count,
			stale_retry_count = excluded.stale_retry_count`,
		task.ID, string(task.Type), task.SessionID, []byte(task.Payload),
		task.RetryCount, task.StaleRetryCount, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

// PendingTasks returns every stored task, oldest first, for at-least-once
// redelivery after a restart.
func (s *Store) PendingTasks() ([]*model.UploadTask, error) {
	rows, err := s.db.Query(`
		SELECT id, type, session_id, payload, retry_count, stale_retry_count, created_at
		FROM upload_tasks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("load pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.UploadTask
	for rows.Next() {
		var t model.UploadTask
		var taskType string
		var payload []byte
		if err := rows.Scan(&t.ID, &taskType, &t.SessionID, &payload,
			&t.RetryCount, &t.StaleRetryCount, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Type = model.TaskType(taskType)
		t.Payload = payload
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a task after successful delivery.
func (s *Store) DeleteTask(id string) error {
	_, err := s.db.Exec(`DELETE FROM upload_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// TaskCount reports the number of stored tasks.
func (s *Store) TaskCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM upload_tasks`).Scan(&n)
	return n, err
}

// RebindSession rewrites the session ID on stored tasks, used when the
// backend confirms a provisional local ID.
func (s *Store) RebindSession(oldID, newID string) (int64, error) {
	res, err := s.db.Exec(`UPDATE upload_tasks SET session_id = ? WHERE session_id = ?`, newID, oldID)
	if err != nil {
		return 0, fmt.Errorf("rebind session %s: %w", oldID, err)
	}
	return res.RowsAffected()
}

// Snapshot is the crash-recovery record for the active session. One row at
// most; overwritten on every persistence tick.
type Snapshot struct {
	SessionID      string
	StartTime      time.Time
	TotalPaused    time.Duration
	Paused         bool
	DistanceM      float64
	ElevationGainM float64
	ElevationLossM float64
	SampleCount    int
	SavedAt        time.Time
}

// SaveSnapshot upserts the single crash-recovery row.
func (s *Store) SaveSnapshot(snap Snapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO session_snapshot
			(id, session_id, start_time, total_paused_ms, paused, distance_m,
			 elevation_gain_m, elevation_loss_m, sample_count, saved_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			start_time = excluded.start_time,
			total_paused_ms = excluded.total_paused_ms,
			paused = excluded.paused,
			distance_m = excluded.distance_m,
			elevation_gain_m = excluded.elevation_gain_m,
			elevation_loss_m = excluded.elevation_loss_m,
			sample_count = excluded.sample_count,
			saved_at = excluded.saved_at`,
		snap.SessionID, snap.StartTime, snap.TotalPaused.Milliseconds(),
		boolToInt(snap.Paused), snap.DistanceM, snap.ElevationGainM,
		snap.ElevationLossM, snap.SampleCount, snap.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot, or ok=false when none exists.
func (s *Store) LoadSnapshot() (Snapshot, bool, error) {
	var snap Snapshot
	var pausedMs int64
	var paused int
	err := s.db.QueryRow(`
		SELECT session_id, start_time, total_paused_ms, paused, distance_m,
		       elevation_gain_m, elevation_loss_m, sample_count, saved_at
		FROM session_snapshot WHERE id = 1`).Scan(
		&snap.SessionID, &snap.StartTime, &pausedMs, &paused, &snap.DistanceM,
		&snap.ElevationGainM, &snap.ElevationLossM, &snap.SampleCount, &snap.SavedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	snap.TotalPaused = time.Duration(pausedMs) * time.Millisecond
	snap.Paused = paused != 0
	return snap, true, nil
}

// ClearSnapshot deletes the crash-recovery row after a clean completion.
func (s *Store) ClearSnapshot() error {
	_, err := s.db.Exec(`DELETE FROM session_snapshot WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
