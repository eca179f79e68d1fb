package upload

import (
	"context"
	"sync"
	"time"

	"github.com/rucktrack/sessionkit/internal/config"
	"github.com/rucktrack/sessionkit/internal/model"
	"github.com/rucktrack/sessionkit/internal/monitoring"
)

// Uploader delivers one task to the backend.
type Uploader interface {
	UploadBatch(ctx context.Context, task *model.UploadTask) error
}

// TaskStore is the durable fallback for tasks that cannot go over the
// network right now.
type TaskStore interface {
	SaveTask(task *model.UploadTask) error
	DeleteTask(id string) error
	PendingTasks() ([]*model.UploadTask, error)
	RebindSession(oldID, newID string) (int64, error)
}

// Stats counts every way a task can leave the queue. A task leaves only by
// acknowledgment, stale-drop, durable persistence, or session-stop clear.
// Retried counts transient re-queues; RetriedStale counts re-queues after a
// stale-session answer still below the drop ceiling.
type Stats struct {
	Enqueued         int
	Uploaded         int
	Retried          int
	RetriedStale     int
	DroppedStale     int
	PersistedRetry   int
	PersistedOffline int
	ClearedOnStop    int
}

// Queue is the FIFO pending-upload queue. One drain pass runs at a time;
// overlapping drains from the periodic timer and pressure-triggered force
// uploads collapse into the one already running.
type Queue struct {
	cfg      *config.Tuning
	uploader Uploader
	store    TaskStore
	sleep    func(time.Duration)

	mu       sync.Mutex
	pending  []*model.UploadTask
	inFlight bool
	stats    Stats
}

func NewQueue(cfg *config.Tuning, uploader Uploader, store TaskStore) *Queue {
	return &Queue{
		cfg:      cfg,
		uploader: uploader,
		store:    store,
		sleep:    time.Sleep,
	}
}

// Enqueue accepts a finalized batch. Tasks bound to a provisional local
// session ID never hit the network; they go straight to durable storage and
// are rebound once the backend confirms an ID.
func (q *Queue) Enqueue(task *model.UploadTask) error {
	q.mu.Lock()
	q.stats.Enqueued++
	if task.SessionID == "" || model.IsLocalSessionID(task.SessionID) {
		q.stats.PersistedOffline++
		q.mu.Unlock()
		monitoring.Logf("upload: offline redirect for task %s (session %s)", task.ID, task.SessionID)
		return q.store.SaveTask(task)
	}
	q.pending = append(q.pending, task)
	q.mu.Unlock()
	return nil
}

// Len reports the number of pending in-memory tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats returns a copy of the departure counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Drain delivers the queue in chunks with a short inter-chunk delay. Tasks
// that fail transiently are re-enqueued (bounded) or persisted; stale tasks
// are dropped after their own ceiling. Returns immediately when a drain is
// already in progress.
func (q *Queue) Drain(ctx context.Context) {
	q.mu.Lock()
	if q.inFlight {
		q.mu.Unlock()
		return
	}
	q.inFlight = true
	budget := len(q.pending)
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.inFlight = false
		q.mu.Unlock()
	}()

	chunkSize := q.cfg.GetUploadChunkSize()
	processed := 0
	for processed < budget {
		if ctx.Err() != nil {
			return
		}
		chunk := q.take(chunkSize, budget-processed)
		if len(chunk) == 0 {
			return
		}
		for _, task := range chunk {
			q.attempt(ctx, task)
			processed++
		}
		if processed < budget {
			q.sleep(q.cfg.GetInterChunkDelay())
		}
	}
}

// take pops up to n tasks (capped at remaining budget) from the head.
func (q *Queue) take(n, remaining int) []*model.UploadTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > remaining {
		n = remaining
	}
	if n > len(q.pending) {
		n = len(q.pending)
	}
	chunk := q.pending[:n]
	q.pending = q.pending[n:]
	return chunk
}

func (q *Queue) attempt(ctx context.Context, task *model.UploadTask) {
	attemptCtx, cancel := context.WithTimeout(ctx, q.cfg.GetAttemptTimeout())
	err := q.uploader.UploadBatch(attemptCtx, task)
	cancel()

	if err == nil {
		q.mu.Lock()
		q.stats.Uploaded++
		q.mu.Unlock()
		// Restored tasks also live in durable storage until acknowledged.
		if derr := q.store.DeleteTask(task.ID); derr != nil {
			monitoring.Logf("upload: delete acked task %s: %v", task.ID, derr)
		}
		return
	}

	if IsStale(err) {
		task.StaleRetryCount++
		if task.StaleRetryCount >= q.cfg.GetMaxStaleRetries() {
			// Deliberate data loss: the server already closed this session.
			q.mu.Lock()
			q.stats.DroppedStale++
			q.mu.Unlock()
			if derr := q.store.DeleteTask(task.ID); derr != nil {
				monitoring.Logf("upload: delete stale task %s: %v", task.ID, derr)
			}
			monitoring.Logf("upload: dropping stale task %s after %d attempts: %v",
				task.ID, task.StaleRetryCount, err)
			return
		}
		q.requeue(task, &q.stats.RetriedStale)
		return
	}

	task.RetryCount++
	if task.RetryCount >= q.cfg.GetMaxRetries() {
		if serr := q.store.SaveTask(task); serr != nil {
			// Storage failed too; keep the task in memory rather than lose it.
			monitoring.Logf("upload: persist task %s failed, requeueing: %v", task.ID, serr)
			q.requeue(task, &q.stats.Retried)
			return
		}
		q.mu.Lock()
		q.stats.PersistedRetry++
		q.mu.Unlock()
		monitoring.Logf("upload: task %s persisted after %d retries: %v",
			task.ID, task.RetryCount, err)
		return
	}
	q.requeue(task, &q.stats.Retried)
}

// requeue puts a failed task back at the tail and bumps the given stat,
// which must be a field of q.stats.
func (q *Queue) requeue(task *model.UploadTask, stat *int) {
	q.mu.Lock()
	*stat++
	q.pending = append(q.pending, task)
	q.mu.Unlock()
}

// ConfirmSession rebinds pending and stored tasks from a provisional local
// ID to the backend-confirmed one, then restores the stored tasks so they
// can finally go over the network.
func (q *Queue) ConfirmSession(oldID, newID string) error {
	q.mu.Lock()
	for _, task := range q.pending {
		if task.SessionID == oldID {
			task.SessionID = newID
		}
	}
	q.mu.Unlock()

	if _, err := q.store.RebindSession(oldID, newID); err != nil {
		return err
	}
	return q.RestorePending()
}

// RestorePending loads durable tasks with network-ready session IDs back
// into the queue for at-least-once redelivery. The stored copy stays until
// the upload is acknowledged.
func (q *Queue) RestorePending() error {
	stored, err := q.store.PendingTasks()
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	inMem := make(map[string]bool, len(q.pending))
	for _, task := range q.pending {
		inMem[task.ID] = true
	}
	restored := 0
	for _, task := range stored {
		if model.IsLocalSessionID(task.SessionID) || inMem[task.ID] {
			continue
		}
		q.pending = append(q.pending, task)
		restored++
	}
	if restored > 0 {
		monitoring.Logf("upload: restored %d stored tasks", restored)
	}
	return nil
}

// OnSessionStop ends the queue's work for this session. By default pending
// tasks skip a final flush, so a session the server is about to finalize
// does not generate failed-request noise; they move to durable storage
// instead, where the next restore redelivers them. FlushOnStop makes the
// clear preceded by one last drain.
func (q *Queue) OnSessionStop(ctx context.Context) {
	if q.cfg.GetFlushOnStop() {
		q.Drain(ctx)
	}
	q.mu.Lock()
	remaining := q.pending
	q.pending = nil
	q.stats.ClearedOnStop += len(remaining)
	q.mu.Unlock()
	if len(remaining) == 0 {
		return
	}
	persisted := 0
	for _, task := range remaining {
		if err := q.store.SaveTask(task); err != nil {
			monitoring.Logf("upload: persist task %s on stop: %v", task.ID, err)
			continue
		}
		persisted++
	}
	monitoring.Logf("upload: cleared %d pending tasks on session stop, %d persisted",
		len(remaining), persisted)
}
