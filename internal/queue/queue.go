// Package queue runs queued conversions in the background. Jobs are
// persisted in a Pebble database before they are acknowledged, so a
// restart replays whatever was still pending.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"media-conversions/internal/logging"
	"media-conversions/internal/manipulator"
	"media-conversions/internal/media"
	"media-conversions/internal/metrics"
	"media-conversions/internal/workers"
)

const keyPrefix = "job/"

// Performer runs the conversions of one job.
type Performer interface {
	RegenerateByID(ctx context.Context, id int64, names []string, onlyMissing bool) (manipulator.Results, error)
}

// Gate holds a worker back before it starts a job, e.g. while memory is
// under pressure.
type Gate interface {
	Wait(ctx context.Context) error
}

// Config configures a Queue.
type Config struct {
	// Dir is the Pebble data directory.
	Dir string
	// Workers defaults to workers.ForMixed(8).
	Workers int
	// Buffer is the number of jobs handed to the pool ahead of the workers.
	Buffer int
	// Gate is optional. A job whose wait fails stays stored for the next
	// Start.
	Gate Gate
}

type record struct {
	Job        manipulator.Job `json:"job"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

type entry struct {
	key []byte
	rec record
}

var _ manipulator.Dispatcher = (*Queue)(nil)

// Queue is a durable manipulator.Dispatcher.
type Queue struct {
	db        *pebble.DB
	performer Performer
	cfg       Config

	mu      sync.Mutex
	started bool
	closed  bool
	pool    *workers.Pool[entry]
	cancel  context.CancelFunc

	seq   atomic.Uint64
	depth atomic.Int64
}

// Open opens (or creates) the job store and counts pending jobs. Nothing
// runs until Start.
func Open(cfg Config, performer Performer) (*Queue, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = workers.ForMixed(8)
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = cfg.Workers * 4
	}
	db, err := pebble.Open(cfg.Dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open job store %s: %w", cfg.Dir, err)
	}

	q := &Queue{db: db, performer: performer, cfg: cfg}
	pending, err := q.scan()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, e := range pending {
		if _, seq, ok := parseKey(e.key); ok && seq > q.seq.Load() {
			q.seq.Store(seq)
		}
	}
	q.depth.Store(int64(len(pending)))
	metrics.QueueDepth.Set(float64(len(pending)))

	logging.Info("Job queue opened at %s with %d pending jobs", cfg.Dir, len(pending))
	return q, nil
}

func jobKey(mediaID int64, seq uint64) []byte {
	return fmt.Appendf(nil, "%s%020d/%020d", keyPrefix, mediaID, seq)
}

func parseKey(key []byte) (mediaID int64, seq uint64, ok bool) {
	_, err := fmt.Sscanf(string(key), keyPrefix+"%d/%d", &mediaID, &seq)
	return mediaID, seq, err == nil
}

// scan returns every stored job in key order.
func (q *Queue) scan() ([]entry, error) {
	iter, err := q.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte("job0"),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = iter.Close() }()

	var entries []entry
	for iter.First(); iter.Valid(); iter.Next() {
		var rec record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			logging.Warn("Skipping unreadable job %s: %v", iter.Key(), err)
			continue
		}
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		entries = append(entries, entry{key: key, rec: rec})
	}
	return entries, iter.Error()
}

// Dispatch persists job and, once the queue is started, hands it to a
// worker.
func (q *Queue) Dispatch(ctx context.Context, job manipulator.Job) error {
	if job.MediaID <= 0 || len(job.Conversions) == 0 {
		return fmt.Errorf("invalid job for media %d: %v", job.MediaID, job.Conversions)
	}

	rec := record{Job: job, EnqueuedAt: time.Now()}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := jobKey(job.MediaID, q.seq.Add(1))

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("queue closed")
	}
	if err := q.db.Set(key, data, pebble.Sync); err != nil {
		q.mu.Unlock()
		return fmt.Errorf("persist job: %w", err)
	}
	started, pool := q.started, q.pool
	q.mu.Unlock()

	metrics.QueueJobsTotal.WithLabelValues("enqueued").Inc()
	metrics.QueueDepth.Set(float64(q.depth.Add(1)))

	if !started {
		return nil
	}
	if err := pool.Submit(ctx, entry{key: key, rec: rec}); err != nil {
		// Persisted; the next Start replays it.
		logging.Warn("Job %s stored but not scheduled: %v", key, err)
	}
	return nil
}

// Start launches the workers and replays stored jobs.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return errors.New("queue already started or closed")
	}
	pending, err := q.scan()
	if err != nil {
		q.mu.Unlock()
		return fmt.Errorf("replay jobs: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel
	q.pool = workers.NewPool(q.cfg.Workers, q.cfg.Buffer, q.handle)
	q.pool.OnBusy = metrics.QueueWorkersBusy.Add
	q.pool.Start(runCtx)
	q.started = true
	pool := q.pool
	q.mu.Unlock()

	logging.Info("Job queue started with %d workers, replaying %d jobs", pool.Size(), len(pending))
	for _, e := range pending {
		if err := pool.Submit(ctx, e); err != nil {
			return fmt.Errorf("replay job %s: %w", e.key, err)
		}
		metrics.QueueJobsTotal.WithLabelValues("replayed").Inc()
	}
	return nil
}

// handle runs one job and removes it. A job is attempted once; failed
// conversions keep their generated flag false and can be regenerated.
func (q *Queue) handle(ctx context.Context, e entry) {
	job := e.rec.Job
	if q.cfg.Gate != nil {
		if err := q.cfg.Gate.Wait(ctx); err != nil {
			logging.Warn("Job %s for media %d deferred: %v", e.key, job.MediaID, err)
			metrics.QueueJobsTotal.WithLabelValues("deferred").Inc()
			return
		}
	}
	results, err := q.performer.RegenerateByID(ctx, job.MediaID, job.Conversions, job.OnlyMissing)

	status := "success"
	switch {
	case errors.Is(err, media.ErrNotFound):
		logging.Info("Media %d is gone, dropping job %s", job.MediaID, e.key)
	case err != nil:
		status = "error"
		logging.Error("Job %s for media %d failed: %v", e.key, job.MediaID, err)
	case results.Err() != nil:
		status = "error"
		logging.Warn("Job %s for media %d: %v", e.key, job.MediaID, results.Err())
	default:
		logging.Debug("Job %s for media %d generated %v", e.key, job.MediaID, results.Generated())
	}
	metrics.QueueJobsTotal.WithLabelValues(status).Inc()

	if err := q.db.Delete(e.key, pebble.Sync); err != nil {
		logging.Error("Failed to delete job %s: %v", e.key, err)
		return
	}
	metrics.QueueDepth.Set(float64(q.depth.Add(-1)))
}

// Depth returns the number of stored jobs, running ones included.
func (q *Queue) Depth() int {
	return int(q.depth.Load())
}

// Pending returns the stored jobs in key order.
func (q *Queue) Pending() ([]manipulator.Job, error) {
	entries, err := q.scan()
	if err != nil {
		return nil, err
	}
	jobs := make([]manipulator.Job, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, e.rec.Job)
	}
	return jobs, nil
}

// Stop waits for the workers to finish the scheduled jobs and closes the
// store.
func (q *Queue) Stop() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	pool, cancel := q.pool, q.cancel
	q.started, q.closed = false, true
	q.mu.Unlock()

	if pool != nil {
		pool.Close()
		cancel()
	}
	logging.Info("Job queue stopped with %d pending jobs", q.Depth())
	return q.db.Close()
}
