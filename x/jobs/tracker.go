package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compose-network/throne/x/prover"
)

var _ Service = (*Tracker)(nil)

type pending struct {
	id  string
	req prover.Request
}

// Tracker is an in-memory job tracker backed by a fixed worker pool;
// suitable for single-instance deployments.
type Tracker struct {
	cfg Config
	gen prover.Generator

	mu     sync.RWMutex
	jobs   map[string]*Job
	queue  chan pending
	closed bool

	now     func() time.Time
	metrics *Metrics
	log     zerolog.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New starts the workers and the periodic stats logger.
func New(ctx context.Context, gen prover.Generator, cfg Config, log zerolog.Logger) *Tracker {
	logger := log.With().Str("component", "proof-jobs").Logger()

	ctx, cancel := context.WithCancel(ctx)
	t := &Tracker{
		cfg:     cfg,
		gen:     gen,
		jobs:    make(map[string]*Job),
		queue:   make(chan pending, cfg.QueueSize),
		now:     time.Now,
		metrics: NewMetrics(),
		log:     logger,
		cancel:  cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		t.wg.Add(1)
		go t.worker(ctx, i)
	}
	t.wg.Add(1)
	go t.statsLogger(ctx)

	logger.Info().
		Int("workers", cfg.Workers).
		Int("queue_size", cfg.QueueSize).
		Dur("retention", cfg.Retention).
		Msg("Proof job tracker initialized")

	return t
}

// Submit enqueues req and returns the queued job without blocking.
func (t *Tracker) Submit(_ context.Context, req prover.Request) (Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return Job{}, ErrClosed
	}

	job := &Job{
		ID:        uuid.NewString(),
		State:     StateQueued,
		TrialID:   req.TrialID,
		PlayerID:  req.PlayerID,
		RoundID:   req.RoundID,
		CreatedAt: t.now(),
	}

	// Workers take t.mu before touching a job, so it is visible to them
	// even though it is queued first.
	select {
	case t.queue <- pending{id: job.ID, req: req}:
	default:
		t.metrics.Rejected.Inc()
		t.log.Warn().Int("queue_size", t.cfg.QueueSize).Msg("Proof job rejected, queue full")
		return Job{}, ErrQueueFull
	}

	t.jobs[job.ID] = job
	t.metrics.Transitions.WithLabelValues(string(StateQueued)).Inc()
	t.metrics.QueueDepth.Set(float64(len(t.queue)))

	t.log.Info().
		Str("job_id", job.ID).
		Str("trial_id", req.TrialID.Hex()).
		Uint32("round_id", req.RoundID).
		Msg("Proof job queued")

	return *job, nil
}

func (t *Tracker) Get(_ context.Context, id string) (Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, ok := t.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *job, nil
}

// List returns every tracked job, oldest first.
func (t *Tracker) List(_ context.Context) ([]Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *Tracker) worker(ctx context.Context, n int) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-t.queue:
			t.run(ctx, n, p)
		}
	}
}

func (t *Tracker) run(ctx context.Context, worker int, p pending) {
	t.update(p.id, func(j *Job) {
		now := t.now()
		j.State = StateProving
		j.StartedAt = &now
	})

	artifact, err := t.gen.Generate(ctx, p.req)

	t.update(p.id, func(j *Job) {
		now := t.now()
		j.FinishedAt = &now
		if err != nil {
			j.State = StateFailed
			j.Error = err.Error()
			return
		}
		j.State = StateComplete
		j.Artifact = artifact
	})

	if err != nil {
		t.log.Warn().Err(err).Str("job_id", p.id).Int("worker", worker).Msg("Proof job failed")
		return
	}
	t.log.Info().
		Str("job_id", p.id).
		Int("worker", worker).
		Bool("is_valid", artifact.Journal.IsValid).
		Msg("Proof job complete")
}

func (t *Tracker) update(id string, mutate func(*Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return
	}
	mutate(job)
	t.metrics.Transitions.WithLabelValues(string(job.State)).Inc()
	t.metrics.QueueDepth.Set(float64(len(t.queue)))
}

// prune drops finished jobs older than the retention window.
func (t *Tracker) prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.cfg.Retention)
	removed := 0
	for id, job := range t.jobs {
		if job.State.Done() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(t.jobs, id)
			removed++
		}
	}
	return removed
}

// GetStats returns tracker statistics
func (t *Tracker) GetStats() map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byState := make(map[string]int)
	for _, job := range t.jobs {
		byState[string(job.State)]++
	}
	return map[string]interface{}{
		"total_jobs":    len(t.jobs),
		"queue_depth":   len(t.queue),
		"jobs_by_state": byState,
		"worker_count":  t.cfg.Workers,
	}
}

// statsLogger periodically prunes old jobs and logs tracker statistics
func (t *Tracker) statsLogger(ctx context.Context) {
	defer t.wg.Done()

	interval := t.cfg.StatsInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned := t.prune()
			stats := t.GetStats()
			t.log.Info().
				Int("total_jobs", stats["total_jobs"].(int)).
				Int("queue_depth", stats["queue_depth"].(int)).
				Int("pruned", pruned).
				Interface("jobs_by_state", stats["jobs_by_state"]).
				Msg("Proof job statistics")
		}
	}
}

// Close stops the workers; in-flight proofs are cancelled and queued jobs
// are abandoned.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
	t.log.Info().Msg("Proof job tracker stopped")
}
