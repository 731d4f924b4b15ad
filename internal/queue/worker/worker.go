package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/job"
	"github.com/geocoder89/accounthub/internal/jobs"
	"github.com/geocoder89/accounthub/internal/notifications"
	"github.com/geocoder89/accounthub/internal/observability"
	"golang.org/x/sync/errgroup"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	Concurrency   int
	ShutdownGrace time.Duration
	// processing rows locked longer than this are handed back to pending
	LockTTL time.Duration
	// per-job execution timeout
	JobTimeout time.Duration
}

type Worker struct {
	cfg      Config
	repo     JobsRepository
	notifier notifications.Notifier
	log      *slog.Logger
	prom     *observability.Prom
	stats    *observability.JobStats
	backoff  func(attempt int) time.Duration
	now      func() time.Time

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, notifier notifications.Notifier, log *slog.Logger, prom *observability.Prom) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = "worker"
	}
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		cfg:      cfg,
		repo:     repo,
		notifier: notifier,
		log:      log.With("worker_id", cfg.WorkerID),
		prom:     prom,
		stats:    observability.NewJobStats(),
		backoff:  ExponentialBackoff,
		now:      time.Now,
	}
}

func (w *Worker) Stats() observability.JobStatsSnapshot {
	return w.stats.Snapshot()
}

// Run polls until ctx is cancelled. In-flight jobs get ShutdownGrace to
// finish on a context detached from ctx.
func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	// jobs run on this context so shutdown does not cut them mid-send
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < w.cfg.Concurrency; i++ {
		slot := i
		g.Go(func() error {
			w.poll(gctx, jobCtx, slot)
			return nil
		})
	}

	g.Go(func() error {
		w.reapStale(gctx)
		return nil
	})

	<-ctx.Done()
	w.setReady(false)
	w.log.Info("worker received shutdown signal")

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(w.cfg.ShutdownGrace):
		cancelJobs()
		<-done
		return errors.New("worker shutdown grace exceeded; in-flight jobs cancelled")
	}
}

func (w *Worker) poll(ctx, jobCtx context.Context, slot int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// drain while there is work
		for ctx.Err() == nil {
			processed, err := w.ProcessOne(jobCtx)
			if err != nil {
				w.log.Error("process job", "slot", slot, "err", err)
				break
			}
			if !processed {
				break
			}
		}
	}
}

func (w *Worker) reapStale(ctx context.Context) {
	interval := w.cfg.LockTTL / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Error("requeue stale jobs", "err", err)
				}
				continue
			}
			if n > 0 {
				w.stats.Requeued(n)
				w.log.Warn("requeued stale jobs", "count", n)
			}
		}
	}
}

// ProcessOne claims and runs at most one job. It reports whether a job was
// claimed; job failures are recorded on the job, not returned.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("claim job: %w", err)
	}

	w.stats.Claimed()
	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	start := w.now()
	log := w.log.With("job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1)

	execCtx, cancelExec := context.WithTimeout(ctx, w.cfg.JobTimeout)
	err = w.execute(execCtx, j)
	cancelExec()

	elapsed := w.now().Sub(start)

	if err != nil {
		result := w.handleFailure(ctx, j, err)
		w.stats.Finished(j.Type, result, elapsed)
		w.prom.ObserveJob(j.Type, result, elapsed)
		log.Warn("job failed", "result", result, "err", err)
		return true, nil
	}

	if err := w.repo.MarkDone(ctx, j.ID); err != nil {
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_done_failed: "+err.Error())
		return true, fmt.Errorf("mark job done: %w", err)
	}

	w.stats.Finished(j.Type, observability.JobDone, elapsed)
	w.prom.ObserveJob(j.Type, observability.JobDone, elapsed)
	log.Info("job done", "duration_ms", elapsed.Milliseconds())
	return true, nil
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	decoded, err := jobs.DecodePayload(j)
	if err != nil {
		return permanent(err)
	}

	switch p := decoded.(type) {
	case jobs.AccountWelcomePayload:
		if err := jobs.ValidatePayload(jobs.JobAccountWelcome, p); err != nil {
			return permanent(err)
		}
		return w.notifier.SendWelcome(ctx, notifications.WelcomeInput{
			AccountID: p.AccountID,
			Username:  p.Username,
			Email:     p.Email,
			FullName:  p.FullName,
		})
	default:
		return permanent(fmt.Errorf("%w: %s", jobs.ErrInvalidJobType, j.Type))
	}
}

// handleFailure reschedules with backoff or fails the job for good.
// It returns the metrics result label.
func (w *Worker) handleFailure(ctx context.Context, j job.Job, cause error) string {
	msg := cause.Error()

	if !isPermanent(cause) && j.HasAttemptsLeft() {
		runAt := w.now().Add(w.backoff(j.Attempts))
		if err := w.repo.Reschedule(ctx, j.ID, runAt, msg); err != nil {
			w.log.Error("reschedule job", "job_id", j.ID, "err", err)
		}
		return observability.JobRetried
	}

	if err := w.repo.MarkFailed(ctx, j.ID, msg); err != nil {
		w.log.Error("mark job failed", "job_id", j.ID, "err", err)
	}
	return observability.JobFailed
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Ready() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// permanent marks an error that retrying cannot fix (bad payload).
func permanent(err error) error { return permanentError{err: err} }

func isPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe)
}
