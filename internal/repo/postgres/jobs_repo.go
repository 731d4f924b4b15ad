package postgres

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/geocoder89/accounthub/internal/domain/job"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, type, payload, status, attempts, max_attempts,
	run_at, locked_at, locked_by, last_error, created_at, updated_at`

// maxLastError bounds jobs.last_error; provider errors can embed whole
// response bodies.
const maxLastError = 1024

type JobsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobsRepo {
	return &JobsRepo{pool: pool, prom: prom}
}

// execer is satisfied by both the pool and a pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func scanJob(row rowScanner) (job.Job, error) {
	var (
		j      job.Job
		status string
	)

	err := row.Scan(
		&j.ID, &j.Type, &j.Payload, &status,
		&j.Attempts, &j.MaxAttempts,
		&j.RunAt, &j.LockedAt, &j.LockedBy,
		&j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	j.Status = job.Status(status)
	return j, err
}

// jobNotFound maps pgx.ErrNoRows after ObserveDB has seen it as a miss.
func jobNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return job.ErrJobNotFound
	}
	return err
}

func (r *JobsRepo) Create(ctx context.Context, req job.CreateRequest) (job.Job, error) {
	return r.insert(ctx, r.pool, "jobs.create", req)
}

// CreateTx enqueues inside a caller-owned transaction, so the job exists
// iff the caller commits.
func (r *JobsRepo) CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error) {
	return r.insert(ctx, tx, "jobs.create_tx", req)
}

func (r *JobsRepo) insert(ctx context.Context, db execer, op string, req job.CreateRequest) (job.Job, error) {
	j := job.New(req)

	err := r.prom.ObserveDB(op, func() error {
		_, err := db.Exec(ctx,
			`INSERT INTO jobs (id, type, payload, status, max_attempts, run_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
			j.ID, j.Type, j.Payload, string(j.Status), j.MaxAttempts, j.RunAt, j.CreatedAt)
		return err
	})
	if err != nil {
		return job.Job{}, err
	}
	return j, nil
}

// ClaimNext locks the oldest due pending job for workerID. Concurrent
// workers skip each other's rows. job.ErrJobNotFound means nothing is due.
// The status literals match the partial indexes on jobs.
func (r *JobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	var j job.Job

	err := r.prom.ObserveDB("jobs.claim_next", func() error {
		var err error
		j, err = scanJob(r.pool.QueryRow(ctx, `
			UPDATE jobs
			   SET status = 'processing', locked_at = NOW(), locked_by = $1, updated_at = NOW()
			 WHERE id = (
				SELECT id FROM jobs
				 WHERE status = 'pending' AND run_at <= NOW() AND attempts < max_attempts
				 ORDER BY run_at, created_at
				 LIMIT 1
				   FOR UPDATE SKIP LOCKED
			 )
			RETURNING `+jobColumns, workerID))
		return err
	})
	return j, jobNotFound(err)
}

func (r *JobsRepo) MarkDone(ctx context.Context, id string) error {
	return r.transition(ctx, "jobs.mark_done", id, job.StatusDone,
		`last_error = NULL`)
}

// MarkFailed ends the job for good and counts the attempt.
func (r *JobsRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.transition(ctx, "jobs.mark_failed", id, job.StatusFailed,
		`attempts = attempts + 1, last_error = $3`, truncateError(errMsg))
}

// Reschedule counts the attempt and makes the job due again at runAt.
func (r *JobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	return r.transition(ctx, "jobs.reschedule", id, job.StatusPending,
		`attempts = attempts + 1, last_error = $3, run_at = $4`, truncateError(errMsg), runAt)
}

// transition moves a job this worker holds out of processing and releases
// its lock. set may reference $3 onwards. Zero rows means the job is gone
// or was already taken back by RequeueStaleProcessing.
func (r *JobsRepo) transition(ctx context.Context, op, id string, to job.Status, set string, args ...any) error {
	sql := `UPDATE jobs
	           SET status = $2, ` + set + `, locked_at = NULL, locked_by = NULL, updated_at = NOW()
	         WHERE id = $1 AND status = 'processing'`

	var tag pgconn.CommandTag
	err := r.prom.ObserveDB(op, func() error {
		var err error
		tag, err = r.pool.Exec(ctx, sql, append([]any{id, string(to)}, args...)...)
		return err
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// RequeueStaleProcessing hands jobs whose lock is older than lockTTL back
// to pending. Their worker is presumed dead, so the attempt is not counted.
func (r *JobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	if lockTTL < time.Second {
		lockTTL = 30 * time.Second
	}

	var n int64
	err := r.prom.ObserveDB("jobs.requeue_stale", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE jobs
			   SET status = 'pending', locked_at = NULL, locked_by = NULL, updated_at = NOW()
			 WHERE status = 'processing'
			   AND locked_at < NOW() - make_interval(secs => $1)`,
			lockTTL.Seconds())
		n = tag.RowsAffected()
		return err
	})
	return n, err
}

func (r *JobsRepo) GetByID(ctx context.Context, id string) (job.Job, error) {
	var j job.Job

	err := r.prom.ObserveDB("jobs.get_by_id", func() error {
		var err error
		j, err = scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
		return err
	})
	return j, jobNotFound(err)
}

func (r *JobsRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func truncateError(msg string) string {
	if len(msg) <= maxLastError {
		return msg
	}
	cut := maxLastError
	// back up to a rune boundary
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
