package job

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the outbox row lifecycle:
// pending -> processing -> done | failed, or back to pending on retry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no worker will touch the job again.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

const DefaultMaxAttempts = 5

// ErrJobNotFound also means "nothing to claim" from ClaimNext.
var ErrJobNotFound = errors.New("job not found")

type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	RunAt       time.Time       `json:"runAt"`
	LockedAt    *time.Time      `json:"lockedAt,omitempty"`
	LockedBy    *string         `json:"lockedBy,omitempty"`
	LastError   *string         `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type CreateRequest struct {
	Type        string
	Payload     json.RawMessage
	RunAt       time.Time // zero means now
	MaxAttempts int       // <= 0 means DefaultMaxAttempts
}

// New builds a pending job ready to insert.
func New(req CreateRequest) Job {
	now := time.Now().UTC()

	j := Job{
		ID:          uuid.NewString(),
		Type:        req.Type,
		Payload:     req.Payload,
		Status:      StatusPending,
		MaxAttempts: req.MaxAttempts,
		RunAt:       req.RunAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = DefaultMaxAttempts
	}
	if j.RunAt.IsZero() {
		j.RunAt = now
	}

	return j
}

// HasAttemptsLeft reports whether a failure of the current run may be
// retried. Attempts counts finished runs, so the current one is +1.
func (j Job) HasAttemptsLeft() bool {
	return j.Attempts+1 < j.MaxAttempts
}
