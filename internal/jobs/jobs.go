// Package jobs defines the outbox job types the API enqueues and the worker
// executes, with their payload codec.
package jobs

import "errors"

type JobType string

const (
	// JobAccountWelcome is enqueued in the same transaction as a new account.
	JobAccountWelcome JobType = "account.welcome"
)

var (
	ErrInvalidJobType      = errors.New("invalid job type")
	ErrInvalidJobPayload   = errors.New("invalid job payload")
	ErrPayloadTypeMismatch = errors.New("payload type mismatch for job type")
)

func (t JobType) IsValid() bool {
	return t == JobAccountWelcome
}
