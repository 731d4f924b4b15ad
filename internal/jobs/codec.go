package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/account"
	"github.com/geocoder89/accounthub/internal/domain/job"
)

// asPayload returns payload by value if it is the payload type registered
// for t. Pointers are accepted too.
func asPayload(t JobType, payload any) (any, error) {
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}

	switch v := payload.(type) {
	case AccountWelcomePayload:
		if t == JobAccountWelcome {
			return v, nil
		}
	case *AccountWelcomePayload:
		if t == JobAccountWelcome && v != nil {
			return *v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s got %T", ErrPayloadTypeMismatch, t, payload)
}

func EncodePayload(t JobType, payload any) ([]byte, error) {
	p, err := asPayload(t, payload)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}
	return b, nil
}

// DecodePayload returns the typed payload (by value) for j.Type.
func DecodePayload(j job.Job) (any, error) {
	t := JobType(j.Type)

	switch t {
	case JobAccountWelcome:
		return decodeInto[AccountWelcomePayload](j.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobType, j.Type)
	}
}

func decodeInto[T any](raw json.RawMessage) (T, error) {
	var p T
	if len(raw) == 0 {
		return p, fmt.Errorf("%w: empty", ErrInvalidJobPayload)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}
	return p, nil
}

// NewWelcomeJob builds the outbox row written alongside a new account.
func NewWelcomeJob(a account.Account) (job.CreateRequest, error) {
	p := AccountWelcomePayload{
		AccountID:   a.ID,
		Username:    a.Username,
		Email:       a.Email,
		RequestedAt: time.Now().UTC(),
	}
	if a.FullName != nil {
		p.FullName = *a.FullName
	}

	if err := ValidatePayload(JobAccountWelcome, p); err != nil {
		return job.CreateRequest{}, err
	}

	b, err := EncodePayload(JobAccountWelcome, p)
	if err != nil {
		return job.CreateRequest{}, err
	}

	return job.CreateRequest{
		Type:        string(JobAccountWelcome),
		Payload:     b,
		MaxAttempts: job.DefaultMaxAttempts,
	}, nil
}
