package jobs

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var payloadValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidatePayload checks a payload against its struct tags. A payload that
// fails here will never succeed, so the worker fails it without retrying.
func ValidatePayload(t JobType, payload any) error {
	p, err := asPayload(t, payload)
	if err != nil {
		return err
	}

	if err := payloadValidator.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}
	return nil
}
