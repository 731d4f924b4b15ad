package jobs

import "time"

// AccountWelcomePayload carries what the notifier needs so the worker never
// reads the accounts table; the account may be gone by the time it runs.
type AccountWelcomePayload struct {
	AccountID   string    `json:"accountId" validate:"required,uuid"`
	Username    string    `json:"username" validate:"required"`
	Email       string    `json:"email" validate:"required,email"`
	FullName    string    `json:"fullName,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}
