package notifications

import "context"

type WelcomeInput struct {
	AccountID string
	Username  string
	Email     string
	FullName  string
}

type Notifier interface {
	SendWelcome(ctx context.Context, input WelcomeInput) error
}
