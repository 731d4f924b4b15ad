package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrProviderDown = errors.New("notification provider down (simulated)")

// LogNotifier "delivers" by logging. Delay and Fail simulate a slow or
// broken provider.
type LogNotifier struct {
	log   *slog.Logger
	Delay time.Duration
	Fail  bool
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendWelcome(ctx context.Context, in WelcomeInput) error {
	if n.Delay > 0 {
		select {
		case <-time.After(n.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if n.Fail {
		return ErrProviderDown
	}

	n.log.InfoContext(ctx, "notification.account_welcome",
		"account_id", in.AccountID,
		"username", in.Username,
		"email", in.Email,
	)
	return nil
}
