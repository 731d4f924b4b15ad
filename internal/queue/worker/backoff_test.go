package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: -1, want: 2 * time.Second},
		{attempt: 0, want: 2 * time.Second},
		{attempt: 1, want: 4 * time.Second},
		{attempt: 2, want: 8 * time.Second},
		{attempt: 7, want: 256 * time.Second},
		{attempt: 8, want: 5 * time.Minute},
		{attempt: 60, want: 5 * time.Minute},
	}

	for _, tt := range tests {
		got := ExponentialBackoff(tt.attempt)
		assert.GreaterOrEqual(t, got, tt.want, "attempt %d", tt.attempt)
		assert.Less(t, got, tt.want+maxJitter, "attempt %d", tt.attempt)
	}
}
