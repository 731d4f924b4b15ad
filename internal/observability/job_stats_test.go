package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStats_SnapshotTotalsAndPerType(t *testing.T) {
	s := NewJobStats()

	s.Claimed()
	s.Claimed()
	s.Claimed()
	s.Finished("account.welcome", JobRetried, 10*time.Millisecond)
	s.Finished("account.welcome", JobDone, 30*time.Millisecond)
	s.Finished("other", JobFailed, 5*time.Millisecond)
	s.Requeued(2)
	s.Requeued(0)

	snap := s.Snapshot()
	assert.Equal(t, uint64(3), snap.Claimed)
	assert.Equal(t, uint64(1), snap.Done)
	assert.Equal(t, uint64(1), snap.Retried)
	assert.Equal(t, uint64(1), snap.Failed)
	assert.Equal(t, uint64(2), snap.Requeued)
	require.NotNil(t, snap.LastCompletedAt)

	welcome, ok := snap.ByType["account.welcome"]
	require.True(t, ok)
	assert.Equal(t, uint64(2), welcome.Runs)
	assert.Equal(t, int64(20), welcome.AvgDurationMs)
	assert.Equal(t, int64(30), welcome.MaxDurationMs)
}

func TestJobStats_SnapshotIsACopy(t *testing.T) {
	s := NewJobStats()
	s.Finished("account.welcome", JobDone, time.Millisecond)

	snap := s.Snapshot()
	snap.ByType["account.welcome"].Outcomes[JobDone] = 99

	assert.Equal(t, uint64(1), s.Snapshot().ByType["account.welcome"].Outcomes[JobDone])
	assert.Nil(t, NewJobStats().Snapshot().LastCompletedAt)
}
