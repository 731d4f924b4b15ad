package observability

import (
	"sync"
	"time"
)

// Job outcomes, shared with the Prometheus "result" label.
const (
	JobDone    = "done"
	JobRetried = "retry"
	JobFailed  = "failed"
)

// JobStats is the worker's in-process view of what it has handled since
// start. It backs /stats and the shutdown log line; Prometheus gets the
// same events through Prom.ObserveJob.
type JobStats struct {
	mu       sync.Mutex
	started  time.Time
	claimed  uint64
	requeued uint64
	byType   map[string]*typeStats
	lastDone time.Time
}

type typeStats struct {
	outcomes map[string]uint64
	runs     uint64
	total    time.Duration
	max      time.Duration
}

func NewJobStats() *JobStats {
	return &JobStats{
		started: time.Now().UTC(),
		byType:  make(map[string]*typeStats),
	}
}

func (s *JobStats) Claimed() {
	s.mu.Lock()
	s.claimed++
	s.mu.Unlock()
}

func (s *JobStats) Requeued(n int64) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.requeued += uint64(n)
	s.mu.Unlock()
}

// Finished records one run of a job of jobType that ended with outcome.
func (s *JobStats) Finished(jobType, outcome string, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.byType[jobType]
	if !ok {
		ts = &typeStats{outcomes: make(map[string]uint64)}
		s.byType[jobType] = ts
	}

	ts.outcomes[outcome]++
	ts.runs++
	ts.total += took
	if took > ts.max {
		ts.max = took
	}
	if outcome == JobDone {
		s.lastDone = time.Now().UTC()
	}
}

type JobTypeSnapshot struct {
	Outcomes      map[string]uint64 `json:"outcomes"`
	Runs          uint64            `json:"runs"`
	AvgDurationMs int64             `json:"avgDurationMs"`
	MaxDurationMs int64             `json:"maxDurationMs"`
}

type JobStatsSnapshot struct {
	StartedAt       time.Time                  `json:"startedAt"`
	Claimed         uint64                     `json:"claimed"`
	Done            uint64                     `json:"done"`
	Retried         uint64                     `json:"retried"`
	Failed          uint64                     `json:"failed"`
	Requeued        uint64                     `json:"requeued"`
	LastCompletedAt *time.Time                 `json:"lastCompletedAt,omitempty"`
	ByType          map[string]JobTypeSnapshot `json:"byType"`
}

func (s *JobStats) Snapshot() JobStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := JobStatsSnapshot{
		StartedAt: s.started,
		Claimed:   s.claimed,
		Requeued:  s.requeued,
		ByType:    make(map[string]JobTypeSnapshot, len(s.byType)),
	}
	if !s.lastDone.IsZero() {
		t := s.lastDone
		out.LastCompletedAt = &t
	}

	for name, ts := range s.byType {
		outcomes := make(map[string]uint64, len(ts.outcomes))
		for k, v := range ts.outcomes {
			outcomes[k] = v
		}

		snap := JobTypeSnapshot{
			Outcomes:      outcomes,
			Runs:          ts.runs,
			MaxDurationMs: ts.max.Milliseconds(),
		}
		if ts.runs > 0 {
			snap.AvgDurationMs = (ts.total / time.Duration(ts.runs)).Milliseconds()
		}
		out.ByType[name] = snap

		out.Done += outcomes[JobDone]
		out.Retried += outcomes[JobRetried]
		out.Failed += outcomes[JobFailed]
	}

	return out
}
