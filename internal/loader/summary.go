package loader

import "time"

type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeKVFailed    Outcome = "kv_failed"
	OutcomeCacheFailed Outcome = "cache_failed"
	OutcomeBothFailed  Outcome = "both_failed"
)

func classify(kvErr, cacheErr error) Outcome {
	switch {
	case kvErr == nil && cacheErr == nil:
		return OutcomeSuccess
	case cacheErr == nil:
		return OutcomeKVFailed
	case kvErr == nil:
		return OutcomeCacheFailed
	default:
		return OutcomeBothFailed
	}
}

// BatchResult is what happened to one batch in each sink.
type BatchResult struct {
	Index    int
	Size     int
	Outcome  Outcome
	KVErr    error
	CacheErr error
	Duration time.Duration
}

// Summary describes a run. It is reported alongside, not instead of, the
// fixed invocation result.
type Summary struct {
	RunID          string          `json:"runId"`
	StartedAt      time.Time       `json:"startedAt"`
	Duration       time.Duration   `json:"duration"`
	PlannedBatches int             `json:"plannedBatches"`
	Batches        int             `json:"batches"`
	Records        int             `json:"records"`
	Outcomes       map[Outcome]int `json:"outcomes"`
}

func (s *Summary) add(r BatchResult) {
	s.Batches++
	s.Records += r.Size
	s.Outcomes[r.Outcome]++
}

// Failed reports how many batches failed in at least one sink.
func (s *Summary) Failed() int {
	return s.Batches - s.Outcomes[OutcomeSuccess]
}
