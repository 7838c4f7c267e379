package collector

import "time"

// Outcome classifies a finished cycle.
type Outcome int

const (
	// OutcomeSuccess means every source delivered and the batch was committed.
	OutcomeSuccess Outcome = iota
	// OutcomeDegraded means at least one source delivered and the batch was
	// committed, but one or more sources failed.
	OutcomeDegraded
	// OutcomeFailed means authentication failed or no source delivered;
	// nothing was written.
	OutcomeFailed
	// OutcomeFailedPersist means sources delivered but the store rejected or
	// never accepted the batch after retries.
	OutcomeFailedPersist
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFailed:
		return "failed"
	case OutcomeFailedPersist:
		return "failed_persist"
	default:
		return "unknown"
	}
}

// SourceStatus records how one data source fared in a cycle.
type SourceStatus struct {
	Name   string
	OK     bool
	Points int
	Err    error
}

// CycleReport summarizes one collection cycle.
type CycleReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Sources    []SourceStatus
	PointCount int
	Outcome    Outcome
}

// Succeeded reports whether the cycle left valid data in the store.
func (r CycleReport) Succeeded() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomeDegraded
}
