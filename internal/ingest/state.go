package ingest

import "time"

// State is the lifecycle of one unit (source or feed) within a run.
// Failed is terminal; the next run is the retry.
type State int

const (
	StatePending State = iota
	StateFetching
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MutationKind names the timestamp a Mutation writes.
type MutationKind int

const (
	SourceScraped MutationKind = iota
	FeedFetched
)

// Mutation is a timestamp write produced by a unit. Callers apply them after the unit completes.
type Mutation struct {
	Kind MutationKind
	ID   string
	At   time.Time
}
