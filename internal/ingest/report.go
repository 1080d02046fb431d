package ingest

// Report aggregates counts for a run, a source or a single feed.
type Report struct {
	SourcesAttempted int
	SourcesSucceeded int
	SourcesFailed    int
	FeedsAttempted   int
	FeedsSucceeded   int
	FeedsFailed      int
	ItemsSeen        int
	Admitted         int
	Duplicates       int
	OutOfWindow      int
	ItemErrors       int
}

// Add accumulates other into r.
func (r *Report) Add(other Report) {
	r.SourcesAttempted += other.SourcesAttempted
	r.SourcesSucceeded += other.SourcesSucceeded
	r.SourcesFailed += other.SourcesFailed
	r.FeedsAttempted += other.FeedsAttempted
	r.FeedsSucceeded += other.FeedsSucceeded
	r.FeedsFailed += other.FeedsFailed
	r.ItemsSeen += other.ItemsSeen
	r.Admitted += other.Admitted
	r.Duplicates += other.Duplicates
	r.OutOfWindow += other.OutOfWindow
	r.ItemErrors += other.ItemErrors
}

// Fields renders the report for structured logging.
func (r Report) Fields() map[string]any {
	return map[string]any{
		"sources_attempted": r.SourcesAttempted,
		"sources_succeeded": r.SourcesSucceeded,
		"sources_failed":    r.SourcesFailed,
		"feeds_attempted":   r.FeedsAttempted,
		"feeds_succeeded":   r.FeedsSucceeded,
		"feeds_failed":      r.FeedsFailed,
		"items_seen":        r.ItemsSeen,
		"admitted":          r.Admitted,
		"duplicates":        r.Duplicates,
		"out_of_window":     r.OutOfWindow,
		"item_errors":       r.ItemErrors,
	}
}
