package core

import "time"

// ItemKind distinguishes posts from comments in a raw thread dump.
type ItemKind string

const (
	KindPost    ItemKind = "post"
	KindComment ItemKind = "comment"
)

// RawItem is one unprocessed post or comment as delivered by a source.
// ParentID is empty for posts; a comment's ParentID refers to another item
// collected in the same thread, or the item is discarded as an orphan.
type RawItem struct {
	ID           string    `json:"id"`
	Kind         ItemKind  `json:"kind"`
	ParentID     string    `json:"parent_id,omitempty"`
	Title        string    `json:"title,omitempty"`
	Body         string    `json:"body"`
	Score        int64     `json:"score"`
	CommentCount int64     `json:"comment_count,omitempty"`
	AwardCount   int64     `json:"award_count,omitempty"`
	Created      time.Time `json:"created"`
	NSFW         bool      `json:"nsfw,omitempty"`
	Deleted      bool      `json:"deleted,omitempty"`
	Removed      bool      `json:"removed,omitempty"`
	Automod      bool      `json:"automod,omitempty"`
}

// ScoredItem is a RawItem that passed the hard filters and carries both
// scores. Both values are computed once and never mutated.
type ScoredItem struct {
	RawItem
	EngagementScore float64 `json:"engagement_score"`
	QualityScore    float64 `json:"quality_score"`
}

// Segment is the unit of narration: one qualifying post plus an ordered
// selection of its qualifying comments. Comments are sorted by quality
// score descending, ties by creation time ascending.
type Segment struct {
	ID          string       `json:"segment_id"`
	Post        ScoredItem   `json:"post"`
	Comments    []ScoredItem `json:"comments"`
	AssembledAt time.Time    `json:"assembled_at"`
}

// SourceWindow identifies the time window and sampling weight a thread was
// drawn from.
type SourceWindow struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Batch is a bounded, gap-respecting collection of sealed segments.
type Batch struct {
	ID           string       `json:"batch_id"`
	CreatedAt    time.Time    `json:"created_at"`
	SegmentCount int          `json:"segment_count"`
	Window       SourceWindow `json:"source_window"`
	Segments     []Segment    `json:"segments"`
}

// RunSummary aggregates per-run counters. A run reports these instead of a
// single pass/fail signal.
type RunSummary struct {
	RunID          string           `json:"run_id"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
	ThreadsFetched int64            `json:"threads_fetched"`
	ItemsScored    int64            `json:"items_scored"`
	FilteredOut    map[string]int64 `json:"filtered_out"`
	Assembled      int64            `json:"assembled"`
	Batched        int64            `json:"batched"`
	Dropped        int64            `json:"dropped"`
	BatchesSealed  int64            `json:"batches_sealed"`
}
