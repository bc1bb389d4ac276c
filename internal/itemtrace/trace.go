package itemtrace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
)

// Stage represents a pipeline stage used for tracking thread processing.
type Stage string

const (
	StageFetched   Stage = "fetched"
	StageScored    Stage = "scored"
	StageAssembled Stage = "assembled"
	StageBatched   Stage = "batched"

	StageRejectedPrefix = "rejected_"
)

// StageRejected creates a Stage for an item rejected with the given reason.
func StageRejected(reason string) Stage {
	return Stage(fmt.Sprintf("%s%s", StageRejectedPrefix, reason))
}

// ThreadTrace captures trace metadata for a thread as it moves through
// scoring, filtering, assembly and batching.
type ThreadTrace struct {
	Subreddit string
	PostID    string
	Window    string
	TraceID   string

	mu       sync.Mutex
	counters map[Stage]int64
}

// NewThreadTrace constructs a trace for a fetched thread and seeds the
// fetched counter.
func NewThreadTrace(subreddit, postID, window string) *ThreadTrace {
	trace := &ThreadTrace{
		Subreddit: subreddit,
		PostID:    postID,
		Window:    window,
		TraceID:   computeTraceID(subreddit, postID, window),
		counters:  make(map[Stage]int64),
	}

	trace.counters[StageFetched] = 1
	return trace
}

// IncCounter increments the counter for the provided stage and returns the updated value.
func (t *ThreadTrace) IncCounter(stage Stage) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counters[stage]++
	return t.counters[stage]
}

// LogTrace logs the trace metadata and counters using structured logging.
func (t *ThreadTrace) LogTrace(logger *slog.Logger, msg string) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info(msg,
		"trace_id", t.TraceID,
		"subreddit", t.Subreddit,
		"post", t.PostID,
		"window", t.Window,
		"counters", t.snapshotCounters(),
	)
}

// RejectionCounts returns the per-reason rejection counters recorded so far.
func (t *ThreadTrace) RejectionCounts() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int64)
	for stage, count := range t.counters {
		s := string(stage)
		if len(s) > len(StageRejectedPrefix) && s[:len(StageRejectedPrefix)] == StageRejectedPrefix {
			out[s[len(StageRejectedPrefix):]] = count
		}
	}
	return out
}

func (t *ThreadTrace) snapshotCounters() map[Stage]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	copy := make(map[Stage]int64, len(t.counters))
	for stage, count := range t.counters {
		copy[stage] = count
	}

	return copy
}

func computeTraceID(subreddit, postID, window string) string {
	digest := sha256.Sum256([]byte(subreddit + "\x1f" + postID + "\x1f" + window))
	return hex.EncodeToString(digest[:])
}
