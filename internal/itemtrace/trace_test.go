package itemtrace

import "testing"

func TestTraceIDDeterminism(t *testing.T) {
	first := NewThreadTrace("AskReddit", "abc123", "week")
	second := NewThreadTrace("AskReddit", "abc123", "week")
	if first.TraceID != second.TraceID {
		t.Fatalf("expected deterministic trace id, got %q and %q", first.TraceID, second.TraceID)
	}

	different := NewThreadTrace("AskReddit", "abc123", "month")
	if first.TraceID == different.TraceID {
		t.Fatalf("expected different trace id when window changes")
	}
}

func TestCounterIncrements(t *testing.T) {
	trace := NewThreadTrace("AskReddit", "abc123", "week")

	if count := trace.IncCounter(StageScored); count != 1 {
		t.Fatalf("expected scored to be 1, got %d", count)
	}

	if count := trace.IncCounter(StageRejected("too_short")); count != 1 {
		t.Fatalf("expected rejected_too_short to be 1, got %d", count)
	}

	if count := trace.IncCounter(StageRejected("too_short")); count != 2 {
		t.Fatalf("expected rejected_too_short to be 2 after increment, got %d", count)
	}

	if count := trace.IncCounter(StageBatched); count != 1 {
		t.Fatalf("expected batched to be 1, got %d", count)
	}
}

func TestRejectionCounts(t *testing.T) {
	trace := NewThreadTrace("AskReddit", "abc123", "week")
	trace.IncCounter(StageRejected("too_short"))
	trace.IncCounter(StageRejected("too_short"))
	trace.IncCounter(StageRejected("nsfw"))
	trace.IncCounter(StageAssembled)

	counts := trace.RejectionCounts()
	if counts["too_short"] != 2 || counts["nsfw"] != 1 {
		t.Fatalf("unexpected rejection counts: %v", counts)
	}
	if _, ok := counts["assembled"]; ok {
		t.Fatalf("non-rejection stages must not appear in rejection counts")
	}
}
