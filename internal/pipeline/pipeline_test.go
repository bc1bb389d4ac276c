package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/PhantoomDev/reddit-content-generator/internal/config"
	"github.com/PhantoomDev/reddit-content-generator/internal/core"
	"github.com/PhantoomDev/reddit-content-generator/internal/source"
)

type fakeSource struct {
	mu      sync.Mutex
	threads map[string][]source.Thread
	errs    map[string]error
	calls   []string
}

func (f *fakeSource) Threads(_ context.Context, subreddit, _ string, _ int) ([]source.Thread, error) {
	f.mu.Lock()
	f.calls = append(f.calls, subreddit)
	f.mu.Unlock()
	if err := f.errs[subreddit]; err != nil {
		return nil, err
	}
	return f.threads[subreddit], nil
}

type recordingStore struct {
	mu      sync.Mutex
	batches []core.Batch
}

func (r *recordingStore) SaveBatch(_ context.Context, batch core.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return nil
}

var testNow = time.Date(2025, 3, 30, 12, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Scraping.Subreddits = []string{"AskReddit", "stories"}
	cfg.Scraping.MaxWorkers = 2
	cfg.Scraping.TimeWindows = []config.TimeWindowConfig{{Window: "week", Weight: 1.0}}
	cfg.Filtering.Criteria.MinPostScore = 10
	cfg.Filtering.Criteria.MinCommentScore = 1
	cfg.Filtering.Criteria.MinQualityScore = 0
	cfg.Filtering.Criteria.MinComments = 1
	cfg.Filtering.Output.MaxSegmentsPerBatch = 10
	cfg.Filtering.Output.MinSegmentGapSecs = 0
	return cfg
}

func goodThread(subreddit, postID string, created time.Time) source.Thread {
	post := core.RawItem{
		ID:      postID,
		Kind:    core.KindPost,
		Title:   "What is the strangest thing you have seen at work?",
		Body:    strings.Repeat("a perfectly ordinary sentence about work ", 4),
		Score:   5000,
		Created: created,
	}
	c1 := core.RawItem{
		ID: postID + "_c1", Kind: core.KindComment, ParentID: postID,
		Body:    "I once watched a coworker staple his lunch to the noticeboard.",
		Score:   400,
		Created: created.Add(30 * time.Minute),
	}
	c2 := core.RawItem{
		ID: postID + "_c2", Kind: core.KindComment, ParentID: postID,
		Body:    "The night shift kept a raccoon as an unofficial mascot for years.",
		Score:   250,
		Created: created.Add(45 * time.Minute),
	}
	return source.Thread{Subreddit: subreddit, Post: post, Comments: []core.RawItem{c1, c2}}
}

func newTestOrchestrator(src source.Source, store *recordingStore, cfg config.Config) *Orchestrator {
	o := New(cfg, src, store, NewMetrics(prometheus.NewRegistry()))
	o.now = func() time.Time { return testNow }
	return o
}

func TestRunProducesBatches(t *testing.T) {
	created := testNow.Add(-2 * time.Hour)
	src := &fakeSource{threads: map[string][]source.Thread{
		"AskReddit": {goodThread("AskReddit", "p1", created)},
		"stories":   {goodThread("stories", "p2", created.Add(-3 * time.Hour))},
	}}
	store := &recordingStore{}

	summary, err := newTestOrchestrator(src, store, testConfig()).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.ThreadsFetched != 2 {
		t.Fatalf("expected 2 threads fetched, got %d", summary.ThreadsFetched)
	}
	if summary.Assembled != 2 || summary.Batched != 2 {
		t.Fatalf("expected 2 assembled and batched, got %d / %d", summary.Assembled, summary.Batched)
	}
	if summary.BatchesSealed != 1 {
		t.Fatalf("expected 1 sealed batch, got %d", summary.BatchesSealed)
	}
	if summary.RunID == "" || summary.FinishedAt.IsZero() {
		t.Fatalf("summary missing run metadata: %+v", summary)
	}

	if len(store.batches) != 1 {
		t.Fatalf("expected 1 batch in store, got %d", len(store.batches))
	}
	batch := store.batches[0]
	if batch.Window.Name != "week" {
		t.Fatalf("batch window = %q, want week", batch.Window.Name)
	}
	if batch.SegmentCount != 2 {
		t.Fatalf("batch segment count = %d, want 2", batch.SegmentCount)
	}
	for _, seg := range batch.Segments {
		if len(seg.Comments) != 2 {
			t.Fatalf("segment %s kept %d comments, want 2", seg.ID, len(seg.Comments))
		}
	}
}

func TestRejectionsCountedPerReason(t *testing.T) {
	created := testNow.Add(-2 * time.Hour)
	thread := goodThread("AskReddit", "p1", created)
	thread.Post.NSFW = true
	src := &fakeSource{threads: map[string][]source.Thread{"AskReddit": {thread}}}
	store := &recordingStore{}

	cfg := testConfig()
	cfg.Scraping.Subreddits = []string{"AskReddit"}

	summary, err := newTestOrchestrator(src, store, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.FilteredOut["nsfw"] != 1 {
		t.Fatalf("expected 1 nsfw rejection, got %v", summary.FilteredOut)
	}
	if summary.Assembled != 0 || len(store.batches) != 0 {
		t.Fatalf("rejected thread must not produce segments or batches")
	}
}

func TestFetchErrorDoesNotFailRun(t *testing.T) {
	created := testNow.Add(-2 * time.Hour)
	src := &fakeSource{
		threads: map[string][]source.Thread{"stories": {goodThread("stories", "p2", created)}},
		errs:    map[string]error{"AskReddit": &core.SourceFetchError{Thread: "AskReddit"}},
	}
	store := &recordingStore{}

	summary, err := newTestOrchestrator(src, store, testConfig()).Run(context.Background())
	if err != nil {
		t.Fatalf("fetch error must not fail the run, got %v", err)
	}
	if summary.ThreadsFetched != 1 || summary.Assembled != 1 {
		t.Fatalf("healthy subreddit should still flow, got %+v", summary)
	}
	if len(store.batches) != 1 {
		t.Fatalf("expected 1 batch from the healthy subreddit, got %d", len(store.batches))
	}
}

func TestCancelledContextStopsRun(t *testing.T) {
	created := testNow.Add(-2 * time.Hour)
	src := &fakeSource{threads: map[string][]source.Thread{
		"AskReddit": {goodThread("AskReddit", "p1", created)},
	}}
	store := &recordingStore{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := newTestOrchestrator(src, store, testConfig()).Run(ctx)
	if err == nil {
		t.Fatalf("expected context error from cancelled run")
	}
	if summary.ThreadsFetched != 0 {
		t.Fatalf("cancelled run should not fetch, got %d", summary.ThreadsFetched)
	}
}

func TestWindowLimitScalesWithWeight(t *testing.T) {
	if got := windowLimit(100, 0.4); got != 40 {
		t.Fatalf("windowLimit(100, 0.4) = %d, want 40", got)
	}
	if got := windowLimit(10, 0.01); got != 1 {
		t.Fatalf("tiny weights must still yield at least one post, got %d", got)
	}
	if got := windowLimit(0, 0.5); got != 13 {
		t.Fatalf("zero base falls back to the default limit, got %d", got)
	}
}
