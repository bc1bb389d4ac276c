// Package pipeline orchestrates one content run: fetch threads per time
// window, score and filter their items, assemble segments, and hand them
// to the batch writer.
package pipeline

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PhantoomDev/reddit-content-generator/internal/assemble"
	"github.com/PhantoomDev/reddit-content-generator/internal/config"
	"github.com/PhantoomDev/reddit-content-generator/internal/core"
	"github.com/PhantoomDev/reddit-content-generator/internal/filter"
	"github.com/PhantoomDev/reddit-content-generator/internal/itemtrace"
	"github.com/PhantoomDev/reddit-content-generator/internal/score"
	"github.com/PhantoomDev/reddit-content-generator/internal/sink"
	"github.com/PhantoomDev/reddit-content-generator/internal/source"
)

// Orchestrator runs the scrape-score-filter-assemble-batch chain. Workers
// fan out over subreddits; segments funnel through one writer per window
// so batch state stays single-writer.
type Orchestrator struct {
	cfg       config.Config
	src       source.Source
	store     sink.BatchStore
	metrics   *Metrics
	filter    *filter.Filter
	assembler *assemble.Assembler
	now       func() time.Time
}

func New(cfg config.Config, src source.Source, store sink.BatchStore, metrics *Metrics) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		src:       src,
		store:     store,
		metrics:   metrics,
		filter:    filter.New(cfg.Filtering, cfg.Scraping),
		assembler: assemble.New(cfg.Filtering.Criteria),
		now:       time.Now,
	}
}

// runState guards the run summary against concurrent worker updates.
type runState struct {
	mu      sync.Mutex
	summary *core.RunSummary
}

func (s *runState) addThreads(n int64) {
	s.mu.Lock()
	s.summary.ThreadsFetched += n
	s.mu.Unlock()
}

func (s *runState) addScored(n int64) {
	s.mu.Lock()
	s.summary.ItemsScored += n
	s.mu.Unlock()
}

func (s *runState) addAssembled(n int64) {
	s.mu.Lock()
	s.summary.Assembled += n
	s.mu.Unlock()
}

func (s *runState) addReason(reason string) {
	s.mu.Lock()
	s.summary.FilteredOut[reason]++
	s.mu.Unlock()
}

func (s *runState) addSinkStats(written, sealed, dropped int64) {
	s.mu.Lock()
	s.summary.Batched += written
	s.summary.BatchesSealed += sealed
	s.summary.Dropped += dropped
	s.mu.Unlock()
}

// Run processes every configured time window in order and reports the run
// summary. Per-thread failures are counted, not fatal; the only error Run
// returns is context cancellation.
func (o *Orchestrator) Run(ctx context.Context) (core.RunSummary, error) {
	summary := core.RunSummary{
		RunID:       uuid.NewString(),
		StartedAt:   o.now().UTC(),
		FilteredOut: make(map[string]int64),
	}
	state := &runState{summary: &summary}

	slog.Info("run started", "run", summary.RunID,
		"subreddits", len(o.cfg.Scraping.Subreddits),
		"windows", len(o.cfg.Scraping.TimeWindows))

	for _, win := range o.cfg.Scraping.TimeWindows {
		if ctx.Err() != nil {
			break
		}
		o.runWindow(ctx, win, state)
	}

	summary.FinishedAt = o.now().UTC()
	slog.Info("run finished", "run", summary.RunID,
		"threads", summary.ThreadsFetched,
		"assembled", summary.Assembled,
		"batched", summary.Batched,
		"sealed", summary.BatchesSealed,
		"dropped", summary.Dropped)
	return summary, ctx.Err()
}

// runWindow drains one time window: fan out over subreddits, funnel every
// assembled segment into one batch writer, then close it so the window's
// final batch seals.
func (o *Orchestrator) runWindow(ctx context.Context, win config.TimeWindowConfig, state *runState) {
	start := o.now()
	writer := sink.NewBatchWriter(o.store, sink.Options{
		MaxSegments: o.cfg.Filtering.Output.MaxSegmentsPerBatch,
		MinGap:      o.cfg.MinSegmentGap(),
		Window:      core.SourceWindow{Name: win.Window, Weight: win.Weight},
	})
	limit := windowLimit(o.cfg.Scraping.DefaultPostLimit, win.Weight)

	workers := o.cfg.Scraping.MaxWorkers
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan string)
	segs := make(chan core.Segment, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.worker(ctx, win.Window, limit, jobs, segs, state)
		}()
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for seg := range segs {
			if err := writer.Write(ctx, seg); err != nil {
				slog.Warn("segment write failed", "segment", seg.ID, "err", err)
			}
		}
	}()

	for _, sub := range o.cfg.Scraping.Subreddits {
		select {
		case <-ctx.Done():
		case jobs <- sub:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()
	close(segs)
	<-consumerDone

	if err := writer.Close(ctx); err != nil {
		slog.Warn("batch close failed", "window", win.Window, "err", err)
	}
	written, sealed, dropped := writer.Stats()
	state.addSinkStats(written, sealed, dropped)
	o.metrics.AddSinkStats(written, sealed, dropped)
	o.metrics.ObserveWindow(win.Window, o.now().Sub(start).Seconds())
}

func (o *Orchestrator) worker(ctx context.Context, window string, limit int, jobs <-chan string, segs chan<- core.Segment, state *runState) {
	for sub := range jobs {
		if ctx.Err() != nil {
			return
		}
		threads, err := o.src.Threads(ctx, sub, window, limit)
		if err != nil {
			o.metrics.IncFetchErrors(sub)
			slog.Warn("fetch failed", "subreddit", sub, "window", window, "err", err)
			continue
		}
		state.addThreads(int64(len(threads)))
		o.metrics.IncThreadsFetched(sub, len(threads))

		for _, thread := range threads {
			trace := itemtrace.NewThreadTrace(sub, thread.Post.ID, window)
			seg, ok := o.processThread(thread, trace, state)
			if !ok {
				trace.LogTrace(slog.Default(), "thread yielded no segment")
				continue
			}
			trace.IncCounter(itemtrace.StageAssembled)
			state.addAssembled(1)
			o.metrics.IncAssembled()
			select {
			case segs <- seg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// processThread scores and filters the post and every comment, then hands
// the survivors to the assembler. Rejected comments still enter the
// candidate set so their accepted children can re-parent.
func (o *Orchestrator) processThread(thread source.Thread, trace *itemtrace.ThreadTrace, state *runState) (core.Segment, bool) {
	now := o.now()
	weights := o.cfg.Scraping.Engagement

	postEng, err := score.Engagement(thread.Post, weights, now)
	if err != nil {
		o.countReject(trace, state, "invalid_item")
		return core.Segment{}, false
	}
	trace.IncCounter(itemtrace.StageScored)
	state.addScored(1)

	dec := o.filter.Check(thread.Post, postEng)
	if !dec.Accepted {
		o.countReject(trace, state, dec.Reason)
		return core.Segment{}, false
	}
	post := core.ScoredItem{RawItem: thread.Post, EngagementScore: postEng, QualityScore: dec.QualityScore}

	candidates := make([]assemble.Candidate, 0, len(thread.Comments))
	for _, c := range thread.Comments {
		eng, err := score.Engagement(c, weights, now)
		if err != nil {
			o.countReject(trace, state, "invalid_item")
			candidates = append(candidates, assemble.Candidate{Item: core.ScoredItem{RawItem: c}})
			continue
		}
		state.addScored(1)
		d := o.filter.Check(c, eng)
		if !d.Accepted {
			o.countReject(trace, state, d.Reason)
		}
		candidates = append(candidates, assemble.Candidate{
			Item:     core.ScoredItem{RawItem: c, EngagementScore: eng, QualityScore: d.QualityScore},
			Accepted: d.Accepted,
		})
	}

	return o.assembler.Assemble(post, candidates, now)
}

func (o *Orchestrator) countReject(trace *itemtrace.ThreadTrace, state *runState, reason string) {
	trace.IncCounter(itemtrace.StageRejected(reason))
	state.addReason(reason)
	o.metrics.IncRejected(reason)
}

// windowLimit scales the post limit by the window's sampling weight, so
// heavier windows contribute proportionally more threads per run.
func windowLimit(base int, weight float64) int {
	if base <= 0 {
		base = 25
	}
	limit := int(math.Round(float64(base) * weight))
	if limit < 1 {
		limit = 1
	}
	return limit
}
