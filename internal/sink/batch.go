// Package sink accumulates assembled segments into bounded, gap-respecting
// batches and persists them once sealed.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

// ErrWriterClosed is returned by Write after Close.
var ErrWriterClosed = errors.New("batch writer closed")

// BatchStore receives sealed batches. Sealed batches are immutable; the
// store owns them after SaveBatch returns.
type BatchStore interface {
	SaveBatch(ctx context.Context, batch core.Batch) error
}

type Options struct {
	MaxSegments int
	MinGap      time.Duration
	Window      core.SourceWindow
}

// BatchWriter is the single serialized sink of the pipeline. Workers may
// call Write concurrently; the mutex enforces single-writer access to the
// open batch, which is the pipeline's only shared mutable state.
type BatchWriter struct {
	store BatchStore
	opts  Options

	mu       sync.Mutex
	open     []core.Segment
	deferred []core.Segment
	closed   bool
	sealed   int64
	written  int64
	dropped  int64
}

func NewBatchWriter(store BatchStore, opts Options) *BatchWriter {
	if opts.MaxSegments <= 0 {
		opts.MaxSegments = 1
	}
	return &BatchWriter{store: store, opts: opts}
}

// Write places the segment into the open batch, or defers it when its post
// timestamp falls within MinGap of the most recently accepted segment.
// Deferred segments are retried against every subsequent batch.
func (w *BatchWriter) Write(ctx context.Context, seg core.Segment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}

	if !w.fitsLocked(seg) {
		w.deferred = append(w.deferred, seg)
		slog.Debug("segment deferred by gap constraint", "segment", seg.ID)
		return nil
	}

	w.open = append(w.open, seg)
	w.written++
	if len(w.open) >= w.opts.MaxSegments {
		if err := w.sealLocked(ctx); err != nil {
			return err
		}
		return w.retryDeferredLocked(ctx)
	}
	return nil
}

// Seal closes the open batch early, as on an end-of-window signal, then
// retries deferred segments against the fresh batch.
func (w *BatchWriter) Seal(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.sealLocked(ctx); err != nil {
		return err
	}
	return w.retryDeferredLocked(ctx)
}

// retryDeferredLocked re-attempts placement of deferred segments after a
// batch sealed. Segments that still conflict stay deferred.
func (w *BatchWriter) retryDeferredLocked(ctx context.Context) error {
	pending := w.deferred
	w.deferred = nil
	for _, seg := range pending {
		if len(w.open) >= w.opts.MaxSegments || !w.fitsLocked(seg) {
			w.deferred = append(w.deferred, seg)
			continue
		}
		w.open = append(w.open, seg)
		w.written++
		if len(w.open) >= w.opts.MaxSegments {
			if err := w.sealLocked(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close seals the final batch. The stream is exhausted at this point, so
// no further batch will open: segments still deferred are dropped and
// logged as gap constraint violations.
func (w *BatchWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.sealLocked(ctx); err != nil {
		return err
	}

	for _, seg := range w.deferred {
		w.dropped++
		gapErr := &core.GapConstraintUnsatisfiableError{SegmentID: seg.ID}
		slog.Warn("segment dropped", "err", gapErr)
	}
	w.deferred = nil
	return nil
}

// Stats reports how many segments were written, batches sealed, and
// segments dropped as unsatisfiable.
func (w *BatchWriter) Stats() (written, sealed, dropped int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written, w.sealed, w.dropped
}

// fitsLocked checks the gap invariant against every segment already in the
// open batch. Checking all of them keeps the invariant pairwise even when
// segments arrive out of timestamp order.
func (w *BatchWriter) fitsLocked(seg core.Segment) bool {
	if w.opts.MinGap <= 0 {
		return true
	}
	for _, existing := range w.open {
		gap := seg.Post.Created.Sub(existing.Post.Created)
		if gap < 0 {
			gap = -gap
		}
		if gap < w.opts.MinGap {
			return false
		}
	}
	return true
}

func (w *BatchWriter) sealLocked(ctx context.Context) error {
	if len(w.open) == 0 {
		return nil
	}
	batch := core.Batch{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		SegmentCount: len(w.open),
		Window:       w.opts.Window,
		Segments:     w.open,
	}
	w.open = nil
	if err := w.store.SaveBatch(ctx, batch); err != nil {
		return err
	}
	w.sealed++
	slog.Info("batch sealed", "batch", batch.ID, "segments", batch.SegmentCount, "window", batch.Window.Name)
	return nil
}
