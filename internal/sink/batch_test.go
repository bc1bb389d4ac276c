package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

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

func (r *recordingStore) Batches() []core.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Batch(nil), r.batches...)
}

func segAt(id string, created time.Time) core.Segment {
	return core.Segment{
		ID: id,
		Post: core.ScoredItem{
			RawItem: core.RawItem{ID: id, Kind: core.KindPost, Created: created},
		},
	}
}

func TestBatchSealsAtCapacity(t *testing.T) {
	store := &recordingStore{}
	w := NewBatchWriter(store, Options{MaxSegments: 2})
	ctx := context.Background()
	base := time.Date(2025, 3, 29, 0, 0, 0, 0, time.UTC)

	if err := w.Write(ctx, segAt("s1", base)); err != nil {
		t.Fatalf("write1: %v", err)
	}
	if len(store.Batches()) != 0 {
		t.Fatalf("expected no seal yet")
	}
	if err := w.Write(ctx, segAt("s2", base.Add(2*time.Hour))); err != nil {
		t.Fatalf("write2: %v", err)
	}

	batches := store.Batches()
	if len(batches) != 1 {
		t.Fatalf("expected one sealed batch, got %d", len(batches))
	}
	if batches[0].SegmentCount != 2 {
		t.Fatalf("expected 2 segments, got %d", batches[0].SegmentCount)
	}
	if batches[0].ID == "" {
		t.Fatalf("sealed batch must carry an id")
	}
}

func TestGapDeferralMovesSegmentToNextBatch(t *testing.T) {
	store := &recordingStore{}
	w := NewBatchWriter(store, Options{MaxSegments: 2, MinGap: 3600 * time.Second})
	ctx := context.Background()
	base := time.Date(2025, 3, 29, 0, 0, 0, 0, time.UTC)

	if err := w.Write(ctx, segAt("s1", base)); err != nil {
		t.Fatalf("write1: %v", err)
	}
	// 3000s apart with a 3600s gap: deferred, not dropped.
	if err := w.Write(ctx, segAt("s2", base.Add(3000*time.Second))); err != nil {
		t.Fatalf("write2: %v", err)
	}
	// Fills the open batch; sealing it retries s2 against the next batch.
	if err := w.Write(ctx, segAt("s3", base.Add(2*time.Hour))); err != nil {
		t.Fatalf("write3: %v", err)
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	batches := store.Batches()
	if len(batches) != 2 {
		t.Fatalf("expected deferred segment in second batch, got %d batches", len(batches))
	}
	if batches[0].Segments[0].ID != "s1" || batches[0].Segments[1].ID != "s3" {
		t.Fatalf("unexpected first batch: %+v", batches[0].Segments)
	}
	if batches[1].Segments[0].ID != "s2" {
		t.Fatalf("expected s2 in follow-up batch, got %+v", batches[1].Segments)
	}
	if _, _, dropped := w.Stats(); dropped != 0 {
		t.Fatalf("nothing should be dropped, got %d", dropped)
	}
}

func TestGapInvariantHoldsOnSealedBatches(t *testing.T) {
	store := &recordingStore{}
	gap := 3600 * time.Second
	w := NewBatchWriter(store, Options{MaxSegments: 3, MinGap: gap})
	ctx := context.Background()
	base := time.Date(2025, 3, 29, 0, 0, 0, 0, time.UTC)

	offsets := []time.Duration{0, 30 * time.Minute, 2 * time.Hour, 150 * time.Minute, 5 * time.Hour}
	for i, off := range offsets {
		if err := w.Write(ctx, segAt(string(rune('a'+i)), base.Add(off))); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, batch := range store.Batches() {
		if batch.SegmentCount > 3 {
			t.Fatalf("batch over capacity: %d", batch.SegmentCount)
		}
		for i := range batch.Segments {
			for j := i + 1; j < len(batch.Segments); j++ {
				d := batch.Segments[j].Post.Created.Sub(batch.Segments[i].Post.Created)
				if d < 0 {
					d = -d
				}
				if d < gap {
					t.Fatalf("gap invariant violated in batch %s: %s", batch.ID, d)
				}
			}
		}
	}
}

func TestUnsatisfiableSegmentDroppedAtClose(t *testing.T) {
	store := &recordingStore{}
	w := NewBatchWriter(store, Options{MaxSegments: 10, MinGap: 3600 * time.Second})
	ctx := context.Background()
	base := time.Date(2025, 3, 29, 0, 0, 0, 0, time.UTC)

	if err := w.Write(ctx, segAt("s1", base)); err != nil {
		t.Fatalf("write1: %v", err)
	}
	if err := w.Write(ctx, segAt("s2", base.Add(3000*time.Second))); err != nil {
		t.Fatalf("write2: %v", err)
	}
	// Stream ends before any batch seals: no further batch exists, so the
	// deferred segment is dropped.
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(store.Batches()) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(store.Batches()))
	}
	if _, _, dropped := w.Stats(); dropped != 1 {
		t.Fatalf("expected 1 dropped segment, got %d", dropped)
	}
}

func TestEndOfWindowSealFlushesPartialBatch(t *testing.T) {
	store := &recordingStore{}
	w := NewBatchWriter(store, Options{MaxSegments: 10, Window: core.SourceWindow{Name: "week", Weight: 0.4}})
	ctx := context.Background()

	if err := w.Write(ctx, segAt("s1", time.Now())); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Seal(ctx); err != nil {
		t.Fatalf("seal: %v", err)
	}

	batches := store.Batches()
	if len(batches) != 1 {
		t.Fatalf("expected sealed partial batch")
	}
	if batches[0].Window.Name != "week" {
		t.Fatalf("window metadata lost: %+v", batches[0].Window)
	}
}

func TestWriteAfterCloseFails(t *testing.T) {
	w := NewBatchWriter(&recordingStore{}, Options{MaxSegments: 10})
	ctx := context.Background()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Write(ctx, segAt("late", time.Now())); !errors.Is(err, ErrWriterClosed) {
		t.Fatalf("expected ErrWriterClosed, got %v", err)
	}
}
