package sink

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStoreSaveAndList(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "content.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	batch := sampleBatch()
	if err := store.SaveBatch(ctx, batch); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Saving the same sealed batch twice must be idempotent.
	if err := store.SaveBatch(ctx, batch); err != nil {
		t.Fatalf("save again: %v", err)
	}

	count, err := store.CountBatches(ctx, BatchFilters{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 batch, got %d", count)
	}

	batches, err := store.ListBatches(ctx, BatchFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	got := batches[0]
	if got.ID != batch.ID || got.Window.Name != "week" {
		t.Fatalf("unexpected batch: %+v", got)
	}
	if len(got.Segments) != 1 || got.Segments[0].ID != "seg_p1" {
		t.Fatalf("unexpected segments: %+v", got.Segments)
	}
	if got.Segments[0].Post.EngagementScore != batch.Segments[0].Post.EngagementScore {
		t.Fatalf("scores must survive persistence")
	}
}

func TestSQLiteStoreFilters(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "content.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	first := sampleBatch()
	second := sampleBatch()
	second.ID = "b2"
	second.CreatedAt = first.CreatedAt.Add(time.Hour)
	second.Window.Name = "month"
	for i := range second.Segments {
		second.Segments[i].ID = "seg_p2"
	}

	if err := store.SaveBatch(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.SaveBatch(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	monthly, err := store.ListBatches(ctx, BatchFilters{Window: "month"})
	if err != nil {
		t.Fatalf("list month: %v", err)
	}
	if len(monthly) != 1 || monthly[0].ID != "b2" {
		t.Fatalf("window filter failed: %+v", monthly)
	}

	since := first.CreatedAt.Add(30 * time.Minute)
	recent, err := store.ListBatches(ctx, BatchFilters{Since: &since})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "b2" {
		t.Fatalf("since filter failed: %+v", recent)
	}

	limited, err := store.ListBatches(ctx, BatchFilters{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "b2" {
		t.Fatalf("expected newest batch first, got %+v", limited)
	}
}
