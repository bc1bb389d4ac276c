package sink

import (
	"context"

	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

type broadcaster interface {
	Broadcast(core.Segment)
}

// WithBroadcast decorates a store so every segment of a sealed batch is
// also pushed to the live status API stream.
type WithBroadcast struct {
	BatchStore
	api broadcaster
}

func WithAPI(base BatchStore, api broadcaster) *WithBroadcast {
	return &WithBroadcast{BatchStore: base, api: api}
}

func (w *WithBroadcast) SaveBatch(ctx context.Context, batch core.Batch) error {
	if err := w.BatchStore.SaveBatch(ctx, batch); err != nil {
		return err
	}
	if w.api != nil {
		for _, seg := range batch.Segments {
			w.api.Broadcast(seg)
		}
	}
	return nil
}
