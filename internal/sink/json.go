package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

// EncodeBatch serializes a sealed batch as a self-describing JSON record.
// Every field is named; DecodeBatch round-trips the exact structure.
func EncodeBatch(batch core.Batch) ([]byte, error) {
	data, err := json.MarshalIndent(batch, "", "  ")
	return data, errors.Wrap(err, "encode batch")
}

// DecodeBatch parses a batch previously written by EncodeBatch.
func DecodeBatch(data []byte) (core.Batch, error) {
	var batch core.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return core.Batch{}, errors.Wrap(err, "decode batch")
	}
	return batch, nil
}

// JSONExporter writes one JSON file per sealed batch into a directory, for
// the downstream narration and video stages.
type JSONExporter struct {
	dir string
}

func NewJSONExporter(dir string) (*JSONExporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create export dir")
	}
	return &JSONExporter{dir: dir}, nil
}

func (e *JSONExporter) SaveBatch(_ context.Context, batch core.Batch) error {
	data, err := EncodeBatch(batch)
	if err != nil {
		return err
	}
	path := filepath.Join(e.dir, fmt.Sprintf("filtered_%s.json", batch.ID))
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write batch file")
}

// MultiStore fans a sealed batch out to several stores, failing on the
// first error.
type MultiStore []BatchStore

func (m MultiStore) SaveBatch(ctx context.Context, batch core.Batch) error {
	for _, store := range m {
		if err := store.SaveBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}
