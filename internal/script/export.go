package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

// Exporter writes narration files next to the filtered batch exports, one
// file per batch, for the audio production step to pick up.
type Exporter struct {
	dir  string
	proc *Processor
}

func NewExporter(dir string, proc *Processor) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create narration dir")
	}
	return &Exporter{dir: dir, proc: proc}, nil
}

// ExportBatch narrates the batch and writes tts_ready_<batch>.json.
func (e *Exporter) ExportBatch(batch core.Batch) (string, error) {
	narrations := e.proc.NarrateBatch(batch)
	data, err := json.MarshalIndent(narrations, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode narrations")
	}
	path := filepath.Join(e.dir, fmt.Sprintf("tts_ready_%s.json", batch.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "write narrations")
	}
	return path, nil
}
