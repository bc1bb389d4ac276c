package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RCG_SQLITE_PATH", "/data/content.db")
	t.Setenv("RCG_MAX_WORKERS", "8")
	t.Setenv("RCG_SUBREDDITS", "AskReddit, tifu")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sink.SQLitePath != "/data/content.db" {
		t.Fatalf("unexpected sqlite path: %q", cfg.Sink.SQLitePath)
	}
	if cfg.Scraping.MaxWorkers != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.Scraping.MaxWorkers)
	}
	if len(cfg.Scraping.Subreddits) != 2 || cfg.Scraping.Subreddits[1] != "tifu" {
		t.Fatalf("unexpected subreddits: %v", cfg.Scraping.Subreddits)
	}
}

func TestLoadSettingsFile(t *testing.T) {
	const settings = `
scraping:
  max_workers: 2
  engagement_weights:
    upvote: 1.0
    comment: 1.5
    award: 2.0
    recency_decay: 24
  time_windows:
    - window: week
      weight: 0.6
    - window: month
      weight: 0.4
filtering:
  criteria:
    min_text_length: 20
    max_text_length: 500
    max_title_length: 300
    min_line_length: 5
    max_line_breaks: 5
    min_score: 100
    min_post_score: 1000
    min_quality_score: 0.4
    engagement_norm: 1000
    max_replies: 3
    max_depth: 2
    min_comments: 2
    max_comments: 5
  quality_weights:
    engagement: 0.4
    length: 0.2
    formatting: 0.2
    variety: 0.2
  output:
    max_segments_per_batch: 10
    min_segment_gap: 3600
sink:
  sqlite_path: test.db
`
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte(settings), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Filtering.Output.MaxSegmentsPerBatch != 10 {
		t.Fatalf("expected batch cap 10, got %d", cfg.Filtering.Output.MaxSegmentsPerBatch)
	}
	if len(cfg.Scraping.TimeWindows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(cfg.Scraping.TimeWindows))
	}
}

func TestLoadRejectsSettingsMissingWeights(t *testing.T) {
	// Omits engagement_weights.comment/award and the score floors; loading
	// must fail loudly instead of scoring with zeros.
	const settings = `
scraping:
  max_workers: 2
  engagement_weights:
    upvote: 1.0
    recency_decay: 24
  time_windows:
    - window: week
      weight: 1.0
filtering:
  criteria:
    min_text_length: 20
    max_text_length: 500
    max_title_length: 300
    min_line_length: 5
    max_line_breaks: 5
    min_quality_score: 0.4
    engagement_norm: 1000
    max_replies: 3
    max_depth: 2
    min_comments: 2
    max_comments: 5
  quality_weights:
    engagement: 1.0
  output:
    max_segments_per_batch: 10
    min_segment_gap: 3600
`
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(settings), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected configuration error for missing weights")
	}
	var cerr *core.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *core.ConfigurationError, got %T", err)
	}
	if cerr.Key != "scraping.engagement_weights.comment" {
		t.Fatalf("unexpected key: %q", cerr.Key)
	}
}

func TestValidateMissingScoreFloorFails(t *testing.T) {
	cfg := Default()
	cfg.Filtering.Criteria.MinPostScore = 0

	err := cfg.Validate()
	var cerr *core.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *core.ConfigurationError, got %T", err)
	}
	if cerr.Key != "filtering.criteria.min_post_score" {
		t.Fatalf("unexpected key: %q", cerr.Key)
	}
}

func TestValidateMissingWeightFails(t *testing.T) {
	cfg := Default()
	cfg.Scraping.Engagement.RecencyDecay = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected configuration error")
	}
	var cerr *core.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *core.ConfigurationError, got %T", err)
	}
	if cerr.Key != "scraping.engagement_weights.recency_decay" {
		t.Fatalf("unexpected key: %q", cerr.Key)
	}
}

func TestValidateEmptyWindowsFails(t *testing.T) {
	cfg := Default()
	cfg.Scraping.TimeWindows = nil
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty time windows")
	}
}
