package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

// Config is the full, read-only configuration shared by reference across
// the pipeline. Loaded once, validated once, never mutated afterwards.
type Config struct {
	Scraping  ScrapingConfig  `yaml:"scraping"`
	Filtering FilteringConfig `yaml:"filtering"`
	Sink      SinkConfig      `yaml:"sink"`
	HTTP      HTTPConfig      `yaml:"http"`
}

type ScrapingConfig struct {
	Subreddits        []string           `yaml:"subreddits"`
	DefaultPostLimit  int                `yaml:"default_post_limit"`
	MaxWorkers        int                `yaml:"max_workers"`
	RequestsPerMinute int                `yaml:"requests_per_minute"`
	MaxRetries        int                `yaml:"max_retries"`
	RetryDelaySecs    int                `yaml:"retry_delay"`
	ExcludeNSFW       bool               `yaml:"exclude_nsfw"`
	ExcludeDeleted    bool               `yaml:"exclude_deleted"`
	Engagement        EngagementWeights  `yaml:"engagement_weights"`
	TimeWindows       []TimeWindowConfig `yaml:"time_windows"`
	RawDir            string             `yaml:"raw_dir"`
}

type EngagementWeights struct {
	Upvote       float64 `yaml:"upvote"`
	Comment      float64 `yaml:"comment"`
	Award        float64 `yaml:"award"`
	RecencyDecay float64 `yaml:"recency_decay"`
}

type TimeWindowConfig struct {
	Window string  `yaml:"window"`
	Weight float64 `yaml:"weight"`
}

type FilteringConfig struct {
	Criteria       CriteriaConfig `yaml:"criteria"`
	ContentFilters ContentFilters `yaml:"content_filters"`
	QualityWeights QualityWeights `yaml:"quality_weights"`
	Output         OutputConfig   `yaml:"output"`
}

type CriteriaConfig struct {
	MinTextLength   int     `yaml:"min_text_length"`
	MaxTextLength   int     `yaml:"max_text_length"`
	MaxTitleLength  int     `yaml:"max_title_length"`
	MinLineLength   int     `yaml:"min_line_length"`
	MaxLineBreaks   int     `yaml:"max_line_breaks"`
	MinCommentScore int64   `yaml:"min_score"`
	MinPostScore    int64   `yaml:"min_post_score"`
	MinQualityScore float64 `yaml:"min_quality_score"`
	EngagementNorm  float64 `yaml:"engagement_norm"`
	MaxReplies      int     `yaml:"max_replies"`
	MaxDepth        int     `yaml:"max_depth"`
	MinComments     int     `yaml:"min_comments"`
	MaxComments     int     `yaml:"max_comments"`
}

type ContentFilters struct {
	ExcludedPhrases []string `yaml:"excluded_phrases"`
	ExcludedTopics  []string `yaml:"excluded_topics"`
}

type QualityWeights struct {
	Engagement float64 `yaml:"engagement"`
	Length     float64 `yaml:"length"`
	Formatting float64 `yaml:"formatting"`
	Variety    float64 `yaml:"variety"`
}

type OutputConfig struct {
	MaxSegmentsPerBatch int `yaml:"max_segments_per_batch"`
	MinSegmentGapSecs   int `yaml:"min_segment_gap"`
}

type SinkConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	ExportDir  string `yaml:"export_dir"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	RateRPS        int      `yaml:"rate_rps"`
	RateBurst      int      `yaml:"rate_burst"`
	Metrics        bool     `yaml:"metrics"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads the YAML settings file, applies environment overrides, and
// validates the result. A missing weight or threshold is a fatal
// ConfigurationError, never a silent default. An empty path yields the
// baseline configuration.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read settings")
		}
		cfg = Config{}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "parse settings")
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("RCG_SQLITE_PATH")); v != "" {
		c.Sink.SQLitePath = v
	}
	if v := strings.TrimSpace(os.Getenv("RCG_EXPORT_DIR")); v != "" {
		c.Sink.ExportDir = v
	}
	if v := strings.TrimSpace(os.Getenv("RCG_RAW_DIR")); v != "" {
		c.Scraping.RawDir = v
	}
	if v := strings.TrimSpace(os.Getenv("RCG_HTTP_ADDR")); v != "" {
		c.HTTP.Addr = v
	}
	if n := readInt("RCG_MAX_WORKERS"); n > 0 {
		c.Scraping.MaxWorkers = n
	}
	if n := readInt("RCG_REQUESTS_PER_MINUTE"); n > 0 {
		c.Scraping.RequestsPerMinute = n
	}
	if v := strings.TrimSpace(os.Getenv("RCG_SUBREDDITS")); v != "" {
		c.Scraping.Subreddits = splitList(v)
	}
}

func readInt(name string) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func splitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' '
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate enforces that every referenced weight and threshold is present
// and well-formed.
func (c Config) Validate() error {
	checks := []struct {
		key string
		ok  bool
	}{
		{"scraping.engagement_weights.upvote", c.Scraping.Engagement.Upvote > 0},
		{"scraping.engagement_weights.comment", c.Scraping.Engagement.Comment > 0},
		{"scraping.engagement_weights.award", c.Scraping.Engagement.Award > 0},
		{"scraping.engagement_weights.recency_decay", c.Scraping.Engagement.RecencyDecay > 0},
		{"scraping.max_workers", c.Scraping.MaxWorkers > 0},
		{"filtering.criteria.min_text_length", c.Filtering.Criteria.MinTextLength > 0},
		{"filtering.criteria.max_text_length", c.Filtering.Criteria.MaxTextLength >= c.Filtering.Criteria.MinTextLength},
		{"filtering.criteria.max_title_length", c.Filtering.Criteria.MaxTitleLength > 0},
		{"filtering.criteria.min_line_length", c.Filtering.Criteria.MinLineLength > 0},
		{"filtering.criteria.min_score", c.Filtering.Criteria.MinCommentScore > 0},
		{"filtering.criteria.min_post_score", c.Filtering.Criteria.MinPostScore > 0},
		{"filtering.criteria.max_line_breaks", c.Filtering.Criteria.MaxLineBreaks > 0},
		{"filtering.criteria.min_quality_score", c.Filtering.Criteria.MinQualityScore > 0 && c.Filtering.Criteria.MinQualityScore <= 1},
		{"filtering.criteria.engagement_norm", c.Filtering.Criteria.EngagementNorm > 0},
		{"filtering.criteria.max_depth", c.Filtering.Criteria.MaxDepth > 0},
		{"filtering.criteria.max_replies", c.Filtering.Criteria.MaxReplies > 0},
		{"filtering.criteria.max_comments", c.Filtering.Criteria.MaxComments > 0},
		{"filtering.output.max_segments_per_batch", c.Filtering.Output.MaxSegmentsPerBatch > 0},
		{"filtering.output.min_segment_gap", c.Filtering.Output.MinSegmentGapSecs >= 0},
	}
	for _, check := range checks {
		if !check.ok {
			return &core.ConfigurationError{Key: check.key, Reason: "missing or out of range"}
		}
	}

	qw := c.Filtering.QualityWeights
	if qw.Engagement <= 0 && qw.Length <= 0 && qw.Formatting <= 0 && qw.Variety <= 0 {
		return &core.ConfigurationError{Key: "filtering.quality_weights", Reason: "all weights missing"}
	}
	if len(c.Scraping.TimeWindows) == 0 {
		return &core.ConfigurationError{Key: "scraping.time_windows", Reason: "at least one window required"}
	}
	for _, w := range c.Scraping.TimeWindows {
		if w.Window == "" || w.Weight <= 0 {
			return &core.ConfigurationError{Key: "scraping.time_windows." + w.Window, Reason: "window needs a name and a positive weight"}
		}
	}
	return nil
}

// RetryDelay converts the configured retry delay to a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Scraping.RetryDelaySecs) * time.Second
}

// MinSegmentGap converts the configured gap to a duration.
func (c Config) MinSegmentGap() time.Duration {
	return time.Duration(c.Filtering.Output.MinSegmentGapSecs) * time.Second
}

// Default returns the baseline configuration mirroring the documented
// settings.yaml defaults.
func Default() Config {
	return Config{
		Scraping: ScrapingConfig{
			Subreddits:        []string{"AskReddit"},
			DefaultPostLimit:  25,
			MaxWorkers:        4,
			RequestsPerMinute: 60,
			MaxRetries:        3,
			RetryDelaySecs:    5,
			ExcludeNSFW:       true,
			ExcludeDeleted:    true,
			Engagement: EngagementWeights{
				Upvote:       1.0,
				Comment:      1.5,
				Award:        2.0,
				RecencyDecay: 24,
			},
			TimeWindows: []TimeWindowConfig{
				{Window: "day", Weight: 0.3},
				{Window: "week", Weight: 0.4},
				{Window: "month", Weight: 0.2},
				{Window: "year", Weight: 0.1},
			},
			RawDir: "content/raw",
		},
		Filtering: FilteringConfig{
			Criteria: CriteriaConfig{
				MinTextLength:   20,
				MaxTextLength:   500,
				MaxTitleLength:  300,
				MinLineLength:   5,
				MaxLineBreaks:   5,
				MinCommentScore: 100,
				MinPostScore:    1000,
				MinQualityScore: 0.4,
				EngagementNorm:  1000,
				MaxReplies:      3,
				MaxDepth:        2,
				MinComments:     2,
				MaxComments:     5,
			},
			QualityWeights: QualityWeights{
				Engagement: 0.4,
				Length:     0.2,
				Formatting: 0.2,
				Variety:    0.2,
			},
			Output: OutputConfig{
				MaxSegmentsPerBatch: 50,
				MinSegmentGapSecs:   3600,
			},
		},
		Sink: SinkConfig{
			SQLitePath: "content.db",
			ExportDir:  "content/filtered",
		},
		HTTP: HTTPConfig{
			Addr:      "",
			RateRPS:   20,
			RateBurst: 40,
			Metrics:   true,
		},
	}
}

// Summary reports the effective configuration without dumping phrase lists.
func (c Config) Summary() map[string]any {
	return map[string]any{
		"subreddits":       len(c.Scraping.Subreddits),
		"workers":          c.Scraping.MaxWorkers,
		"rpm":              c.Scraping.RequestsPerMinute,
		"windows":          len(c.Scraping.TimeWindows),
		"min_post_score":   c.Filtering.Criteria.MinPostScore,
		"min_quality":      c.Filtering.Criteria.MinQualityScore,
		"excluded_phrases": len(c.Filtering.ContentFilters.ExcludedPhrases),
		"excluded_topics":  len(c.Filtering.ContentFilters.ExcludedTopics),
		"batch_cap":        c.Filtering.Output.MaxSegmentsPerBatch,
		"segment_gap_s":    c.Filtering.Output.MinSegmentGapSecs,
		"sqlite_path":      c.Sink.SQLitePath,
		"http_addr":        c.HTTP.Addr,
	}
}

// SummaryJSON renders Summary as JSON for startup logging.
func (c Config) SummaryJSON() []byte {
	data, _ := json.Marshal(map[string]any{"config_summary": c.Summary()})
	return data
}
