package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PhantoomDev/reddit-content-generator/internal/config"
	"github.com/PhantoomDev/reddit-content-generator/internal/core"
	"github.com/PhantoomDev/reddit-content-generator/internal/httpapi"
	"github.com/PhantoomDev/reddit-content-generator/internal/pipeline"
	"github.com/PhantoomDev/reddit-content-generator/internal/script"
	"github.com/PhantoomDev/reddit-content-generator/internal/sink"
	"github.com/PhantoomDev/reddit-content-generator/internal/source"
	"github.com/PhantoomDev/reddit-content-generator/internal/version"
)

// narrationStore adapts the narration exporter to the batch store chain so
// every sealed batch also produces a TTS-ready script file.
type narrationStore struct {
	exporter *script.Exporter
}

func (n narrationStore) SaveBatch(_ context.Context, batch core.Batch) error {
	path, err := n.exporter.ExportBatch(batch)
	if err != nil {
		return err
	}
	slog.Info("narration exported", "batch", batch.ID, "path", path)
	return nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		versionFlag  bool
		configPath   string
		sqlitePath   string
		exportDir    string
		narrationDir string
		rawDir       string
		subreddits   string
		workers      int
		postLimit    int
		sourceName   string
		watch        bool
		narrate      bool
		httpAddr     string
		httpCORS     string
		httpRPS      int
		httpBurst    int
		httpMetrics  bool
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&configPath, "config", "", "Path to YAML settings file")
	flag.StringVar(&sqlitePath, "sqlite", "", "Path to SQLite database file")
	flag.StringVar(&exportDir, "export-dir", "", "Directory for filtered batch JSON exports")
	flag.StringVar(&narrationDir, "narration-dir", "content/processed", "Directory for TTS-ready narration scripts")
	flag.StringVar(&rawDir, "raw-dir", "", "Directory of raw dump files (file source)")
	flag.StringVar(&subreddits, "subreddits", "", "Comma-separated subreddits to scrape")
	flag.IntVar(&workers, "workers", 0, "Maximum concurrent fetch workers")
	flag.IntVar(&postLimit, "post-limit", 0, "Base post limit per subreddit")
	flag.StringVar(&sourceName, "source", "reddit", "Thread source: reddit or file")
	flag.BoolVar(&watch, "watch", false, "Watch the raw dir and rerun when new dumps land (file source)")
	flag.BoolVar(&narrate, "narrate", true, "Write narration scripts for sealed batches")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP status/stream address (e.g., :8765)")
	flag.StringVar(&httpCORS, "http-cors-origins", "", "Comma-separated list of allowed CORS origins")
	flag.IntVar(&httpRPS, "http-rate-rps", 0, "Maximum HTTP requests per second per client")
	flag.IntVar(&httpBurst, "http-rate-burst", 0, "Burst size for HTTP rate limiter")
	flag.BoolVar(&httpMetrics, "http-metrics", true, "Expose Prometheus metrics endpoint")
	flag.Parse()

	if versionFlag {
		fmt.Printf(
			"contentpipe version: %s (commit %s, built %s)\n",
			version.Version,
			version.Commit,
			version.BuildTime,
		)
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("contentpipe: load config: %v", err)
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	if overrides["sqlite"] {
		cfg.Sink.SQLitePath = strings.TrimSpace(sqlitePath)
	}
	if overrides["export-dir"] {
		cfg.Sink.ExportDir = strings.TrimSpace(exportDir)
	}
	if overrides["raw-dir"] {
		cfg.Scraping.RawDir = strings.TrimSpace(rawDir)
	}
	if overrides["subreddits"] {
		cfg.Scraping.Subreddits = splitComma(subreddits)
	}
	if overrides["workers"] {
		cfg.Scraping.MaxWorkers = workers
	}
	if overrides["post-limit"] {
		cfg.Scraping.DefaultPostLimit = postLimit
	}
	if overrides["http-addr"] {
		cfg.HTTP.Addr = strings.TrimSpace(httpAddr)
	}
	if overrides["http-cors-origins"] {
		cfg.HTTP.AllowedOrigins = splitComma(httpCORS)
	}
	if overrides["http-rate-rps"] {
		cfg.HTTP.RateRPS = httpRPS
	}
	if overrides["http-rate-burst"] {
		cfg.HTTP.RateBurst = httpBurst
	}
	if overrides["http-metrics"] {
		cfg.HTTP.Metrics = httpMetrics
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("contentpipe: config: %v", err)
	}
	log.Printf("%s", cfg.SummaryJSON())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("contentpipe: received %s, shutting down", sig)
		cancel()
	}()

	store, err := sink.OpenSQLite(cfg.Sink.SQLitePath)
	if err != nil {
		log.Fatalf("contentpipe: open sqlite: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("contentpipe: closing store: %v", err)
		}
	}()
	if err := store.Ping(); err != nil {
		log.Fatalf("contentpipe: ping sqlite: %v", err)
	}

	stores := sink.MultiStore{store}
	if cfg.Sink.ExportDir != "" {
		exporter, err := sink.NewJSONExporter(cfg.Sink.ExportDir)
		if err != nil {
			log.Fatalf("contentpipe: export dir: %v", err)
		}
		stores = append(stores, exporter)
	}
	if narrate {
		narrExp, err := script.NewExporter(narrationDir, script.NewProcessor(script.DefaultFormatting()))
		if err != nil {
			log.Fatalf("contentpipe: narration dir: %v", err)
		}
		stores = append(stores, narrationStore{exporter: narrExp})
	}

	build := httpapi.BuildInfo{Version: version.Version, Revision: version.Commit}
	if version.BuildTime != "" && version.BuildTime != "unknown" {
		if t, err := time.Parse(time.RFC3339, version.BuildTime); err == nil {
			build.BuiltAt = t
		}
	}

	var (
		api        *httpapi.Server
		batchStore sink.BatchStore = stores
	)
	if cfg.HTTP.Addr != "" {
		api = httpapi.New(store, httpapi.Options{
			Addr:           cfg.HTTP.Addr,
			RateRPS:        cfg.HTTP.RateRPS,
			RateBurst:      cfg.HTTP.RateBurst,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			EnableMetrics:  cfg.HTTP.Metrics,
			Build:          build,
			ConfigSummary:  cfg.Summary(),
		})
		go func() {
			if err := api.Start(); err != nil {
				log.Fatalf("contentpipe: http api: %v", err)
			}
		}()
		batchStore = sink.WithAPI(stores, api)
		log.Printf("contentpipe: http api ready on %s", cfg.HTTP.Addr)
	}

	var metrics *pipeline.Metrics
	if api != nil && cfg.HTTP.Metrics {
		metrics = pipeline.NewMetrics(api.Metrics().Registry())
	} else {
		metrics = pipeline.NewMetrics(nil)
	}

	var src source.Source
	switch sourceName {
	case "reddit":
		src = source.NewRedditClient(source.RedditOptions{
			RequestsPerMinute: cfg.Scraping.RequestsPerMinute,
			MaxRetries:        cfg.Scraping.MaxRetries,
			RetryDelay:        cfg.RetryDelay(),
		})
	case "file":
		if cfg.Scraping.RawDir == "" {
			log.Fatal("contentpipe: file source requires a raw dir")
		}
		src = source.NewFileSource(cfg.Scraping.RawDir)
	default:
		log.Fatalf("contentpipe: unknown source %q", sourceName)
	}

	orch := pipeline.New(cfg, src, batchStore, metrics)

	runOnce := func() {
		summary, err := orch.Run(ctx)
		if err != nil {
			log.Printf("contentpipe: run interrupted: %v", err)
			return
		}
		if api != nil {
			api.SetRunSummary(summary)
		}
		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			log.Printf("contentpipe: encode summary: %v", err)
			return
		}
		fmt.Println(string(out))
	}

	runs := make(chan struct{}, 1)
	if watch {
		if sourceName != "file" {
			log.Fatal("contentpipe: -watch requires -source=file")
		}
		stop, err := source.WatchRawDir(cfg.Scraping.RawDir, func(path string) {
			slog.Info("raw dump detected", "path", path)
			select {
			case runs <- struct{}{}:
			default:
			}
		})
		if err != nil {
			log.Fatalf("contentpipe: watch raw dir: %v", err)
		}
		defer stop()
	}

	runOnce()

	if watch || api != nil {
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-runs:
				runOnce()
			}
		}
	}

	if api != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		if err := api.Shutdown(shutdownCtx); err != nil {
			log.Printf("contentpipe: http api shutdown: %v", err)
		}
		cancelShutdown()
	}
	log.Printf("contentpipe: shutdown complete")
}

func splitComma(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
