package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/runstore"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/resilience"
)

func main() {
	os.Exit(run())
}

func run() int {
	documents := flag.String("documents", "", "path to the document collection (XML)")
	queries := flag.String("queries", "", "path to the topics file (XML)")
	outputDir := flag.String("output_dir", "", "directory for run files (default from config)")
	runID := flag.String("run_id", "", "run id prefix; files carry <run_id>_<model> (default my_search_engine)")
	models := flag.String("models", "", "comma-separated models: tfidf,bm25,lm-dirichlet (default all)")
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return apperrors.ExitFatal
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *runID != "" {
		cfg.Output.RunID = *runID
	}
	if *models != "" {
		cfg.Search.Models = config.ParseModels(*models)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return apperrors.ExitFatal
	}
	if *documents == "" || *queries == "" {
		fmt.Fprintln(os.Stderr, "both --documents and --queries are required")
		flag.Usage()
		return apperrors.ExitFatal
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, closeSinks := openSinks(ctx, cfg)
	defer closeSinks()

	slog.Info("starting run",
		"run_id", cfg.Output.RunID,
		"models", cfg.Search.Models,
		"output_dir", cfg.Output.Dir,
	)
	summary, err := pipeline.New(cfg, sinks).Run(ctx, *documents, *queries)
	summary.Print(os.Stdout)
	if err != nil {
		slog.Error("run failed", "error", err)
	}
	if err := sinks.Metrics.Export(ctx, cfg.Metrics.Textfile, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		slog.Warn("exporting metrics failed", "error", err)
	}
	return pipeline.ExitCode(summary, err)
}

// openSinks connects the optional outputs enabled in cfg. A sink that cannot
// be reached is logged and left out; it never fails the run.
func openSinks(ctx context.Context, cfg *config.Config) (pipeline.Sinks, func()) {
	sinks := pipeline.Sinks{Metrics: metrics.New()}
	var closers []func() error

	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("result cache disabled", "error", err)
		} else {
			sinks.Cache = cache.New(client, cfg.Redis.CacheTTL)
			closers = append(closers, client.Close)
		}
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		sinks.Events = events.NewEmitter(producer, resilience.RetryConfig{})
		closers = append(closers, producer.Close)
	}
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("run store disabled", "error", err)
		} else {
			store := runstore.NewStore(db)
			if err := store.EnsureSchema(ctx); err != nil {
				slog.Warn("run store disabled", "error", err)
				db.Close()
			} else {
				sinks.Store = store
				closers = append(closers, db.Close)
			}
		}
	}
	return sinks, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("closing sink failed", "error", err)
			}
		}
	}
}
