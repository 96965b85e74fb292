package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/eval"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/runstore"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/trec"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	qrelsPath := flag.String("qrels", "", "path to the relevance judgments file")
	resultsDir := flag.String("results_dir", "", "directory holding results_*.txt run files")
	trecEvalPath := flag.String("trec_eval_path", "", "trec_eval binary to run in addition to the built-in measures")
	perQuery := flag.Bool("per_query", false, "print per-query measures")
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return apperrors.ExitFatal
	}
	if *qrelsPath == "" || *resultsDir == "" {
		fmt.Fprintln(os.Stderr, "both --qrels and --results_dir are required")
		flag.Usage()
		return apperrors.ExitFatal
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("evaluate")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	qrels, err := corpus.LoadQrels(*qrelsPath)
	if err != nil {
		log.Error("loading qrels failed", "error", err)
		return apperrors.ExitFatal
	}
	files, err := filepath.Glob(filepath.Join(*resultsDir, "results_*.txt"))
	if err != nil || len(files) == 0 {
		log.Error("no result files found", "dir", *resultsDir)
		return apperrors.ExitFatal
	}
	sort.Strings(files)
	if _, err := os.Stat(filepath.Join(*resultsDir, trec.MappingFileName)); err != nil {
		log.Warn("query id mapping file not found, assuming sequential ids")
	}

	var trecEval string
	if *trecEvalPath != "" {
		trecEval, err = eval.ResolveTrecEval(*trecEvalPath)
		if err != nil {
			log.Warn("trec_eval unavailable, using built-in measures only", "error", err)
		}
	}

	var store *runstore.Store
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			log.Warn("run store disabled", "error", err)
		} else {
			defer db.Close()
			store = runstore.NewStore(db)
			if err := store.EnsureSchema(ctx); err != nil {
				log.Warn("run store disabled", "error", err)
				store = nil
			}
		}
	}

	failed := 0
	for _, path := range files {
		model := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "results_"), ".txt")
		fmt.Printf("\n%s\nEvaluating %s\n%s\n", strings.Repeat("-", 80), model, strings.Repeat("-", 80))

		runFile, err := trec.ReadRun(path)
		if err != nil {
			log.Error("reading run failed", "path", path, "error", err)
			failed++
			continue
		}
		report := eval.Evaluate(runFile, qrels)
		if err := report.Write(os.Stdout, *perQuery); err != nil {
			log.Error("writing report failed", "error", err)
			return apperrors.ExitFatal
		}
		if store != nil {
			previous, found, err := store.LatestMAP(ctx, report.RunID)
			if err != nil {
				log.Warn("reading previous evaluation failed", "run_id", report.RunID, "error", err)
			} else if found {
				log.Info("map compared with previous evaluation",
					"run_id", report.RunID,
					"previous", previous,
					"current", report.All.AP,
					"delta", report.All.AP-previous,
				)
			}
			if err := store.SaveEvaluation(ctx, report, time.Now()); err != nil {
				log.Warn("storing evaluation failed", "run_id", report.RunID, "error", err)
			}
		}
		if trecEval != "" {
			out, err := eval.RunTrecEval(ctx, trecEval, *qrelsPath, path)
			if err != nil {
				log.Error("trec_eval failed", "path", path, "error", err)
				failed++
				continue
			}
			fmt.Printf("\ntrec_eval:\n%s", out)
		}
		log.Debug("run evaluated", "run_id", report.RunID, "queries", len(report.Queries))
	}
	if failed > 0 {
		return apperrors.ExitPartial
	}
	return apperrors.ExitOK
}
