// Package pipeline drives a full retrieval run: load the collection and the
// topics, build (or reload) the index, rank every query under each configured
// model and write one run file per model.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/index/segment"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/runner"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/runstore"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/trec"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/tracing"
)

type State int

const (
	StateInit State = iota
	StateLoaded
	StateIndexBuilt
	StateRanking
	StateResultsWritten
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateIndexBuilt:
		return "index_built"
	case StateRanking:
		return "ranking"
	case StateResultsWritten:
		return "results_written"
	}
	return "init"
}

// Sinks are the optional side outputs of a run. Nil fields are skipped and
// never influence run file contents.
type Sinks struct {
	Cache   *cache.ResultCache
	Metrics *metrics.Metrics
	Events  *events.Emitter
	Store   *runstore.Store
}

type Pipeline struct {
	cfg    *config.Config
	sinks  Sinks
	state  State
	logger *slog.Logger
}

func New(cfg *config.Config, sinks Sinks) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		sinks:  sinks,
		logger: slog.Default().With("component", "pipeline"),
	}
}

// State reports how far the last Run got.
func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) advance(ctx context.Context, s State) {
	p.state = s
	logger.FromContext(ctx).With("component", "pipeline").Debug("state changed", "state", s.String())
}

// Run executes the pipeline. Load, index and configuration failures are
// returned before any run file exists. A write failure stops the remaining
// models but keeps the files already written. Per-query failures only show
// up in the Summary. The returned Summary is never nil.
func (p *Pipeline) Run(ctx context.Context, documentsPath, queriesPath string) (*Summary, error) {
	runID := p.cfg.Output.RunID
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("component", "pipeline")
	ctx, root := tracing.StartSpan(ctx, "run", runID)
	summary := &Summary{}
	p.state = StateInit

	defer func() {
		root.End()
		summary.Stages = root.Durations()
		if p.sinks.Cache != nil {
			summary.CacheHits, summary.CacheMisses = p.sinks.Cache.Stats()
		}
		root.Log(log)
		p.sinks.Metrics.ObserveStages(summary.Stages)
	}()

	rankConfigs, err := p.rankConfigs()
	if err != nil {
		return summary, err
	}
	analyzer, err := analysis.New(p.cfg.Analysis)
	if err != nil {
		return summary, err
	}

	docs, queries, err := p.load(ctx, documentsPath, queriesPath)
	if err != nil {
		return summary, err
	}
	summary.QueriesAttempted = len(queries)
	p.advance(ctx, StateLoaded)

	idx, err := p.index(ctx, docs, analyzer, summary)
	if err != nil {
		return summary, err
	}
	p.advance(ctx, StateIndexBuilt)

	mappingPath, err := trec.WriteQueryMapping(p.cfg.Output.Dir, queries)
	if err != nil {
		return summary, err
	}
	summary.MappingPath = mappingPath

	if p.sinks.Cache != nil && p.cfg.Redis.FlushOnStart {
		if err := p.sinks.Cache.Invalidate(ctx, idx.Fingerprint()); err != nil {
			log.Warn("result cache flush failed", "error", err)
		}
	}

	r := runner.New(idx, runner.Options{
		Workers: p.cfg.Search.Workers,
		Cache:   p.sinks.Cache,
		Metrics: p.sinks.Metrics,
	})
	p.advance(ctx, StateRanking)
	for _, rc := range rankConfigs {
		ms, err := p.rankModel(ctx, r, idx, queries, rc, summary)
		summary.Models = append(summary.Models, ms)
		if err != nil {
			return summary, err
		}
	}
	p.advance(ctx, StateResultsWritten)

	log.Info("run finished",
		"documents", summary.DocumentsIndexed,
		"queries", summary.QueriesAttempted,
		"models", len(summary.Models),
		"failed_queries", summary.FailedQueries(),
	)
	return summary, nil
}

func (p *Pipeline) rankConfigs() ([]ranker.Config, error) {
	configs := make([]ranker.Config, 0, len(p.cfg.Search.Models))
	for _, model := range p.cfg.Search.Models {
		rc := ranker.FromSearchConfig(model, p.cfg.Search)
		if err := rc.Validate(); err != nil {
			return nil, err
		}
		configs = append(configs, rc)
	}
	if len(configs) == 0 {
		return nil, apperrors.New(apperrors.ErrConfig, "no ranking models configured")
	}
	return configs, nil
}

// load reads the collection and the topics concurrently.
func (p *Pipeline) load(ctx context.Context, documentsPath, queriesPath string) ([]corpus.Document, []corpus.Query, error) {
	ctx, span := tracing.StartChildSpan(ctx, "load")
	defer span.End()

	var docs []corpus.Document
	var queries []corpus.Query
	var g errgroup.Group
	g.Go(func() error {
		var err error
		docs, err = corpus.LoadDocuments(documentsPath)
		return err
	})
	g.Go(func() error {
		var err error
		queries, err = corpus.LoadQueries(queriesPath, p.cfg.Queries.Renumber)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	span.SetAttr("documents", len(docs))
	span.SetAttr("queries", len(queries))
	logger.FromContext(ctx).With("component", "pipeline").Info("inputs loaded",
		"documents", len(docs),
		"queries", len(queries),
	)
	return docs, queries, nil
}

// index loads a matching snapshot from indexer.dataDir when one exists and
// builds the index otherwise, saving a snapshot for the next run.
func (p *Pipeline) index(ctx context.Context, docs []corpus.Document, a *analysis.Analyzer, summary *Summary) (*index.InvertedIndex, error) {
	ctx, span := tracing.StartChildSpan(ctx, "index")
	defer span.End()
	log := logger.FromContext(ctx).With("component", "pipeline")
	start := time.Now()

	dataDir := p.cfg.Indexer.DataDir
	var idx *index.InvertedIndex
	if dataDir != "" {
		loaded, err := segment.LoadIfPresent(dataDir, index.Fingerprint(docs, a), a)
		if err != nil {
			log.Warn("index snapshot unavailable, rebuilding", "error", err)
		}
		idx = loaded
		summary.IndexFromSnapshot = loaded != nil
	}
	if idx == nil {
		built, err := index.Build(ctx, docs, a, index.BuildOptions{Workers: p.cfg.Indexer.Workers})
		if err != nil {
			return nil, fmt.Errorf("building index: %w", err)
		}
		idx = built
		if dataDir != "" {
			if path, err := segment.NewWriter(dataDir).Write(idx); err != nil {
				log.Warn("saving index snapshot failed", "error", err)
			} else {
				log.Info("index snapshot saved", "segment", path)
			}
		}
	}

	summary.DocumentsIndexed = idx.DocCount()
	summary.Vocabulary = len(idx.Vocabulary())
	summary.AvgDocLength = idx.AvgDocLength()
	summary.Fingerprint = idx.Fingerprint()
	span.SetAttr("documents", summary.DocumentsIndexed)
	span.SetAttr("from_snapshot", summary.IndexFromSnapshot)
	p.sinks.Metrics.ObserveIndex(summary.DocumentsIndexed, summary.Vocabulary, time.Since(start), summary.IndexFromSnapshot)
	return idx, nil
}

func (p *Pipeline) rankModel(
	ctx context.Context,
	r *runner.Runner,
	idx *index.InvertedIndex,
	queries []corpus.Query,
	rc ranker.Config,
	summary *Summary,
) (ModelSummary, error) {
	model := string(rc.Model)
	ctx, span := tracing.StartChildSpan(ctx, model)
	defer span.End()
	log := logger.FromContext(ctx).With("component", "pipeline", "model", model)

	ms := ModelSummary{Model: model, RunID: p.cfg.Output.RunID + "_" + model}
	outcomes, err := r.Run(ctx, queries, rc)
	if err != nil {
		ms.Err = err
		return ms, err
	}
	run := trec.NewRun(ms.RunID)
	for _, o := range outcomes {
		if o.Err != nil {
			ms.Failed++
			ms.Failures = append(ms.Failures, o.Err)
			continue
		}
		ms.Succeeded++
		run.Add(o.Query.ID, o.Results)
	}

	path, err := trec.WriteRun(p.cfg.Output.Dir, model, run)
	if err != nil {
		ms.Err = err
		return ms, err
	}
	ms.Path = path
	span.SetAttr("failed", ms.Failed)
	p.sinks.Metrics.ObserveRunFile(model)
	log.Info("run file written", "path", path, "lines", run.Lines(), "failed", ms.Failed)

	finished := time.Now()
	if p.sinks.Events != nil {
		err := p.sinks.Events.RunCompleted(ctx, events.RunCompleted{
			RunID:       ms.RunID,
			Model:       model,
			Path:        path,
			Fingerprint: idx.Fingerprint(),
			Queries:     len(queries),
			Succeeded:   ms.Succeeded,
			Failed:      ms.Failed,
			Lines:       run.Lines(),
			FinishedAt:  finished,
		})
		if err != nil {
			log.Warn("publishing run event failed", "error", err)
		}
	}
	if p.sinks.Store != nil {
		err := p.sinks.Store.SaveRun(ctx, runstore.RunRecord{
			RunID:       ms.RunID,
			Model:       model,
			Fingerprint: idx.Fingerprint(),
			Documents:   summary.DocumentsIndexed,
			Vocabulary:  summary.Vocabulary,
			Queries:     len(queries),
			Succeeded:   ms.Succeeded,
			Failed:      ms.Failed,
			Path:        path,
			Config:      rc,
			FinishedAt:  finished,
		})
		if err != nil {
			log.Warn("storing run summary failed", "error", err)
		}
	}
	return ms, nil
}

// ExitCode maps a run outcome to the process exit status: 0 when everything
// succeeded, 2 when run files were written but some queries or a later model
// failed, 1 when the run failed before producing any run file.
func ExitCode(summary *Summary, err error) int {
	if err == nil {
		if summary.FailedQueries() == 0 {
			return apperrors.ExitOK
		}
		return apperrors.ExitPartial
	}
	if summary != nil && summary.FilesWritten() > 0 {
		return apperrors.ExitPartial
	}
	return apperrors.ExitCode(err)
}
