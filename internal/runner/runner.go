// Package runner ranks a batch of queries against a shared read-only index.
// Queries run concurrently on a bounded errgroup; a failure for one query is
// recorded in its Outcome and never stops the others.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/metrics"
)

// Outcome is the result of ranking one query. Err, when set, matches
// apperrors.ErrRanking.
type Outcome struct {
	Query   corpus.Query
	Results []ranker.ScoredResult
	Err     error
	Cached  bool
}

type Options struct {
	Workers int
	Cache   *cache.ResultCache
	Metrics *metrics.Metrics
}

type Runner struct {
	idx     *index.InvertedIndex
	workers int
	cache   *cache.ResultCache
	metrics *metrics.Metrics
	logger  *slog.Logger
	rank    func(*index.InvertedIndex, corpus.Query, ranker.Config) ([]ranker.ScoredResult, error)
}

func New(idx *index.InvertedIndex, opts Options) *Runner {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		idx:     idx,
		workers: workers,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "query-runner"),
		rank:    ranker.Rank,
	}
}

// Run ranks every query with cfg and returns one Outcome per query in the
// order given. It returns an error only for an invalid cfg or a cancelled
// ctx; per-query failures are reported through the outcomes.
func (r *Runner) Run(ctx context.Context, queries []corpus.Query, cfg ranker.Config) ([]Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	outcomes := make([]Outcome, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, q := range queries {
		i, q := i, q // per-iteration copy; go.mod targets go1.21 (pre-1.22 loop semantics)
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.rankOne(gctx, q, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ranking %s queries: %w", cfg.Model, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ranking %s queries: %w", cfg.Model, err)
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	r.logger.Info("queries ranked",
		"model", cfg.Model,
		"queries", len(queries),
		"failed", failed,
	)
	return outcomes, nil
}

func (r *Runner) rankOne(ctx context.Context, q corpus.Query, cfg ranker.Config) (out Outcome) {
	start := time.Now()
	out.Query = q
	defer func() {
		if p := recover(); p != nil {
			out.Results = nil
			out.Err = apperrors.Newf(apperrors.ErrRanking, "query %s: panic: %v", q.ID, p)
		}
		status := "ok"
		switch {
		case out.Err != nil:
			status = "error"
			r.logger.Error("query failed", "query_id", q.ID, "model", cfg.Model, "error", out.Err)
		case len(out.Results) == 0:
			status = "empty"
		}
		r.metrics.ObserveQuery(string(cfg.Model), status, out.Cached, time.Since(start), len(out.Results))
	}()

	compute := func() ([]ranker.ScoredResult, error) {
		return r.rank(r.idx, q, cfg)
	}
	var err error
	if r.cache != nil {
		out.Results, out.Cached, err = r.cache.GetOrCompute(ctx, r.idx, q, cfg, compute)
		if !out.Cached {
			r.metrics.ObserveCacheMiss()
		}
	} else {
		out.Results, err = compute()
	}
	if err != nil {
		out.Results = nil
		if !errors.Is(err, apperrors.ErrRanking) {
			err = apperrors.Wrap(apperrors.ErrRanking, err, "query "+q.ID)
		}
		out.Err = err
	}
	return out
}

// Failures lists the failed outcomes' errors in query order.
func Failures(outcomes []Outcome) []error {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}
