package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
)

// BuildOptions controls index construction.
type BuildOptions struct {
	// Workers is the number of partitions built in parallel. Values below
	// one mean one.
	Workers int
}

// Build indexes docs with analyzer a. Documents are split into contiguous
// partitions, each indexed into its own MemoryIndex, and the partials are
// merged as a union grouped by term. The result does not depend on the
// worker count or on the order of docs.
func Build(ctx context.Context, docs []corpus.Document, a *analysis.Analyzer, opts BuildOptions) (*InvertedIndex, error) {
	logger := slog.Default().With("component", "indexer")
	start := time.Now()

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(docs) && len(docs) > 0 {
		workers = len(docs)
	}

	partials := make([]*MemoryIndex, workers)
	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(docs) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		w := w // per-iteration copy; go.mod targets go1.21 (pre-1.22 loop semantics)
		lo := w * chunk
		hi := min(lo+chunk, len(docs))
		g.Go(func() error {
			mi := NewMemoryIndex(a)
			for i := lo; i < hi; i++ {
				if (i-lo)%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				if !mi.AddDocument(docs[i].ID, docs[i].Text) {
					return apperrors.Newf(apperrors.ErrDuplicateID, "document %q appears twice in the collection", docs[i].ID)
				}
			}
			partials[w] = mi
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building partial indexes: %w", err)
	}

	docStats, entries := merge(partials)
	idx, err := FromEntries(a, Fingerprint(docs, a), docStats, entries)
	if err != nil {
		return nil, fmt.Errorf("merging partial indexes: %w", err)
	}
	logger.Info("index built",
		"docs", idx.DocCount(),
		"terms", len(idx.Vocabulary()),
		"avg_doc_length", idx.AvgDocLength(),
		"partitions", workers,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return idx, nil
}

// merge unions the partials' postings per term and collects document
// lengths. FromEntries re-sorts everything, so arrival order is irrelevant.
func merge(partials []*MemoryIndex) ([]DocStat, []TermEntry) {
	merged := make(map[string]PostingList)
	var docStats []DocStat
	for _, mi := range partials {
		if mi == nil {
			continue
		}
		for _, entry := range mi.Snapshot() {
			merged[entry.Term] = append(merged[entry.Term], entry.Postings...)
		}
		for _, id := range mi.docOrder {
			docStats = append(docStats, DocStat{ID: id, Length: mi.docLengths[id]})
		}
	}
	entries := make([]TermEntry, 0, len(merged))
	for term, postings := range merged {
		entries = append(entries, TermEntry{Term: term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return docStats, entries
}
