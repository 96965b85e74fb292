package pipeline

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// ModelSummary describes the run file produced for one model.
type ModelSummary struct {
	Model     string
	RunID     string
	Path      string
	Succeeded int
	Failed    int
	Failures  []error
	Err       error
}

type Summary struct {
	DocumentsIndexed  int
	Vocabulary        int
	AvgDocLength      float64
	Fingerprint       string
	IndexFromSnapshot bool
	QueriesAttempted  int
	MappingPath       string
	Models            []ModelSummary
	CacheHits         int64
	CacheMisses       int64
	Stages            map[string]time.Duration
}

// FailedQueries counts failed (model, query) pairs.
func (s *Summary) FailedQueries() int {
	n := 0
	for _, m := range s.Models {
		n += m.Failed
	}
	return n
}

func (s *Summary) FilesWritten() int {
	n := 0
	for _, m := range s.Models {
		if m.Path != "" {
			n++
		}
	}
	return n
}

// Print writes the human-readable report shown at the end of a run.
func (s *Summary) Print(w io.Writer) {
	source := "built"
	if s.IndexFromSnapshot {
		source = "loaded from snapshot"
	}
	fmt.Fprintf(w, "Indexed %d documents (%s)\n", s.DocumentsIndexed, source)
	fmt.Fprintf(w, "Vocabulary size: %d terms\n", s.Vocabulary)
	fmt.Fprintf(w, "Average document length: %.2f terms\n", s.AvgDocLength)
	fmt.Fprintf(w, "Queries: %d\n", s.QueriesAttempted)
	if s.MappingPath != "" {
		fmt.Fprintf(w, "Query ID mapping saved to %s\n", s.MappingPath)
	}
	for _, m := range s.Models {
		switch {
		case m.Err != nil:
			fmt.Fprintf(w, "%-13s FAILED: %v\n", m.Model, m.Err)
		default:
			fmt.Fprintf(w, "%-13s %d ok, %d failed -> %s\n", m.Model, m.Succeeded, m.Failed, m.Path)
		}
		for _, err := range m.Failures {
			fmt.Fprintf(w, "  %v\n", err)
		}
	}
	if s.CacheHits+s.CacheMisses > 0 {
		fmt.Fprintf(w, "Result cache: %d hits, %d misses\n", s.CacheHits, s.CacheMisses)
	}
	if len(s.Stages) > 0 {
		names := make([]string, 0, len(s.Stages))
		for name := range s.Stages {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(w, "Timings:")
		for _, name := range names {
			fmt.Fprintf(w, "  %-24s %s\n", name, s.Stages[name].Round(time.Millisecond))
		}
	}
}
