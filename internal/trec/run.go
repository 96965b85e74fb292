// Package trec reads and writes run files in the six-column format consumed
// by trec_eval:
//
//	query_id Q0 doc_id rank score run_id
package trec

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
)

const MappingFileName = "query_id_mapping.txt"

// Run is the ranked output of one retrieval model over a query set.
// QueryOrder fixes the order queries appear in the file; queries missing
// from Results contribute no lines.
type Run struct {
	RunID      string
	QueryOrder []string
	Results    map[string][]ranker.ScoredResult
}

func NewRun(runID string) *Run {
	return &Run{
		RunID:   runID,
		Results: make(map[string][]ranker.ScoredResult),
	}
}

// Add appends the results for queryID, keeping first-seen query order.
func (r *Run) Add(queryID string, results []ranker.ScoredResult) {
	if _, ok := r.Results[queryID]; !ok {
		r.QueryOrder = append(r.QueryOrder, queryID)
	}
	r.Results[queryID] = append(r.Results[queryID], results...)
}

// Lines counts the result lines the run will produce.
func (r *Run) Lines() int {
	n := 0
	for _, qid := range r.QueryOrder {
		n += len(r.Results[qid])
	}
	return n
}

// FileName returns the run file name for name, e.g. results_bm25.txt.
func FileName(name string) string {
	return fmt.Sprintf("results_%s.txt", name)
}

// FormatLine renders one result line without the trailing newline.
func FormatLine(res ranker.ScoredResult, runID string) string {
	return fmt.Sprintf("%s Q0 %s %d %.6f %s", res.QueryID, res.DocID, res.Rank, res.Score, runID)
}

// WriteRun writes run to dir/results_<name>.txt through a temporary file in
// the same directory, so the final file is either complete or absent. Any
// filesystem failure is reported as ErrWrite.
func WriteRun(dir, name string, run *Run) (string, error) {
	if run.RunID == "" || strings.ContainsAny(run.RunID, " \t\r\n") {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, "run id %q must be a non-empty single token", run.RunID)
	}
	path := filepath.Join(dir, FileName(name))
	err := writeAtomic(dir, path, func(w *bufio.Writer) error {
		for _, qid := range run.QueryOrder {
			for _, res := range run.Results[qid] {
				if _, err := w.WriteString(FormatLine(res, run.RunID)); err != nil {
					return err
				}
				if err := w.WriteByte('\n'); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrWrite, err, "writing run "+path)
	}
	return path, nil
}

// WriteQueryMapping records which sequential query id stands for which
// <num> from the topics file.
func WriteQueryMapping(dir string, queries []corpus.Query) (string, error) {
	path := filepath.Join(dir, MappingFileName)
	err := writeAtomic(dir, path, func(w *bufio.Writer) error {
		if _, err := w.WriteString("sequential_id,original_id\n"); err != nil {
			return err
		}
		for _, q := range queries {
			if _, err := fmt.Fprintf(w, "%s,%s\n", q.ID, q.OriginalID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrWrite, err, "writing query mapping "+path)
	}
	return path, nil
}

func writeAtomic(dir, path string, fill func(*bufio.Writer) error) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := fill(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing: %w", err)
	}
	if err := f.Chmod(0o644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// ReadRun parses a run file. The run id is taken from the first line; lines
// with a different run id are rejected.
func ReadRun(path string) (*Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening run file: %w", err)
	}
	defer f.Close()

	run := &Run{Results: make(map[string][]ranker.ScoredResult)}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 6 {
			return nil, apperrors.Newf(apperrors.ErrParse, "%s line %d: expected 6 fields, got %d", path, lineNo, len(fields))
		}
		rank, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrParse, "%s line %d: bad rank %q", path, lineNo, fields[3])
		}
		score, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrParse, "%s line %d: bad score %q", path, lineNo, fields[4])
		}
		if run.RunID == "" {
			run.RunID = fields[5]
		} else if fields[5] != run.RunID {
			return nil, apperrors.Newf(apperrors.ErrParse, "%s line %d: run id %q differs from %q", path, lineNo, fields[5], run.RunID)
		}
		run.Add(fields[0], []ranker.ScoredResult{{
			QueryID: fields[0],
			DocID:   fields[2],
			Rank:    rank,
			Score:   score,
		}})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading run file: %w", err)
	}
	return run, nil
}
