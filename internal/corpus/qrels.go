package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
)

// Qrel is one relevance judgment line.
type Qrel struct {
	QueryID   string
	Iteration string
	DocID     string
	Relevance int
}

// Qrels maps query ID to document ID to relevance grade.
type Qrels map[string]map[string]int

// Relevance returns the grade for (queryID, docID) and whether it was judged.
func (q Qrels) Relevance(queryID, docID string) (int, bool) {
	docs, ok := q[queryID]
	if !ok {
		return 0, false
	}
	rel, ok := docs[docID]
	return rel, ok
}

// Relevant counts documents with a positive grade for queryID.
func (q Qrels) Relevant(queryID string) int {
	n := 0
	for _, rel := range q[queryID] {
		if rel > 0 {
			n++
		}
	}
	return n
}

// QueryIDs returns the judged query IDs in ascending order.
func (q Qrels) QueryIDs() []string {
	ids := make([]string, 0, len(q))
	for id := range q {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return CompareIDs(ids[i], ids[j]) < 0 })
	return ids
}

// LoadQrels parses the judgments file at path.
func LoadQrels(path string) (Qrels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrParse, "opening qrels %s: %v", path, err)
	}
	defer f.Close()
	qrels, err := ReadQrels(f)
	if err != nil {
		return nil, fmt.Errorf("loading qrels %s: %w", path, err)
	}
	return qrels, nil
}

// ReadQrels parses "query iteration doc relevance" lines. Blank lines are
// skipped; any other malformed line is a ParseError.
func ReadQrels(r io.Reader) (Qrels, error) {
	qrels := make(Qrels)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		q, err := parseQrel(line)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrParse, "qrels line %d: %v", lineNo, err)
		}
		docs, ok := qrels[q.QueryID]
		if !ok {
			docs = make(map[string]int)
			qrels[q.QueryID] = docs
		}
		docs[q.DocID] = q.Relevance
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Newf(apperrors.ErrParse, "reading qrels: %v", err)
	}
	return qrels, nil
}

func parseQrel(line string) (Qrel, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Qrel{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	rel, err := strconv.Atoi(fields[3])
	if err != nil {
		return Qrel{}, fmt.Errorf("relevance %q is not an integer", fields[3])
	}
	return Qrel{
		QueryID:   fields[0],
		Iteration: fields[1],
		DocID:     fields[2],
		Relevance: rel,
	}, nil
}

// CompareIDs orders identifiers numerically when both are unsigned integers
// and lexicographically otherwise. Numeric IDs sort before non-numeric ones.
func CompareIDs(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return strings.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}
