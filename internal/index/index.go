// Package index builds and serves the read-only inverted index. Each term maps
// to a posting list ordered by document id and to a roaring bitmap of the
// document ordinals it occurs in. Collection statistics (document count,
// total and average length, TF-IDF vector norms) are computed once at build
// time.
package index

import (
	"crypto/sha256"
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
)

type termData struct {
	postings       PostingList
	docs           *roaring.Bitmap
	collectionFreq int64
}

// InvertedIndex is immutable once returned by Build or Load and may be read
// from any number of goroutines without locking.
type InvertedIndex struct {
	analyzer    *analysis.Analyzer
	fingerprint string
	terms       map[string]*termData
	vocab       []string
	docs        []DocStat
	totalLength int64
}

func (idx *InvertedIndex) Analyzer() *analysis.Analyzer {
	return idx.analyzer
}

// Fingerprint identifies the collection content and analyzer the index was
// built from.
func (idx *InvertedIndex) Fingerprint() string {
	return idx.fingerprint
}

func (idx *InvertedIndex) Has(term string) bool {
	_, ok := idx.terms[term]
	return ok
}

// Postings returns the posting list for term, or nil. Callers must not
// modify the returned slice.
func (idx *InvertedIndex) Postings(term string) PostingList {
	if td, ok := idx.terms[term]; ok {
		return td.postings
	}
	return nil
}

// Docs returns the bitmap of document ordinals containing term, or nil.
// Callers must not modify the returned bitmap.
func (idx *InvertedIndex) Docs(term string) *roaring.Bitmap {
	if td, ok := idx.terms[term]; ok {
		return td.docs
	}
	return nil
}

func (idx *InvertedIndex) DocFreq(term string) int {
	if td, ok := idx.terms[term]; ok {
		return int(td.docs.GetCardinality())
	}
	return 0
}

// CollectionFreq is the total number of occurrences of term.
func (idx *InvertedIndex) CollectionFreq(term string) int64 {
	if td, ok := idx.terms[term]; ok {
		return td.collectionFreq
	}
	return 0
}

func (idx *InvertedIndex) DocCount() int {
	return len(idx.docs)
}

func (idx *InvertedIndex) TotalLength() int64 {
	return idx.totalLength
}

func (idx *InvertedIndex) AvgDocLength() float64 {
	if len(idx.docs) == 0 {
		return 0
	}
	return float64(idx.totalLength) / float64(len(idx.docs))
}

func (idx *InvertedIndex) Doc(ordinal uint32) DocStat {
	return idx.docs[ordinal]
}

// DocStats returns the document table in ordinal order.
func (idx *InvertedIndex) DocStats() []DocStat {
	return idx.docs
}

// Vocabulary returns all terms in ascending order.
func (idx *InvertedIndex) Vocabulary() []string {
	return idx.vocab
}

// Entries returns every term with its postings, sorted by term.
func (idx *InvertedIndex) Entries() []TermEntry {
	entries := make([]TermEntry, 0, len(idx.vocab))
	for _, term := range idx.vocab {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: idx.terms[term].postings,
		})
	}
	return entries
}

// IDF is the TF-IDF inverse document frequency ln(N/df); zero for unknown
// terms.
func (idx *InvertedIndex) IDF(term string) float64 {
	df := idx.DocFreq(term)
	if df == 0 {
		return 0
	}
	return math.Log(float64(len(idx.docs)) / float64(df))
}

// Fingerprint hashes document ids and texts, in document-id order, together
// with the analyzer configuration.
func Fingerprint(docs []corpus.Document, a *analysis.Analyzer) string {
	ordered := make([]corpus.Document, len(docs))
	copy(ordered, docs)
	sort.Slice(ordered, func(i, j int) bool {
		return corpus.CompareIDs(ordered[i].ID, ordered[j].ID) < 0
	})
	h := sha256.New()
	fmt.Fprintf(h, "analyzer=%s;docs=%d\n", a.Fingerprint(), len(docs))
	for _, d := range ordered {
		fmt.Fprintf(h, "%d:%s%d:%s\n", len(d.ID), d.ID, len(d.Text), d.Text)
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:12])
}

// FromEntries assembles an index from a document table and term entries,
// as produced by a merge or read back from a segment. Postings are re-sorted
// and their ordinals recomputed against docs.
func FromEntries(a *analysis.Analyzer, fingerprint string, docs []DocStat, entries []TermEntry) (*InvertedIndex, error) {
	sorted := make([]DocStat, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool {
		return corpus.CompareIDs(sorted[i].ID, sorted[j].ID) < 0
	})
	ordinals := make(map[string]uint32, len(sorted))
	var total int64
	for i, d := range sorted {
		if _, dup := ordinals[d.ID]; dup {
			return nil, apperrors.Newf(apperrors.ErrDuplicateID, "document %q indexed twice", d.ID)
		}
		ordinals[d.ID] = uint32(i)
		total += int64(d.Length)
	}

	idx := &InvertedIndex{
		analyzer:    a,
		fingerprint: fingerprint,
		terms:       make(map[string]*termData, len(entries)),
		vocab:       make([]string, 0, len(entries)),
		docs:        sorted,
		totalLength: total,
	}
	for _, entry := range entries {
		if _, dup := idx.terms[entry.Term]; dup {
			return nil, apperrors.Newf(apperrors.ErrCorrupt, "term %q listed twice", entry.Term)
		}
		td := &termData{
			postings: make(PostingList, len(entry.Postings)),
			docs:     roaring.NewBitmap(),
		}
		for i, p := range entry.Postings {
			ord, ok := ordinals[p.DocID]
			if !ok {
				return nil, apperrors.Newf(apperrors.ErrCorrupt, "term %q references unknown document %q", entry.Term, p.DocID)
			}
			if p.Frequency < 1 {
				return nil, apperrors.Newf(apperrors.ErrCorrupt, "term %q has frequency %d for document %q", entry.Term, p.Frequency, p.DocID)
			}
			if td.docs.Contains(ord) {
				return nil, apperrors.Newf(apperrors.ErrDuplicateID, "term %q has two postings for document %q", entry.Term, p.DocID)
			}
			p.Ordinal = ord
			td.postings[i] = p
			td.docs.Add(ord)
			td.collectionFreq += int64(p.Frequency)
		}
		sort.Slice(td.postings, func(i, j int) bool {
			return td.postings[i].Ordinal < td.postings[j].Ordinal
		})
		td.docs.RunOptimize()
		idx.terms[entry.Term] = td
		idx.vocab = append(idx.vocab, entry.Term)
	}
	sort.Strings(idx.vocab)
	idx.computeNorms()
	return idx, nil
}

// computeNorms fills DocStat.Norm with the length of each document's
// (1+ln tf)·ln(N/df) vector. Terms are visited in sorted order so the
// floating-point sums are reproducible.
func (idx *InvertedIndex) computeNorms() {
	sums := make([]float64, len(idx.docs))
	for _, term := range idx.vocab {
		idf := idx.IDF(term)
		if idf == 0 {
			continue
		}
		for _, p := range idx.terms[term].postings {
			w := (1 + math.Log(float64(p.Frequency))) * idf
			sums[p.Ordinal] += w * w
		}
	}
	for i := range idx.docs {
		idx.docs[i].Norm = math.Sqrt(sums[i])
	}
}
