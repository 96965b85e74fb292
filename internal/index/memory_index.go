package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/analysis"
)

// MemoryIndex is a partial inverted index built by one worker over its slice
// of the collection. It is not safe for concurrent use.
type MemoryIndex struct {
	analyzer   *analysis.Analyzer
	index      map[string]PostingList
	docLengths map[string]int
	docOrder   []string
}

func NewMemoryIndex(a *analysis.Analyzer) *MemoryIndex {
	return &MemoryIndex{
		analyzer:   a,
		index:      make(map[string]PostingList),
		docLengths: make(map[string]int),
	}
}

// AddDocument analyses text and appends one posting per distinct term. It
// reports false if docID was already added to this partial.
func (m *MemoryIndex) AddDocument(docID string, text string) bool {
	if _, exists := m.docLengths[docID]; exists {
		return false
	}
	tokens := m.analyzer.Analyze(text)
	termFreqs := make(map[string]int)
	for _, token := range tokens {
		termFreqs[token.Term]++
	}
	for term, freq := range termFreqs {
		m.index[term] = append(m.index[term], Posting{
			DocID:     docID,
			Frequency: freq,
		})
	}
	m.docLengths[docID] = len(tokens)
	m.docOrder = append(m.docOrder, docID)
	return true
}

// Snapshot returns the partial's term entries sorted by term.
func (m *MemoryIndex) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(m.index))
	for term, postings := range m.index {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

func (m *MemoryIndex) DocCount() int {
	return len(m.docOrder)
}

func (m *MemoryIndex) Terms() int {
	return len(m.index)
}
