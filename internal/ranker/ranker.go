// Package ranker scores documents of an InvertedIndex against one query. The
// retrieval model is selected by the Model field of Config; a single Rank
// entry point dispatches on it.
package ranker

import (
	"math"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
)

type Model string

const (
	ModelTFIDF       Model = config.ModelTFIDF
	ModelBM25        Model = config.ModelBM25
	ModelLMDirichlet Model = config.ModelLMDirichlet
)

// Config selects a model and carries its parameters. K1 and B apply to BM25,
// Mu to the Dirichlet language model. TopK of zero keeps every scored
// document.
type Config struct {
	Model Model   `json:"model"`
	K1    float64 `json:"k1"`
	B     float64 `json:"b"`
	Mu    float64 `json:"mu"`
	TopK  int     `json:"top_k"`
}

// FromSearchConfig builds the ranking Config for model from the search
// section of the application config.
func FromSearchConfig(model string, sc config.SearchConfig) Config {
	return Config{
		Model: Model(model),
		K1:    sc.K1,
		B:     sc.B,
		Mu:    sc.Mu,
		TopK:  sc.TopK,
	}
}

func (c Config) Validate() error {
	switch c.Model {
	case ModelTFIDF:
	case ModelBM25:
		if c.K1 < 0 {
			return apperrors.Newf(apperrors.ErrConfig, "bm25 k1 must be >= 0, got %g", c.K1)
		}
		if c.B < 0 || c.B > 1 {
			return apperrors.Newf(apperrors.ErrConfig, "bm25 b must be within [0,1], got %g", c.B)
		}
	case ModelLMDirichlet:
		if c.Mu <= 0 {
			return apperrors.Newf(apperrors.ErrConfig, "dirichlet mu must be > 0, got %g", c.Mu)
		}
	default:
		return apperrors.Newf(apperrors.ErrConfig, "unknown ranking model %q", c.Model)
	}
	if c.TopK < 0 {
		return apperrors.Newf(apperrors.ErrConfig, "topK must be >= 0, got %d", c.TopK)
	}
	return nil
}

// ScoredResult is one ranked document for one query.
type ScoredResult struct {
	QueryID string  `json:"query_id"`
	DocID   string  `json:"doc_id"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// queryTerm is a distinct query term present in the index.
type queryTerm struct {
	term string
	qtf  int
}

// Rank scores every document sharing at least one term with q and returns
// them by descending score, ties broken by ascending document id, truncated
// to cfg.TopK. A query none of whose terms are indexed yields an empty,
// non-nil slice.
func Rank(idx *index.InvertedIndex, q corpus.Query, cfg Config) ([]ScoredResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, apperrors.Newf(apperrors.ErrRanking, "query %s has no text", q.ID)
	}
	terms := queryTerms(idx, q.Text)
	if len(terms) == 0 {
		return []ScoredResult{}, nil
	}

	var scores map[uint32]float64
	switch cfg.Model {
	case ModelTFIDF:
		scores = scoreTFIDF(idx, terms)
	case ModelBM25:
		scores = scoreBM25(idx, terms, cfg.K1, cfg.B)
	case ModelLMDirichlet:
		scores = scoreDirichlet(idx, terms, cfg.Mu)
	}

	results := make([]ScoredResult, 0, len(scores))
	for ord, score := range scores {
		if math.IsNaN(score) || math.IsInf(score, 0) {
			return nil, apperrors.Newf(apperrors.ErrRanking, "query %s: non-finite score for document %s", q.ID, idx.Doc(ord).ID)
		}
		results = append(results, ScoredResult{
			QueryID: q.ID,
			DocID:   idx.Doc(ord).ID,
			Score:   score,
		})
	}
	results = selectTop(results, cfg.TopK)
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// queryTerms analyses text with the index's own analyzer and returns the
// distinct terms known to the index, in ascending order, with their query
// frequencies.
func queryTerms(idx *index.InvertedIndex, text string) []queryTerm {
	counts := make(map[string]int)
	for _, term := range idx.Analyzer().Terms(text) {
		if idx.Has(term) {
			counts[term]++
		}
	}
	terms := make([]queryTerm, 0, len(counts))
	for term, n := range counts {
		terms = append(terms, queryTerm{term: term, qtf: n})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].term < terms[j].term })
	return terms
}

// scoreTFIDF computes the cosine between (1+ln tf)·ln(N/df) vectors.
func scoreTFIDF(idx *index.InvertedIndex, terms []queryTerm) map[uint32]float64 {
	dots := make(map[uint32]float64)
	var queryNorm float64
	for _, qt := range terms {
		idf := idx.IDF(qt.term)
		qw := (1 + math.Log(float64(qt.qtf))) * idf
		queryNorm += qw * qw
		for _, p := range idx.Postings(qt.term) {
			dw := (1 + math.Log(float64(p.Frequency))) * idf
			dots[p.Ordinal] += qw * dw
		}
	}
	queryNorm = math.Sqrt(queryNorm)
	for ord, dot := range dots {
		docNorm := idx.Doc(ord).Norm
		if queryNorm == 0 || docNorm == 0 {
			dots[ord] = 0
			continue
		}
		dots[ord] = dot / (queryNorm * docNorm)
	}
	return dots
}

func scoreBM25(idx *index.InvertedIndex, terms []queryTerm, k1, b float64) map[uint32]float64 {
	scores := make(map[uint32]float64)
	n := float64(idx.DocCount())
	avgDocLength := idx.AvgDocLength()
	for _, qt := range terms {
		idf := bm25IDF(n, float64(idx.DocFreq(qt.term)))
		for _, p := range idx.Postings(qt.term) {
			tfNorm := bm25TFNorm(float64(p.Frequency), float64(idx.Doc(p.Ordinal).Length), avgDocLength, k1, b)
			scores[p.Ordinal] += float64(qt.qtf) * idf * tfNorm
		}
	}
	return scores
}

func bm25IDF(totalDocs, docFreq float64) float64 {
	return math.Log((totalDocs-docFreq+0.5)/(docFreq+0.5) + 1)
}

func bm25TFNorm(termFreq, docLength, avgDocLength, k1, b float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

// scoreDirichlet computes the query log-likelihood under a Dirichlet-smoothed
// document language model for every document containing a query term.
func scoreDirichlet(idx *index.InvertedIndex, terms []queryTerm, mu float64) map[uint32]float64 {
	bitmaps := make([]*roaring.Bitmap, 0, len(terms))
	for _, qt := range terms {
		bitmaps = append(bitmaps, idx.Docs(qt.term))
	}
	candidates := roaring.FastOr(bitmaps...)

	scores := make(map[uint32]float64, candidates.GetCardinality())
	total := float64(idx.TotalLength())
	for _, qt := range terms {
		pc := float64(idx.CollectionFreq(qt.term)) / total
		postings := idx.Postings(qt.term)
		it := candidates.Iterator()
		for it.HasNext() {
			ord := it.Next()
			tf := termFrequency(postings, ord)
			docLength := float64(idx.Doc(ord).Length)
			scores[ord] += float64(qt.qtf) * math.Log((float64(tf)+mu*pc)/(docLength+mu))
		}
	}
	return scores
}

// termFrequency finds ord in postings, which are sorted by ordinal.
func termFrequency(postings index.PostingList, ord uint32) int {
	i := sort.Search(len(postings), func(i int) bool {
		return postings[i].Ordinal >= ord
	})
	if i < len(postings) && postings[i].Ordinal == ord {
		return postings[i].Frequency
	}
	return 0
}
