// Package eval scores run files against relevance judgments with a subset of
// the trec_eval measures. A document is relevant when its grade is positive;
// nDCG uses the grade itself as gain.
package eval

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/trec"
)

// Measure names, in report order.
const (
	NumRet    = "num_ret"
	NumRel    = "num_rel"
	NumRelRet = "num_rel_ret"
	MAP       = "map"
	P5        = "P_5"
	P10       = "P_10"
	RPrec     = "Rprec"
	RecipRank = "recip_rank"
	NDCG10    = "ndcg_cut_10"
)

var Measures = []string{NumRet, NumRel, NumRelRet, MAP, P5, P10, RPrec, RecipRank, NDCG10}

// QueryMetrics holds the measures for one query, or their aggregate when
// QueryID is "all" (counts summed, the rest averaged).
type QueryMetrics struct {
	QueryID   string
	NumRet    int
	NumRel    int
	NumRelRet int
	AP        float64
	P5        float64
	P10       float64
	RPrec     float64
	RecipRank float64
	NDCG10    float64
}

// Value returns the named measure.
func (m QueryMetrics) Value(measure string) float64 {
	switch measure {
	case NumRet:
		return float64(m.NumRet)
	case NumRel:
		return float64(m.NumRel)
	case NumRelRet:
		return float64(m.NumRelRet)
	case MAP:
		return m.AP
	case P5:
		return m.P5
	case P10:
		return m.P10
	case RPrec:
		return m.RPrec
	case RecipRank:
		return m.RecipRank
	case NDCG10:
		return m.NDCG10
	}
	return math.NaN()
}

type Report struct {
	RunID   string
	Queries []QueryMetrics
	All     QueryMetrics
}

// Evaluate scores every query of run that has at least one relevant
// judgment. Queries judged but absent from the run are not counted, matching
// trec_eval without -c.
func Evaluate(run *trec.Run, qrels corpus.Qrels) Report {
	report := Report{RunID: run.RunID, All: QueryMetrics{QueryID: "all"}}
	ids := make([]string, 0, len(run.QueryOrder))
	for _, qid := range run.QueryOrder {
		if qrels.Relevant(qid) > 0 {
			ids = append(ids, qid)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return corpus.CompareIDs(ids[i], ids[j]) < 0 })

	for _, qid := range ids {
		m := evaluateQuery(qid, run.Results[qid], qrels[qid])
		report.Queries = append(report.Queries, m)
		report.All.NumRet += m.NumRet
		report.All.NumRel += m.NumRel
		report.All.NumRelRet += m.NumRelRet
		report.All.AP += m.AP
		report.All.P5 += m.P5
		report.All.P10 += m.P10
		report.All.RPrec += m.RPrec
		report.All.RecipRank += m.RecipRank
		report.All.NDCG10 += m.NDCG10
	}
	if n := float64(len(report.Queries)); n > 0 {
		report.All.AP /= n
		report.All.P5 /= n
		report.All.P10 /= n
		report.All.RPrec /= n
		report.All.RecipRank /= n
		report.All.NDCG10 /= n
	}
	return report
}

func evaluateQuery(qid string, results []ranker.ScoredResult, judged map[string]int) QueryMetrics {
	ranked := make([]ranker.ScoredResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Rank < ranked[j].Rank
	})

	m := QueryMetrics{QueryID: qid, NumRet: len(ranked)}
	gains := make([]int, 0, len(judged))
	for _, rel := range judged {
		if rel > 0 {
			m.NumRel++
			gains = append(gains, rel)
		}
	}
	if m.NumRel == 0 {
		return m
	}

	var precisionSum, dcg float64
	for i, res := range ranked {
		pos := i + 1
		rel := judged[res.DocID]
		if rel <= 0 {
			continue
		}
		m.NumRelRet++
		precisionSum += float64(m.NumRelRet) / float64(pos)
		if m.RecipRank == 0 {
			m.RecipRank = 1 / float64(pos)
		}
		if pos <= 5 {
			m.P5++
		}
		if pos <= 10 {
			m.P10++
			dcg += float64(rel) / math.Log2(float64(pos+1))
		}
		if pos <= m.NumRel {
			m.RPrec++
		}
	}
	m.AP = precisionSum / float64(m.NumRel)
	m.P5 /= 5
	m.P10 /= 10
	m.RPrec /= float64(m.NumRel)

	sort.Sort(sort.Reverse(sort.IntSlice(gains)))
	var idcg float64
	for i, g := range gains {
		if i == 10 {
			break
		}
		idcg += float64(g) / math.Log2(float64(i+2))
	}
	if idcg > 0 {
		m.NDCG10 = dcg / idcg
	}
	return m
}

// Write prints the report in trec_eval's three-column layout. With perQuery
// set, per-query lines precede the "all" block.
func (r Report) Write(w io.Writer, perQuery bool) error {
	rows := []QueryMetrics{}
	if perQuery {
		rows = append(rows, r.Queries...)
	}
	if _, err := fmt.Fprintf(w, "%-22s\t%s\t%s\n", "runid", "all", r.RunID); err != nil {
		return err
	}
	rows = append(rows, r.All)
	for _, m := range rows {
		for _, measure := range Measures {
			if _, err := fmt.Fprintf(w, "%-22s\t%s\t%s\n", measure, m.QueryID, formatValue(measure, m.Value(measure))); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatValue(measure string, v float64) string {
	switch measure {
	case NumRet, NumRel, NumRelRet:
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%.4f", v)
}
