package eval

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/trec"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func sampleRun() *trec.Run {
	run := trec.NewRun("test_bm25")
	run.Add("1", []ranker.ScoredResult{
		{QueryID: "1", DocID: "d1", Rank: 1, Score: 4},
		{QueryID: "1", DocID: "d2", Rank: 2, Score: 3},
		{QueryID: "1", DocID: "d3", Rank: 3, Score: 2},
		{QueryID: "1", DocID: "d4", Rank: 4, Score: 1},
	})
	run.Add("2", []ranker.ScoredResult{
		{QueryID: "2", DocID: "d1", Rank: 1, Score: 1},
	})
	return run
}

func sampleQrels(t *testing.T) corpus.Qrels {
	t.Helper()
	qrels, err := corpus.ReadQrels(strings.NewReader(`1 0 d1 2
1 0 d3 1
1 0 d9 1
1 0 d2 0
3 0 d1 0
4 0 d1 1
`))
	if err != nil {
		t.Fatal(err)
	}
	return qrels
}

func TestEvaluate(t *testing.T) {
	report := Evaluate(sampleRun(), sampleQrels(t))
	if len(report.Queries) != 1 {
		t.Fatalf("evaluated %d queries, want 1", len(report.Queries))
	}
	m := report.Queries[0]
	if m.QueryID != "1" || m.NumRet != 4 || m.NumRel != 3 || m.NumRelRet != 2 {
		t.Fatalf("counts = %+v", m)
	}
	idcg := 2 + 1/math.Log2(3) + 0.5
	checks := []struct {
		name      string
		got, want float64
	}{
		{MAP, m.AP, (1 + 2.0/3) / 3},
		{P5, m.P5, 0.4},
		{P10, m.P10, 0.2},
		{RPrec, m.RPrec, 2.0 / 3},
		{RecipRank, m.RecipRank, 1},
		{NDCG10, m.NDCG10, 2.5 / idcg},
	}
	for _, c := range checks {
		if !approx(c.got, c.want) {
			t.Errorf("%s = %g, want %g", c.name, c.got, c.want)
		}
	}
	if !approx(report.All.AP, m.AP) || report.All.NumRet != 4 {
		t.Errorf("aggregate = %+v", report.All)
	}
}

func TestEvaluateNoRelevantRetrieved(t *testing.T) {
	run := trec.NewRun("r")
	run.Add("4", []ranker.ScoredResult{{QueryID: "4", DocID: "d7", Rank: 1, Score: 1}})
	report := Evaluate(run, sampleQrels(t))
	if len(report.Queries) != 1 {
		t.Fatalf("queries = %d", len(report.Queries))
	}
	m := report.Queries[0]
	if m.AP != 0 || m.RecipRank != 0 || m.NDCG10 != 0 || m.NumRelRet != 0 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestEvaluateEmptyRun(t *testing.T) {
	report := Evaluate(trec.NewRun("empty"), sampleQrels(t))
	if len(report.Queries) != 0 || report.All.AP != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestReportWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Evaluate(sampleRun(), sampleQrels(t)).Write(&buf, true); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"runid                 \tall\ttest_bm25\n",
		"num_rel_ret           \t1\t2\n",
		"map                   \tall\t0.5556\n",
		"P_5                   \tall\t0.4000\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
