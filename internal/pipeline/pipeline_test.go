package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/trec"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/redis"
)

const docsXML = `<doc>
<docno>1</docno>
<title>experimental investigation of the aerodynamics of a wing in a slipstream</title>
<author>brenckman,m.</author>
<bib>j. ae. scs. 25, 1958, 324.</bib>
<text>an experimental study of a wing in a propeller slipstream was made in order to determine the spanwise distribution of the lift increase due to slipstream.</text>
</doc>
<doc>
<docno>2</docno>
<title>simple shear flow past a flat plate in an incompressible fluid of small viscosity</title>
<author>ting-yili</author>
<bib>department of aeronautical engineering.</bib>
<text>in the study of high-speed viscous flow past a two-dimensional body it is usually necessary to consider a curved shock wave.</text>
</doc>
<doc>
<docno>3</docno>
<title>the boundary layer in simple shear flow past a flat plate</title>
<author>m. b. glauert</author>
<bib>department of mathematics, university of manchester.</bib>
<text>the boundary-layer equations are presented for steady incompressible flow with no pressure gradient.</text>
</doc>
<doc>
<docno>12</docno>
<title>heat transfer in a laminar boundary layer on a flat plate</title>
<author>smith</author>
<bib>j. heat transfer.</bib>
<text>heat transfer through the laminar boundary layer of a plate at supersonic speeds.</text>
</doc>
`

const topicsXML = `<top>
<num>001</num>
<title>what similarity laws must be obeyed when constructing aeroelastic models of a wing in a slipstream .</title>
</top>
<top>
<num>002</num>
<title>boundary layer flow past a flat plate .</title>
</top>
<top>
<num>004</num>
<title>heat transfer in laminar boundary layers .</title>
</top>
<top>
<num>008</num>
<title>zeppelin mooring masts</title>
</top>
`

func writeInputs(t *testing.T, docs, topics string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	docsPath := filepath.Join(dir, "cran.all.xml")
	topicsPath := filepath.Join(dir, "cran.qry.xml")
	if err := os.WriteFile(docsPath, []byte(docs), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(topicsPath, []byte(topics), 0o644); err != nil {
		t.Fatal(err)
	}
	return docsPath, topicsPath
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.Indexer.Workers = 2
	cfg.Search.Workers = 3
	return cfg
}

func readAll(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string][]byte)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		out[e.Name()] = data
	}
	return out
}

func TestRunWritesOneFilePerModel(t *testing.T) {
	docsPath, topicsPath := writeInputs(t, docsXML, topicsXML)
	cfg := testConfig(t)
	m := metrics.New()
	p := New(cfg, Sinks{Metrics: m})

	summary, err := p.Run(context.Background(), docsPath, topicsPath)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.State() != StateResultsWritten {
		t.Errorf("state = %s", p.State())
	}
	if summary.DocumentsIndexed != 4 || summary.QueriesAttempted != 4 || summary.Vocabulary == 0 {
		t.Errorf("summary = %+v", summary)
	}
	if ExitCode(summary, err) != apperrors.ExitOK {
		t.Errorf("exit code = %d", ExitCode(summary, err))
	}

	files := readAll(t, cfg.Output.Dir)
	for _, name := range []string{"results_tfidf.txt", "results_bm25.txt", "results_lm-dirichlet.txt", trec.MappingFileName} {
		if _, ok := files[name]; !ok {
			t.Fatalf("missing %s, have %v", name, files)
		}
	}
	if len(files) != 4 {
		t.Errorf("unexpected files in output: %d", len(files))
	}
	if got := string(files[trec.MappingFileName]); got != "sequential_id,original_id\n1,001\n2,002\n3,004\n4,008\n" {
		t.Errorf("mapping = %q", got)
	}

	for _, ms := range summary.Models {
		run, err := trec.ReadRun(ms.Path)
		if err != nil {
			t.Fatalf("ReadRun(%s): %v", ms.Path, err)
		}
		if run.RunID != "my_search_engine_"+ms.Model {
			t.Errorf("run id = %s", run.RunID)
		}
		if _, ok := run.Results["4"]; ok {
			t.Errorf("%s: query with no indexed terms should produce no lines", ms.Model)
		}
		top := run.Results["3"]
		if len(top) == 0 || top[0].DocID != "12" {
			t.Errorf("%s: heat transfer query should rank doc 12 first, got %+v", ms.Model, top)
		}
		for qid, results := range run.Results {
			seen := make(map[string]bool)
			for i, r := range results {
				if r.Rank != i+1 || seen[r.DocID] {
					t.Errorf("%s query %s: bad rank or duplicate doc at %d", ms.Model, qid, i)
				}
				seen[r.DocID] = true
			}
		}
	}
	if _, ok := summary.Stages["run/index"]; !ok {
		t.Errorf("stage timings missing: %v", summary.Stages)
	}

	var buf bytes.Buffer
	summary.Print(&buf)
	if !strings.Contains(buf.String(), "Indexed 4 documents") {
		t.Errorf("summary output:\n%s", buf.String())
	}
}

func TestRunIsByteIdentical(t *testing.T) {
	docsPath, topicsPath := writeInputs(t, docsXML, topicsXML)

	first := testConfig(t)
	if _, err := New(first, Sinks{}).Run(context.Background(), docsPath, topicsPath); err != nil {
		t.Fatal(err)
	}
	second := testConfig(t)
	second.Indexer.Workers = 1
	second.Search.Workers = 8
	if _, err := New(second, Sinks{}).Run(context.Background(), docsPath, topicsPath); err != nil {
		t.Fatal(err)
	}

	a, b := readAll(t, first.Output.Dir), readAll(t, second.Output.Dir)
	if len(a) != len(b) {
		t.Fatalf("file sets differ: %d vs %d", len(a), len(b))
	}
	for name, data := range a {
		if !bytes.Equal(data, b[name]) {
			t.Errorf("%s differs between runs", name)
		}
	}
}

func TestRunUsesIndexSnapshot(t *testing.T) {
	docsPath, topicsPath := writeInputs(t, docsXML, topicsXML)
	dataDir := t.TempDir()

	first := testConfig(t)
	first.Indexer.DataDir = dataDir
	s1, err := New(first, Sinks{}).Run(context.Background(), docsPath, topicsPath)
	if err != nil {
		t.Fatal(err)
	}
	if s1.IndexFromSnapshot {
		t.Fatal("first run cannot load a snapshot")
	}

	second := testConfig(t)
	second.Indexer.DataDir = dataDir
	s2, err := New(second, Sinks{}).Run(context.Background(), docsPath, topicsPath)
	if err != nil {
		t.Fatal(err)
	}
	if !s2.IndexFromSnapshot {
		t.Fatal("second run should load the snapshot")
	}
	a, b := readAll(t, first.Output.Dir), readAll(t, second.Output.Dir)
	for name, data := range a {
		if !bytes.Equal(data, b[name]) {
			t.Errorf("%s differs when loaded from snapshot", name)
		}
	}
}

func TestRunIsolatesFailedQuery(t *testing.T) {
	topics := topicsXML + "<top>\n<num>009</num>\n<title> </title>\n</top>\n"
	docsPath, topicsPath := writeInputs(t, docsXML, topics)
	cfg := testConfig(t)
	cfg.Search.Models = []string{config.ModelBM25}

	summary, err := New(cfg, Sinks{}).Run(context.Background(), docsPath, topicsPath)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	ms := summary.Models[0]
	if ms.Failed != 1 || ms.Succeeded != 4 || !errors.Is(ms.Failures[0], apperrors.ErrRanking) {
		t.Fatalf("model summary = %+v", ms)
	}
	if ExitCode(summary, err) != apperrors.ExitPartial {
		t.Errorf("exit code = %d, want partial", ExitCode(summary, err))
	}
	data, err := os.ReadFile(ms.Path)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if strings.HasPrefix(line, "5 ") {
			t.Fatalf("failed query leaked into run file: %s", line)
		}
	}
}

func TestRunEmptyCorpus(t *testing.T) {
	docsPath, topicsPath := writeInputs(t, "", topicsXML)
	cfg := testConfig(t)
	summary, err := New(cfg, Sinks{}).Run(context.Background(), docsPath, topicsPath)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.DocumentsIndexed != 0 {
		t.Errorf("DocumentsIndexed = %d", summary.DocumentsIndexed)
	}
	for _, ms := range summary.Models {
		data, err := os.ReadFile(ms.Path)
		if err != nil {
			t.Fatal(err)
		}
		if len(data) != 0 {
			t.Errorf("%s: expected empty run file, got %q", ms.Model, data)
		}
	}
}

func TestRunFatalErrors(t *testing.T) {
	t.Run("malformed documents", func(t *testing.T) {
		docsPath, topicsPath := writeInputs(t, "<doc><docno>1</docno><text>unterminated", topicsXML)
		cfg := testConfig(t)
		p := New(cfg, Sinks{})
		summary, err := p.Run(context.Background(), docsPath, topicsPath)
		if !errors.Is(err, apperrors.ErrParse) {
			t.Fatalf("expected ErrParse, got %v", err)
		}
		if ExitCode(summary, err) != apperrors.ExitFatal {
			t.Errorf("exit code = %d", ExitCode(summary, err))
		}
		if p.State() != StateInit {
			t.Errorf("state = %s", p.State())
		}
		if files := readAll(t, cfg.Output.Dir); len(files) != 0 {
			t.Errorf("no files should be written, got %d", len(files))
		}
	})
	t.Run("invalid model", func(t *testing.T) {
		docsPath, topicsPath := writeInputs(t, docsXML, topicsXML)
		cfg := testConfig(t)
		cfg.Search.Models = []string{"dfr"}
		_, err := New(cfg, Sinks{}).Run(context.Background(), docsPath, topicsPath)
		if !errors.Is(err, apperrors.ErrConfig) {
			t.Fatalf("expected ErrConfig, got %v", err)
		}
	})
	t.Run("unwritable output", func(t *testing.T) {
		docsPath, topicsPath := writeInputs(t, docsXML, topicsXML)
		cfg := testConfig(t)
		blocker := filepath.Join(cfg.Output.Dir, "file")
		if err := os.WriteFile(blocker, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		cfg.Output.Dir = filepath.Join(blocker, "out")
		summary, err := New(cfg, Sinks{}).Run(context.Background(), docsPath, topicsPath)
		if !errors.Is(err, apperrors.ErrWrite) {
			t.Fatalf("expected ErrWrite, got %v", err)
		}
		if ExitCode(summary, err) != apperrors.ExitFatal {
			t.Errorf("exit code = %d", ExitCode(summary, err))
		}
	})
}

func TestRunCancelled(t *testing.T) {
	docsPath, topicsPath := writeInputs(t, docsXML, topicsXML)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(testConfig(t), Sinks{}).Run(ctx, docsPath, topicsPath)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLaterModelWriteFailureIsPartial(t *testing.T) {
	docsPath, topicsPath := writeInputs(t, docsXML, topicsXML)
	cfg := testConfig(t)
	cfg.Search.Models = []string{config.ModelTFIDF, config.ModelBM25}
	blocked := filepath.Join(cfg.Output.Dir, trec.FileName(config.ModelBM25))
	if err := os.MkdirAll(filepath.Join(blocked, "keep"), 0o755); err != nil {
		t.Fatal(err)
	}

	summary, err := New(cfg, Sinks{}).Run(context.Background(), docsPath, topicsPath)
	if !errors.Is(err, apperrors.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if got := ExitCode(summary, err); got != apperrors.ExitPartial {
		t.Errorf("exit code = %d, want %d", got, apperrors.ExitPartial)
	}
	if summary.FilesWritten() != 1 || len(summary.Models) != 2 {
		t.Fatalf("FilesWritten=%d models=%d", summary.FilesWritten(), len(summary.Models))
	}
	first := filepath.Join(cfg.Output.Dir, trec.FileName(config.ModelTFIDF))
	if summary.Models[0].Path != first {
		t.Errorf("first model path = %q, want %q", summary.Models[0].Path, first)
	}
	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("first run file should be kept: %v", err)
	}
	if !strings.Contains(string(data), " Q0 ") {
		t.Errorf("first run file has no run lines: %q", data)
	}
	if !errors.Is(summary.Models[1].Err, apperrors.ErrWrite) {
		t.Errorf("second model error = %v", summary.Models[1].Err)
	}
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", pkgredis.ErrNil
}

func (m *memStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestRunWithResultCache(t *testing.T) {
	docsPath, topicsPath := writeInputs(t, docsXML, topicsXML)
	store := &memStore{data: make(map[string]string)}
	lookups := int64(4 * len(config.Default().Search.Models))

	tests := []struct {
		name       string
		flush      bool
		wantHits   int64
		wantMisses int64
	}{
		{"cold", false, 0, lookups},
		{"warm", false, lookups, 0},
		{"flushed", true, 0, lookups},
	}
	var baseline map[string][]byte
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Redis.FlushOnStart = tt.flush
			summary, err := New(cfg, Sinks{Cache: cache.New(store, time.Hour)}).Run(context.Background(), docsPath, topicsPath)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if summary.CacheHits != tt.wantHits || summary.CacheMisses != tt.wantMisses {
				t.Errorf("cache hits=%d misses=%d, want %d/%d", summary.CacheHits, summary.CacheMisses, tt.wantHits, tt.wantMisses)
			}
			var out bytes.Buffer
			summary.Print(&out)
			if !strings.Contains(out.String(), "Result cache:") {
				t.Errorf("summary does not report cache usage:\n%s", out.String())
			}
			files := readAll(t, cfg.Output.Dir)
			if baseline == nil {
				baseline = files
				return
			}
			for name, data := range baseline {
				if !bytes.Equal(files[name], data) {
					t.Errorf("%s differs from the uncached-run output", name)
				}
			}
		})
	}
}
