package segment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
)

func buildIndex(t *testing.T) *index.InvertedIndex {
	t.Helper()
	docs := []corpus.Document{
		{ID: "1", Text: "experimental investigation of the aerodynamics of a wing in a slipstream"},
		{ID: "2", Text: "simple shear flow past a flat plate in an incompressible fluid"},
		{ID: "12", Text: "the boundary layer in simple shear flow past a flat plate"},
	}
	idx, err := index.Build(context.Background(), docs, analysis.Default(), index.BuildOptions{Workers: 2})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

func TestWriteAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx := buildIndex(t)

	path, err := NewWriter(dir).Write(idx)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(path) != FileName(idx.Fingerprint()) {
		t.Errorf("unexpected segment name %s", path)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind")
	}

	loaded, err := LoadIfPresent(dir, idx.Fingerprint(), analysis.Default())
	if err != nil {
		t.Fatalf("LoadIfPresent: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected segment to load")
	}
	if !reflect.DeepEqual(idx.Entries(), loaded.Entries()) {
		t.Errorf("entries differ after round trip")
	}
	if !reflect.DeepEqual(idx.DocStats(), loaded.DocStats()) {
		t.Errorf("doc stats differ after round trip")
	}
	if loaded.Fingerprint() != idx.Fingerprint() {
		t.Errorf("fingerprint = %s, want %s", loaded.Fingerprint(), idx.Fingerprint())
	}
}

func TestReaderLayout(t *testing.T) {
	dir := t.TempDir()
	idx := buildIndex(t)
	path, err := NewWriter(dir).Write(idx)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	if r.Terms() != len(idx.Vocabulary()) || int(r.DocCount()) != idx.DocCount() {
		t.Errorf("Terms=%d DocCount=%d", r.Terms(), r.DocCount())
	}
	loaded, err := r.Load(analysis.Default())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	postings := loaded.Postings("plate")
	if len(postings) != 2 || postings[0].DocID != "2" || postings[1].DocID != "12" {
		t.Errorf("Postings(plate) = %+v", postings)
	}
	if loaded.Postings("zeppelin") != nil {
		t.Errorf("absent term should have no postings")
	}
}

func TestLoadIfPresentMissing(t *testing.T) {
	idx, err := LoadIfPresent(t.TempDir(), "deadbeef", analysis.Default())
	if err != nil || idx != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", idx, err)
	}
}

func TestLoadIfPresentIgnoresCorruptSegment(t *testing.T) {
	dir := t.TempDir()
	idx := buildIndex(t)
	path, err := NewWriter(dir).Write(idx)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[0] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenReader(path); !errors.Is(err, apperrors.ErrCorrupt) {
		t.Errorf("OpenReader on bad magic: %v", err)
	}
	loaded, err := LoadIfPresent(dir, idx.Fingerprint(), analysis.Default())
	if err != nil || loaded != nil {
		t.Fatalf("corrupt segment should be ignored, got (%v, %v)", loaded, err)
	}
}

func TestLoadRejectsDifferentAnalyzer(t *testing.T) {
	dir := t.TempDir()
	idx := buildIndex(t)
	path, err := NewWriter(dir).Write(idx)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	cfg := config.Default().Analysis
	cfg.Stemming = false
	other, err := analysis.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	if _, err := r.Load(other); !errors.Is(err, apperrors.ErrCorrupt) {
		t.Fatalf("expected analyzer mismatch error, got %v", err)
	}
}

func TestWriteEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	a := analysis.Default()
	empty, err := index.Build(context.Background(), nil, a, index.BuildOptions{Workers: 1})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := NewWriter(dir).Write(empty); err != nil {
		t.Fatalf("Write: %v", err)
	}
	loaded, err := LoadIfPresent(dir, empty.Fingerprint(), a)
	if err != nil || loaded == nil {
		t.Fatalf("LoadIfPresent = %v, %v", loaded, err)
	}
	if loaded.DocCount() != 0 {
		t.Errorf("DocCount = %d", loaded.DocCount())
	}
}
