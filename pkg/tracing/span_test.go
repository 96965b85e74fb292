package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "run", "my_search_engine")
	ctx2, load := StartChildSpan(ctx, "load")
	_, parse := StartChildSpan(ctx2, "documents")
	parse.End()
	load.End()
	_, rank := StartChildSpan(ctx, "rank")
	rank.SetAttr("model", "bm25")
	rank.End()
	root.End()

	if len(root.Children) != 2 || root.Children[0].TraceID != "my_search_engine" {
		t.Fatalf("unexpected children %+v", root.Children)
	}
	durations := root.Durations()
	for _, path := range []string{"run", "run/load", "run/load/documents", "run/rank"} {
		if _, ok := durations[path]; !ok {
			t.Errorf("missing %s in %v", path, durations)
		}
	}

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, nil)))
	out := buf.String()
	if strings.Count(out, "msg=span") != 4 {
		t.Errorf("expected 4 span lines, got:\n%s", out)
	}
	if !strings.Contains(out, "model=bm25") {
		t.Errorf("span attrs not logged:\n%s", out)
	}
}

func TestChildWithoutParent(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	if SpanFromContext(ctx) != span || span.TraceID != "" {
		t.Fatal("orphan span should be stored as current span with no trace id")
	}
}
