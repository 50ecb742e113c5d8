package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-discovery/internal/classifier"
	"github.com/atlas-desktop/strategy-discovery/internal/sandbox"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	dir := t.TempDir()
	h, err := New(zap.NewNop(), filepath.Join(dir, "history.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestAppend_RecentReturnsInOrder(t *testing.T) {
	h := newTestHistory(t)
	for i := 0; i < 5; i++ {
		rec := Record{
			IterationNum:        i,
			GenerationMethod:    "factor_graph",
			ResultKind:          sandbox.ResultSuccess,
			ClassificationLevel: classifier.LevelExecuted,
			Timestamp:           time.Unix(int64(i), 0),
		}
		if err := h.Append(rec); err != nil {
			t.Fatal(err)
		}
	}
	recent, err := h.Recent(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recent))
	}
	if recent[0].IterationNum != 2 || recent[2].IterationNum != 4 {
		t.Fatalf("unexpected window: %+v", recent)
	}
}

func TestMaxIterationNum_EmptyLogIsNegativeOne(t *testing.T) {
	h := newTestHistory(t)
	max, err := h.MaxIterationNum()
	if err != nil {
		t.Fatal(err)
	}
	if max != -1 {
		t.Fatalf("expected -1 for empty log, got %d", max)
	}
}

func TestMaxIterationNum_TracksHighestAppended(t *testing.T) {
	h := newTestHistory(t)
	for _, n := range []int{0, 1, 2} {
		if err := h.Append(Record{IterationNum: n}); err != nil {
			t.Fatal(err)
		}
	}
	max, err := h.MaxIterationNum()
	if err != nil {
		t.Fatal(err)
	}
	if max != 2 {
		t.Fatalf("expected 2, got %d", max)
	}
}

func TestIterateAll_SkipsUnparseableLines(t *testing.T) {
	h := newTestHistory(t)
	if err := h.Append(Record{IterationNum: 0}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("not json at all\n"); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.Append(Record{IterationNum: 1}); err != nil {
		t.Fatal(err)
	}

	records, err := h.IterateAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected the malformed line to be skipped, got %d records", len(records))
	}
}
