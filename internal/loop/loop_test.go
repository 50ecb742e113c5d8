package loop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-discovery/internal/classifier"
	"github.com/atlas-desktop/strategy-discovery/internal/history"
	"github.com/atlas-desktop/strategy-discovery/internal/metricsextractor"
)

type fakeRunner struct {
	calls []int
	level classifier.Level
	err   error
}

func (f *fakeRunner) RunIteration(ctx context.Context, n int) (history.Record, error) {
	f.calls = append(f.calls, n)
	if f.err != nil {
		return history.Record{}, f.err
	}
	return history.Record{
		IterationNum:        n,
		ClassificationLevel: f.level,
		Metrics:             &metricsextractor.Record{SharpeRatio: decimal.NewFromFloat(float64(n) * 0.1)},
	}, nil
}

type fakeHistorySource struct {
	max int
}

func (f fakeHistorySource) MaxIterationNum() (int, error) { return f.max, nil }

func TestRun_ColdStartRunsFromZero(t *testing.T) {
	runner := &fakeRunner{level: classifier.LevelValid}
	l := New(zap.NewNop(), Config{MaxIterations: 3}, runner, fakeHistorySource{max: -1})

	summary, err := l.Run(context.Background(), context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(runner.calls) != 3 || runner.calls[0] != 0 || runner.calls[2] != 2 {
		t.Fatalf("expected iterations 0,1,2, got %v", runner.calls)
	}
	if summary.TotalIterations != 3 {
		t.Fatalf("expected 3 total iterations, got %d", summary.TotalIterations)
	}
	if !summary.HasBestSharpe || summary.BestSharpeSeen != 0.2 {
		t.Fatalf("expected best sharpe 0.2, got %v (has=%v)", summary.BestSharpeSeen, summary.HasBestSharpe)
	}
}

func TestRun_ResumesAfterMaxIterationNum(t *testing.T) {
	runner := &fakeRunner{level: classifier.LevelValid}
	l := New(zap.NewNop(), Config{MaxIterations: 44}, runner, fakeHistorySource{max: 41})

	if _, err := l.Run(context.Background(), context.Background()); err != nil {
		t.Fatal(err)
	}
	if runner.calls[0] != 42 {
		t.Fatalf("expected resume to start at 42, got %d", runner.calls[0])
	}
}

func TestRun_GracefulCancelStopsBeforeNextIteration(t *testing.T) {
	runner := &fakeRunner{level: classifier.LevelValid}
	l := New(zap.NewNop(), Config{MaxIterations: 1000}, runner, fakeHistorySource{max: -1})

	graceful, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := l.Run(graceful, context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !summary.StoppedEarly {
		t.Fatal("expected StoppedEarly to be true")
	}
	if len(runner.calls) != 0 {
		t.Fatalf("expected no iterations to run once graceful is already cancelled, got %d", len(runner.calls))
	}
}

func TestRun_FatalErrorPropagates(t *testing.T) {
	runner := &fakeRunner{err: errors.New("disk full")}
	l := New(zap.NewNop(), Config{MaxIterations: 5}, runner, fakeHistorySource{max: -1})

	_, err := l.Run(context.Background(), context.Background())
	if err == nil {
		t.Fatal("expected fatal error to propagate")
	}
}

func TestGraceContext_ForceCancelsAfterDeadline(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	force, stop := GraceContext(parent, 20*time.Millisecond)
	defer stop()

	cancel()

	select {
	case <-force.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected force context to be cancelled after grace deadline")
	}
}
