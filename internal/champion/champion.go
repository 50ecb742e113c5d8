// Package champion implements ChampionTracker: the single "best strategy
// so far" record, its promotion policy, and its atomic persistence.
// Grounded on the teacher's internal/backtester.ViabilityChecker (the
// accept/reject decision shape) and internal/data.Store (file
// persistence), extended with the temp-file-rename atomicity and
// anti-churn/cohort rules spec.md §4.9 adds.
package champion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
	"github.com/atlas-desktop/strategy-discovery/internal/metricsextractor"
)

// Record is the durable champion snapshot. Readers only ever see copies.
type Record struct {
	IterationNum     int                      `json:"iterationNum"`
	GenerationMethod string                   `json:"generationMethod"`
	Identity         artifact.Identity        `json:"identity"`
	Metrics          metricsextractor.Record  `json:"metrics"`
	Parameters       map[string]interface{}   `json:"parameters,omitempty"`
	SuccessPatterns  []string                 `json:"successPatterns"`
	PromotedAt       time.Time                `json:"promotedAt"`
	StalenessCounter int                      `json:"stalenessCounter"`

	// Graph retains the full factor DAG when GenerationMethod is
	// "factor_graph" so FactorGraphMutator can keep evolving from the
	// champion rather than only its identity fields — spec.md §3's
	// ChampionRecord schema lists identity_fields, but FactorGraphMutator's
	// contract (spec.md §4.7) requires the actual parent artifact.
	Graph *artifact.GraphArtifact `json:"graph,omitempty"`
}

// Config tunes the promotion policy (spec.md §4.9).
type Config struct {
	DrawdownTolerance float64
	WinRateTolerance  float64
	MinTradeCountAvg  float64
	CohortWindow      int
	BaseChurnMargin   float64
	ChurnSlope        float64
	StalenessLimit    int
}

// DefaultConfig mirrors the teacher's ViabilityThresholds default-value
// pattern: reasonable production defaults, overridable via config.
func DefaultConfig() Config {
	return Config{
		DrawdownTolerance: 0.02,
		WinRateTolerance:  0.05,
		MinTradeCountAvg:  5,
		CohortWindow:      50,
		BaseChurnMargin:   0.01,
		ChurnSlope:        0.002,
		StalenessLimit:    25,
	}
}

// recognizedPatterns are the tokens success-pattern extraction scans for
// (spec.md §4.9).
var recognizedPatterns = []string{
	"momentum_", "breakout_", "liquidity_filter", "volatility_filter", "trailing_stop",
}

// CohortSource supplies the recent-candidate Sharpe values the staleness
// cohort comparison needs; satisfied by *history.History via an adapter
// in cmd/discover so this package never imports history directly.
type CohortSource interface {
	RecentSharpes(n int) ([]float64, error)
}

// Tracker owns the single live champion and its file.
type Tracker struct {
	logger        *zap.Logger
	path          string
	cfg           Config
	mu            sync.RWMutex
	current       *Record
	updatesInLast int // promotions made by this Tracker; never decremented, not persisted
}

// New loads path if present; absence of the file is not an error (cold
// start, spec.md §8 scenario 1).
func New(logger *zap.Logger, path string, cfg Config) (*Tracker, error) {
	t := &Tracker{logger: logger.Named("champion-tracker"), path: path, cfg: cfg}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("champion: create directory: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("champion: read existing file: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("champion: parse existing file: %w", err)
	}
	t.current = &rec
	return t, nil
}

// Current returns an immutable snapshot, or nil if there is no champion yet.
func (t *Tracker) Current() *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return nil
	}
	cp := *t.current
	return &cp
}

// Propose applies the promotion policy to a candidate and, if accepted,
// persists it atomically. s is the full candidate artifact: its identity
// feeds the record, its text/node names feed success-pattern extraction,
// and — when it is a GraphForm — its DAG is retained so a future
// promotion cycle can keep mutating from it.
func (t *Tracker) Propose(iterationNum int, method string, s artifact.Strategy, metrics metricsextractor.Record, cohort CohortSource) (accepted bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return true, t.promoteLocked(iterationNum, method, s, metrics)
	}

	if !t.passesPromotionLocked(metrics) {
		t.current.StalenessCounter++
		if t.maybeStaleCohortDemotionLocked(cohort) {
			// current champion demoted by cohort comparison; the candidate
			// itself still did not beat it head-to-head, so no promotion.
			return false, t.persistLocked()
		}
		return false, nil
	}

	return true, t.promoteLocked(iterationNum, method, s, metrics)
}

// passesPromotionLocked implements spec.md §4.9's promotion policy
// (sharpe improvement, drawdown tolerance, preservation check, anti-churn).
func (t *Tracker) passesPromotionLocked(candidate metricsextractor.Record) bool {
	cur := t.current.Metrics
	curSharpe, _ := cur.SharpeRatio.Float64()
	candSharpe, _ := candidate.SharpeRatio.Float64()
	if candSharpe <= curSharpe {
		return false
	}

	curDD, _ := cur.MaxDrawdown.Float64()
	candDD, _ := candidate.MaxDrawdown.Float64()
	if candDD > curDD+t.cfg.DrawdownTolerance {
		return false
	}

	if !t.passesPreservationLocked(candidate) {
		return false
	}

	margin := t.churnMarginLocked()
	if candSharpe-curSharpe < margin {
		return false
	}
	return true
}

// passesPreservationLocked rejects regressions on win rate and average
// trade count (spec.md §4.9's "Preservation check").
func (t *Tracker) passesPreservationLocked(candidate metricsextractor.Record) bool {
	curWin, _ := t.current.Metrics.WinRate.Float64()
	candWin, _ := candidate.WinRate.Float64()
	if candWin < curWin-t.cfg.WinRateTolerance {
		return false
	}
	if float64(candidate.TradeCount) < t.cfg.MinTradeCountAvg {
		return false
	}
	return true
}

// churnMarginLocked grows linearly with the number of promotions this
// Tracker has made since it was created. The count is cumulative: it does
// not decay when promotions become sparse, it restarts at zero with a new
// Tracker, and the margin has no upper bound (only a floor of 0).
func (t *Tracker) churnMarginLocked() float64 {
	margin := t.cfg.BaseChurnMargin + t.cfg.ChurnSlope*float64(t.updatesInLast)
	if margin < 0 {
		margin = 0
	}
	return margin
}

// maybeStaleCohortDemotionLocked implements SPEC_FULL §4.9.1: when the
// champion has gone cfg.StalenessLimit iterations without a better
// candidate, compare it against the median of the top decile of the
// trailing cohort_window candidates and demote if it falls below that.
func (t *Tracker) maybeStaleCohortDemotionLocked(cohort CohortSource) bool {
	if t.current.StalenessCounter < t.cfg.StalenessLimit || cohort == nil {
		return false
	}
	sharpes, err := cohort.RecentSharpes(t.cfg.CohortWindow)
	if err != nil || len(sharpes) == 0 {
		return false
	}
	decileMedian := topDecileMedian(sharpes)
	curSharpe, _ := t.current.Metrics.SharpeRatio.Float64()
	if curSharpe < decileMedian {
		t.current = nil
		t.logger.Info("champion demoted by stale cohort comparison", zap.Float64("cohortDecileMedian", decileMedian))
		return true
	}
	return false
}

// ForceDemotion clears the current champion unconditionally (used by
// anti-churn sweeps that detect pathological plateaus outside Propose).
func (t *Tracker) ForceDemotion(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	t.logger.Info("champion force-demoted", zap.String("reason", reason))
	t.current = nil
	return t.persistLocked()
}

func (t *Tracker) promoteLocked(iterationNum int, method string, s artifact.Strategy, metrics metricsextractor.Record) error {
	var graph *artifact.GraphArtifact
	if g, ok := s.(*artifact.GraphArtifact); ok {
		graph = g
	}
	t.current = &Record{
		IterationNum:     iterationNum,
		GenerationMethod: method,
		Identity:         s.Identity(),
		Metrics:          metrics,
		SuccessPatterns:  extractSuccessPatterns(artifactText(s)),
		PromotedAt:       time.Now(),
		StalenessCounter: 0,
		Graph:            graph,
	}
	t.updatesInLast++
	return t.persistLocked()
}

func artifactText(s artifact.Strategy) string {
	switch v := s.(type) {
	case *artifact.CodeArtifact:
		return v.CodeText
	case *artifact.GraphArtifact:
		var names string
		for _, n := range v.Nodes {
			names += n.FactorName + " "
		}
		return names
	default:
		return ""
	}
}

func (t *Tracker) persistLocked() error {
	if t.current == nil {
		if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("champion: remove file on demotion: %w", err)
		}
		return nil
	}
	data, err := json.MarshalIndent(t.current, "", "  ")
	if err != nil {
		return fmt.Errorf("champion: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".champion-*.tmp")
	if err != nil {
		return fmt.Errorf("champion: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("champion: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("champion: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, t.path); err != nil {
		return fmt.Errorf("champion: rename into place: %w", err)
	}
	return nil
}

func extractSuccessPatterns(text string) []string {
	var found []string
	for _, p := range recognizedPatterns {
		if strings.Contains(text, p) {
			found = append(found, p)
		}
	}
	return found
}

func topDecileMedian(sharpes []float64) float64 {
	sorted := append([]float64(nil), sharpes...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	decileCount := len(sorted) / 10
	if decileCount < 1 {
		decileCount = 1
	}
	top := sorted[len(sorted)-decileCount:]
	mid := len(top) / 2
	if len(top)%2 == 1 {
		return top[mid]
	}
	return (top[mid-1] + top[mid]) / 2
}
