package dataaccessor

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Accessor is the read-only key -> Matrix gateway. Safe for concurrent
// reads; it never mutates a Matrix once cached, matching spec.md §5's
// "DataAccessor is read-only and shared safely."
type Accessor struct {
	logger   *zap.Logger
	manifest *Manifest
	dataDir  string

	mu    sync.RWMutex
	cache map[string]*Matrix
}

// New creates an Accessor backed by dataDir, loading (and caching) each
// key's matrix lazily from <dataDir>/<key>.json, falling back to
// deterministically generated sample data when no file exists — the same
// fallback the teacher's Store.LoadOHLCV uses for local development.
func New(logger *zap.Logger, manifest *Manifest, dataDir string) *Accessor {
	return &Accessor{
		logger:   logger.Named("data-accessor"),
		manifest: manifest,
		dataDir:  dataDir,
		cache:    make(map[string]*Matrix),
	}
}

// ValidateField delegates to the manifest.
func (a *Accessor) ValidateField(key string) ValidationOutcome {
	return a.manifest.ValidateField(key)
}

// Get returns the matrix for a symbolic key. It fails with unknown_field
// (wrapped as ErrUnknownField) if the key is not in the manifest or is
// flagged forbidden; callers needing to distinguish "forbidden" from
// "unknown" should call ValidateField first — StrategyValidator does
// exactly this before a strategy ever reaches Get.
func (a *Accessor) Get(key string, symbols []string) (*Matrix, error) {
	outcome := a.manifest.ValidateField(key)
	if !outcome.OK {
		return nil, &ErrUnknownField{Key: key, Suggestion: outcome.Suggestion}
	}

	a.mu.RLock()
	if m, ok := a.cache[key]; ok {
		a.mu.RUnlock()
		return m, nil
	}
	a.mu.RUnlock()

	m, err := a.load(key, symbols)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache[key] = m
	a.mu.Unlock()
	return m, nil
}

// ErrUnknownField is returned by Get when the manifest rejects a key.
type ErrUnknownField struct {
	Key        string
	Suggestion string
}

func (e *ErrUnknownField) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("dataaccessor: unknown field %q (did you mean %q?)", e.Key, e.Suggestion)
	}
	return fmt.Sprintf("dataaccessor: unknown field %q", e.Key)
}

func (a *Accessor) load(key string, symbols []string) (*Matrix, error) {
	path := filepath.Join(a.dataDir, key+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			a.logger.Info("generating sample data for key", zap.String("key", key))
			return a.sample(key, symbols), nil
		}
		return nil, fmt.Errorf("dataaccessor: read %s: %w", path, err)
	}

	var payload struct {
		Dates   []time.Time `json:"dates"`
		Symbols []string    `json:"symbols"`
		Values  [][]float64 `json:"values"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("dataaccessor: parse %s: %w", path, err)
	}
	sort.Slice(payload.Dates, func(i, j int) bool { return payload.Dates[i].Before(payload.Dates[j]) })
	return &Matrix{Dates: payload.Dates, Symbols: payload.Symbols, Values: payload.Values}, nil
}

// sample deterministically fabricates a matrix for local dev/tests, seeded
// by the key so repeated runs (and property P10/P7 tests) are reproducible.
func (a *Accessor) sample(key string, symbols []string) *Matrix {
	seed := int64(0)
	for _, c := range key {
		seed = seed*31 + int64(c)
	}
	rng := rand.New(rand.NewSource(seed))

	const days = 252
	dates := make([]time.Time, days)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}

	m := NewMatrix(dates, symbols)
	for col := range symbols {
		price := 50.0 + rng.Float64()*50
		for row := range dates {
			price *= 1 + (rng.Float64()-0.5)*0.02
			m.Values[row][col] = price
		}
	}
	return m
}
