// Package history implements IterationHistory: a durable, append-only
// per-iteration log, one JSON object per line. Grounded on the teacher's
// internal/data.Store file-persistence idiom (os.WriteFile to a path under
// a managed directory), extended with the temp-file-then-rename atomicity
// spec.md §4.10 requires.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
	"github.com/atlas-desktop/strategy-discovery/internal/classifier"
	"github.com/atlas-desktop/strategy-discovery/internal/metricsextractor"
	"github.com/atlas-desktop/strategy-discovery/internal/sandbox"
)

// Record is one line of the durable log.
type Record struct {
	IterationNum     int                         `json:"iterationNum"`
	GenerationMethod string                      `json:"generationMethod"`
	Identity         artifact.Identity           `json:"strategyIdentity"`
	ResultKind       sandbox.ResultKind          `json:"executionResult"`
	Metrics          *metricsextractor.Record    `json:"metrics,omitempty"`
	ClassificationLevel classifier.Level         `json:"classificationLevel"`
	Timestamp        time.Time                   `json:"timestamp"`
	ChampionUpdated  bool                        `json:"championUpdated"`
	FeedbackUsed     string                      `json:"feedbackUsed,omitempty"`
	ParentReference  string                      `json:"parentReference,omitempty"`
	Thresholds       *classifier.Thresholds      `json:"thresholds,omitempty"`
}

// History owns history.jsonl: single-writer, many-reader, atomic appends.
type History struct {
	logger *zap.Logger
	path   string
	mu     sync.Mutex
}

// New opens (without reading) the history log at path, creating its
// parent directory if necessary.
func New(logger *zap.Logger, path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}
	return &History{logger: logger.Named("iteration-history"), path: path}, nil
}

// Append writes record as the next line, atomically. On rename failure it
// retries once, then escalates (spec.md §4.10).
func (h *History) Append(record Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("history: marshal record: %w", err)
	}
	line = append(line, '\n')

	var appendErr error
	for attempt := 0; attempt < 2; attempt++ {
		appendErr = h.appendAtomic(line)
		if appendErr == nil {
			return nil
		}
		h.logger.Warn("append attempt failed", zap.Int("attempt", attempt), zap.Error(appendErr))
	}
	return fmt.Errorf("history: append failed after retry: %w", appendErr)
}

// appendAtomic rewrites the whole file via a temp-path-then-rename so a
// crash mid-write never corrupts history.jsonl; existing content is read
// first and preserved.
func (h *History) appendAtomic(line []byte) error {
	existing, err := os.ReadFile(h.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read existing history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(h.path), ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(existing); err != nil {
		tmp.Close()
		return fmt.Errorf("write existing content: %w", err)
	}
	if _, err := tmp.Write(line); err != nil {
		tmp.Close()
		return fmt.Errorf("write new record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, h.path); err != nil {
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}

// Recent returns up to the last n records, skipping unparseable lines
// with a logged warning rather than failing.
func (h *History) Recent(n int) ([]Record, error) {
	all, err := h.readAll()
	if err != nil {
		return nil, err
	}
	if len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}

// IterateAll returns every parseable record in file order (finite,
// restartable — callers may call this repeatedly for a fresh pass).
func (h *History) IterateAll() ([]Record, error) {
	return h.readAll()
}

func (h *History) readAll() ([]Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: open: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			h.logger.Warn("skipping unparseable history line", zap.Int("line", lineNum), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("history: scan: %w", err)
	}
	return records, nil
}

// MaxIterationNum returns the highest iteration_num seen, or -1 if the
// log is empty — LearningLoop resumes at this value + 1.
func (h *History) MaxIterationNum() (int, error) {
	records, err := h.readAll()
	if err != nil {
		return -1, err
	}
	max := -1
	for _, r := range records {
		if r.IterationNum > max {
			max = r.IterationNum
		}
	}
	return max, nil
}
