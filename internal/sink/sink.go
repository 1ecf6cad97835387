// Package sink aggregates per-item outcomes and persists the run result once
// the pool has drained.
package sink

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Specoptor/trendyol/internal/harvest"
)

// Config controls what the sink retains.
type Config struct {
	CaptureRaw bool
}

// Summary describes a finalized run.
type Summary struct {
	Result    harvest.RunResult
	Counts    harvest.Counts
	Artifacts map[string]string
}

// Sink is the thread-safe RunResult accumulator.
type Sink struct {
	mu        sync.Mutex
	runID     string
	startedAt time.Time
	entries   map[string]harvest.Entry
	raw       map[string]harvest.RawCapture
	cfg       Config
	clock     harvest.Clock
	logger    *zap.Logger
}

// New creates an empty sink for one run.
func New(runID string, cfg Config, clock harvest.Clock, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		runID:     runID,
		startedAt: clock.Now(),
		entries:   make(map[string]harvest.Entry),
		raw:       make(map[string]harvest.RawCapture),
		cfg:       cfg,
		clock:     clock,
		logger:    logger.With(zap.String("run_id", runID)),
	}
}

// Record stores the outcome for item. A repeated identity overwrites the
// earlier entry.
func (s *Sink) Record(item harvest.WorkItem, entry harvest.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries[item.ID()]; ok {
		s.logger.Warn("duplicate result for item",
			zap.String("url", item.URL),
			zap.String("previous", string(prev.Status)),
			zap.String("current", string(entry.Status)),
		)
	}
	s.entries[item.ID()] = entry
}

// RecordRaw keeps the raw payload body and its product id when raw capture
// is enabled.
func (s *Sink) RecordRaw(item harvest.WorkItem, productID string, body []byte) {
	if !s.cfg.CaptureRaw {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[item.ID()] = harvest.RawCapture{
		ProductID: productID,
		Body:      append([]byte(nil), body...),
	}
}

// Progress reports counts recorded so far.
func (s *Sink) Progress() harvest.Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return harvest.RunResult{Entries: s.entries}.Counts()
}

// Result snapshots the aggregate.
func (s *Sink) Result() harvest.RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return harvest.RunResult{
		RunID:      s.runID,
		StartedAt:  s.startedAt,
		FinishedAt: s.clock.Now(),
		Entries:    maps.Clone(s.entries),
		Raw:        maps.Clone(s.raw),
	}
}

// Finalize hands the aggregate to every writer. An empty aggregate is logged
// and nothing is written. A writer failure aborts finalization.
func (s *Sink) Finalize(ctx context.Context, writers ...harvest.ResultWriter) (Summary, error) {
	result := s.Result()
	counts := result.Counts()
	summary := Summary{Result: result, Counts: counts, Artifacts: map[string]string{}}

	if counts.Total == 0 {
		s.logger.Error("no data harvested", zap.Error(harvest.ErrAggregateEmpty))
		return summary, nil
	}
	if counts.Completed == 0 {
		s.logger.Error("run produced no completed records",
			zap.Error(harvest.ErrAggregateEmpty),
			zap.Int("total", counts.Total),
		)
	}

	for _, w := range writers {
		if w == nil {
			continue
		}
		uri, err := w.Write(ctx, result)
		if err != nil {
			return summary, fmt.Errorf("write %s: %w", w.Name(), err)
		}
		if uri != "" {
			summary.Artifacts[w.Name()] = uri
		}
		s.logger.Info("result written", zap.String("writer", w.Name()), zap.String("uri", uri))
	}
	s.logger.Info("run finalized",
		zap.Int("total", counts.Total),
		zap.Int("completed", counts.Completed),
		zap.Int("unavailable", counts.Unavailable),
		zap.Int("failed", counts.Failed),
		zap.Int("canceled", counts.Canceled),
	)
	return summary, nil
}
