// Package dispatcher runs a fixed pool of workers over the shared work queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Specoptor/trendyol/internal/harvest"
	"github.com/Specoptor/trendyol/internal/metrics"
	"github.com/Specoptor/trendyol/internal/worker"
)

// Config sizes the pool.
type Config struct {
	Workers int
}

// Stats summarizes one pool run.
type Stats struct {
	Workers   int
	Processed int
	Canceled  int
	Elapsed   time.Duration
}

// ItemsPerSecond is advisory throughput for the run.
func (s Stats) ItemsPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Processed) / s.Elapsed.Seconds()
}

// Dispatcher fans queue work out to a pool of workers, one backend session each.
type Dispatcher struct {
	cfg        Config
	queue      harvest.Queue
	backend    harvest.Backend
	normalizer harvest.Normalizer
	recorder   harvest.Recorder
	logger     *zap.Logger
}

// New creates a Dispatcher.
func New(
	cfg Config,
	queue harvest.Queue,
	backend harvest.Backend,
	normalizer harvest.Normalizer,
	recorder harvest.Recorder,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:        cfg,
		queue:      queue,
		backend:    backend,
		normalizer: normalizer,
		recorder:   recorder,
		logger:     logger,
	}
}

// Run opens one session per worker, drains the queue and closes every session.
// Items left behind by a cancellation are recorded as canceled.
func (d *Dispatcher) Run(ctx context.Context) (Stats, error) {
	if d.queue.Len() == 0 {
		return Stats{}, harvest.ErrNoWorkItems
	}

	sessions, err := d.openSessions(ctx)
	if err != nil {
		return Stats{}, err
	}

	start := time.Now()
	total := d.queue.Len()
	d.logger.Info("harvest started",
		zap.String("backend", d.backend.Name()),
		zap.Int("workers", len(sessions)),
		zap.Int("items", total),
	)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		processed int
	)
	for i, session := range sessions {
		w := worker.New(d.queue, session, d.normalizer, d.recorder,
			worker.Config{ID: i, Backend: d.backend.Name()}, d.logger)
		wg.Add(1)
		metrics.IncActiveWorkers()
		go func(wk *worker.Worker) {
			defer wg.Done()
			defer metrics.DecActiveWorkers()
			n := wk.Run(ctx)
			mu.Lock()
			processed += n
			mu.Unlock()
		}(w)
	}
	wg.Wait()

	stats := Stats{
		Workers:   len(sessions),
		Processed: processed,
		Canceled:  d.drainCanceled(),
		Elapsed:   time.Since(start),
	}
	metrics.SetQueueDepth(d.queue.Len())
	metrics.SetThroughput(stats.ItemsPerSecond())
	d.logger.Info("harvest finished",
		zap.Int("processed", stats.Processed),
		zap.Int("canceled", stats.Canceled),
		zap.Duration("elapsed", stats.Elapsed),
		zap.Float64("items_per_second", stats.ItemsPerSecond()),
	)
	return stats, nil
}

func (d *Dispatcher) openSessions(ctx context.Context) ([]harvest.Session, error) {
	sessions := make([]harvest.Session, 0, d.cfg.Workers)
	for i := 0; i < d.cfg.Workers; i++ {
		s, err := d.backend.NewSession(ctx)
		if err != nil {
			for _, opened := range sessions {
				if cerr := opened.Close(); cerr != nil {
					d.logger.Warn("session close failed", zap.Error(cerr))
				}
			}
			return nil, fmt.Errorf("open session %d: %w", i, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (d *Dispatcher) drainCanceled() int {
	n := 0
	for {
		item, ok := d.queue.TryDequeue()
		if !ok {
			return n
		}
		d.recorder.Record(item, harvest.Entry{
			Status: harvest.StatusCanceled,
			Error:  harvest.KindCanceled,
		})
		n++
	}
}
