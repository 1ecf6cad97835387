// Package worker implements the per-item harvest loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Specoptor/trendyol/internal/harvest"
	"github.com/Specoptor/trendyol/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	ID      int
	Backend string
}

// Worker consumes queue items with its own extraction session.
type Worker struct {
	queue      harvest.Queue
	session    harvest.Session
	normalizer harvest.Normalizer
	recorder   harvest.Recorder
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker. The worker takes ownership of session and closes it
// when Run returns.
func New(
	queue harvest.Queue,
	session harvest.Session,
	normalizer harvest.Normalizer,
	recorder harvest.Recorder,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:      queue,
		session:    session,
		normalizer: normalizer,
		recorder:   recorder,
		cfg:        cfg,
		logger:     logger.With(zap.Int("worker", cfg.ID)),
	}
}

// Run blocks, consuming queue items until the queue drains or the context
// finishes. It returns the number of items processed.
func (w *Worker) Run(ctx context.Context) int {
	defer w.closeSession()

	processed := 0
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			switch {
			case errors.Is(err, harvest.ErrQueueDrained):
				w.logger.Debug("queue drained", zap.Int("processed", processed))
			case ctx.Err() != nil:
				w.logger.Info("worker canceled", zap.Int("processed", processed))
			default:
				w.logger.Error("queue dequeue failed", zap.Error(err))
			}
			return processed
		}
		w.logger.Debug("dequeued item", zap.String("url", item.URL))
		w.processItem(ctx, item)
		processed++
	}
}

func (w *Worker) processItem(ctx context.Context, item harvest.WorkItem) {
	start := time.Now()
	entry := w.harvestItem(ctx, item)
	metrics.ObserveItem(w.cfg.Backend, string(entry.Status), string(entry.Error), time.Since(start))
	w.recorder.Record(item, entry)
}

func (w *Worker) harvestItem(ctx context.Context, item harvest.WorkItem) (entry harvest.Entry) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("item processing panicked",
				zap.String("url", item.URL),
				zap.String("panic", fmt.Sprint(r)),
			)
			entry = harvest.Entry{
				Status: harvest.StatusFailed,
				Error:  harvest.KindPanic,
				Detail: fmt.Sprint(r),
			}
		}
	}()

	raw, err := w.session.Extract(ctx, item)
	if err != nil {
		entry = harvest.EntryFromError(err)
		w.logExtractionFailure(item, entry, err)
		return entry
	}
	w.captureRaw(item, raw)

	rec, missing := w.normalizer.Normalize(raw, item)
	if len(missing) > 0 {
		w.logger.Debug("fields not found",
			zap.String("url", item.URL),
			zap.String("kind", string(harvest.KindFieldNotFound)),
			zap.Strings("fields", missing),
		)
	}
	w.logger.Debug("item harvested", zap.String("url", item.URL))
	return harvest.CompletedEntry(rec)
}

func (w *Worker) captureRaw(item harvest.WorkItem, raw harvest.RawRecord) {
	rr, ok := w.recorder.(harvest.RawRecorder)
	if !ok || raw.IsDocument() || len(raw.Body) == 0 {
		return
	}
	id, _ := harvest.ProductID(item.URL)
	rr.RecordRaw(item, id, raw.Body)
}

func (w *Worker) logExtractionFailure(item harvest.WorkItem, entry harvest.Entry, err error) {
	fields := []zap.Field{
		zap.String("url", item.URL),
		zap.String("kind", string(entry.Error)),
		zap.Int("status_code", entry.StatusCode),
		zap.Error(err),
	}
	switch entry.Status {
	case harvest.StatusUnavailable:
		w.logger.Info("item unavailable", fields...)
	case harvest.StatusCanceled:
		w.logger.Debug("item canceled", fields...)
	default:
		w.logger.Warn("extraction failed", fields...)
	}
}

func (w *Worker) closeSession() {
	if w.session == nil {
		return
	}
	if err := w.session.Close(); err != nil {
		w.logger.Warn("session close failed", zap.Error(err))
	}
}
