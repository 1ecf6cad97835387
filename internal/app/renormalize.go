package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	collyfetcher "github.com/Specoptor/trendyol/internal/fetcher/colly"
	"github.com/Specoptor/trendyol/internal/harvest"
	"github.com/Specoptor/trendyol/internal/output"
	"github.com/Specoptor/trendyol/internal/sink"
)

// ErrEmptyDump is returned when a raw dump holds no usable entries.
var ErrEmptyDump = errors.New("raw dump holds no entries")

// NormalizeOptions names the inputs and outputs of an offline normalization.
type NormalizeOptions struct {
	DumpPath string
	OutPath  string
	CSVPath  string
}

// Normalize re-normalizes a raw content API dump without network access and
// writes the JSON artifact (and CSV when requested).
func (a *App) Normalize(ctx context.Context, opts NormalizeOptions) (sink.Summary, error) {
	entries, err := output.LoadRawDump(opts.DumpPath)
	if err != nil {
		return sink.Summary{}, err
	}
	if len(entries) == 0 {
		return sink.Summary{}, ErrEmptyDump
	}
	runID, err := a.ids.NewID()
	if err != nil {
		return sink.Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := a.logger.With(zap.String("run_id", runID))

	results := sink.New(runID, sink.Config{}, a.clock, logger)
	for _, e := range entries {
		item := harvest.WorkItem{URL: e.Link, Source: "dump"}
		results.Record(item, a.renormalize(item, e, logger))
	}

	var closers []func() error
	defer func() {
		for _, c := range closers {
			_ = c()
		}
	}()
	resolve := func(target string) (*output.Location, error) {
		loc, err := output.Resolve(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("resolve output %s: %w", target, err)
		}
		closers = append(closers, loc.Close)
		return loc, nil
	}

	loc, err := resolve(opts.OutPath)
	if err != nil {
		return sink.Summary{}, err
	}
	writers := []harvest.ResultWriter{output.NewJSONWriter(loc.Store, loc.Path, a.hasher)}
	if opts.CSVPath != "" {
		loc, err := resolve(opts.CSVPath)
		if err != nil {
			return sink.Summary{}, err
		}
		writers = append(writers, output.NewCSVWriter(loc.Store, loc.Path))
	}
	return results.Finalize(ctx, writers...)
}

func (a *App) renormalize(item harvest.WorkItem, e output.RawEntry, logger *zap.Logger) harvest.Entry {
	raw, err := collyfetcher.DecodeBody(item.URL, e.Response)
	if err != nil {
		logger.Debug("dump entry rejected", zap.String("url", item.URL), zap.Error(err))
		return harvest.EntryFromError(err)
	}
	rec, missing := a.normalizer.Normalize(raw, item)
	if rec.ProductID == "" {
		rec.ProductID = e.ProductID
	}
	if len(missing) > 0 {
		logger.Debug("fields not found", zap.String("url", item.URL), zap.Strings("fields", missing))
	}
	return harvest.CompletedEntry(rec)
}
