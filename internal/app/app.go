// Package app assembles a harvest run from configuration: input, backend,
// worker pool, sink, writers and the optional notification and ops server.
package app

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Specoptor/trendyol/internal/api"
	"github.com/Specoptor/trendyol/internal/clock/system"
	"github.com/Specoptor/trendyol/internal/config"
	"github.com/Specoptor/trendyol/internal/discovery"
	"github.com/Specoptor/trendyol/internal/dispatcher"
	collyfetcher "github.com/Specoptor/trendyol/internal/fetcher/colly"
	"github.com/Specoptor/trendyol/internal/fetcher/headless"
	"github.com/Specoptor/trendyol/internal/harvest"
	"github.com/Specoptor/trendyol/internal/hash/sha256"
	"github.com/Specoptor/trendyol/internal/id/uuid"
	"github.com/Specoptor/trendyol/internal/metrics"
	"github.com/Specoptor/trendyol/internal/normalize"
	"github.com/Specoptor/trendyol/internal/output"
	pubsubPublisher "github.com/Specoptor/trendyol/internal/publisher/pubsub"
	"github.com/Specoptor/trendyol/internal/queue/memory"
	"github.com/Specoptor/trendyol/internal/sink"
	"github.com/Specoptor/trendyol/internal/storage/postgres"
)

// Discoverer produces the work items of a run.
type Discoverer interface {
	Discover(ctx context.Context) ([]harvest.WorkItem, error)
}

// App holds the collaborators of a run. Zero-valued collaborators are built
// from configuration on first use.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	clock      harvest.Clock
	ids        harvest.IDGenerator
	hasher     harvest.Hasher
	discoverer Discoverer
	backend    harvest.Backend
	normalizer harvest.Normalizer
	publisher  harvest.Publisher
	writers    []harvest.ResultWriter
}

// Option customizes an App.
type Option func(*App)

// WithClock overrides the wall clock.
func WithClock(c harvest.Clock) Option { return func(a *App) { a.clock = c } }

// WithIDGenerator overrides run id generation.
func WithIDGenerator(g harvest.IDGenerator) Option { return func(a *App) { a.ids = g } }

// WithDiscoverer replaces sitemap discovery and the URL file.
func WithDiscoverer(d Discoverer) Option { return func(a *App) { a.discoverer = d } }

// WithBackend replaces the configured extraction backend.
func WithBackend(b harvest.Backend) Option { return func(a *App) { a.backend = b } }

// WithPublisher replaces the Pub/Sub publisher.
func WithPublisher(p harvest.Publisher) Option { return func(a *App) { a.publisher = p } }

// WithResultWriters appends writers run after the configured artifacts.
func WithResultWriters(w ...harvest.ResultWriter) Option {
	return func(a *App) { a.writers = append(a.writers, w...) }
}

// New creates an App.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
		hasher: sha256.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.normalizer == nil {
		a.normalizer = normalize.New(cfg.Rendered.Selectors, logger.Named("normalize"))
	}
	return a
}

// RunNotice is published once a run has been finalized.
type RunNotice struct {
	RunID       string            `json:"run_id"`
	Backend     string            `json:"backend"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Counts      harvest.Counts    `json:"counts"`
	Artifacts   map[string]string `json:"artifacts"`
	ArtifactURI string            `json:"artifact_uri,omitempty"`
	Checksum    string            `json:"checksum,omitempty"`
}

// Report summarizes a finished run.
type Report struct {
	RunID     string
	Stats     dispatcher.Stats
	Summary   sink.Summary
	Checksum  string
	MessageID string
}

// Run executes one full harvest. Per-item failures never fail the run; only
// empty input, session startup, writer and notification failures do.
func (a *App) Run(ctx context.Context) (Report, error) {
	runID, err := a.ids.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := a.logger.With(zap.String("run_id", runID))
	report := Report{RunID: runID}

	if d := a.cfg.RunTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	var server *api.Server
	if a.cfg.Server.Enabled {
		server = api.NewServer(runID, logger)
		stopServer := a.startServer(ctx, server, logger)
		defer stopServer()
	}
	setPhase := func(p api.Phase) {
		if server != nil {
			server.SetPhase(p)
		}
	}

	setPhase(api.PhaseDiscovering)
	items, err := a.loadItems(ctx)
	if err != nil {
		return report, err
	}
	items = harvest.Dedupe(items)
	queue, err := memory.Fill(ctx, items)
	if err != nil {
		return report, fmt.Errorf("fill queue: %w", err)
	}
	metrics.SetQueueDepth(queue.Len())
	logger.Info("work items queued", zap.Int("items", queue.Len()))

	// Output targets are probed before any item is extracted.
	jsonWriter, writers, closeWriters, err := a.buildWriters(ctx, logger)
	if err != nil {
		return report, err
	}
	defer closeWriters()

	backend := a.backend
	if backend == nil {
		backend, err = a.buildBackend()
		if err != nil {
			return report, err
		}
	}

	results := sink.New(runID, sink.Config{CaptureRaw: a.cfg.Output.RawPath != ""}, a.clock, logger)
	if server != nil {
		server.SetProgressSource(results)
	}

	setPhase(api.PhaseHarvesting)
	pool := dispatcher.New(dispatcher.Config{Workers: a.cfg.Harvest.Workers}, queue, backend, a.normalizer, results, logger)
	report.Stats, err = pool.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("run worker pool: %w", err)
	}

	// Artifacts are still written when the run was canceled or timed out.
	finalCtx := context.WithoutCancel(ctx)
	setPhase(api.PhaseFinalizing)

	report.Summary, err = results.Finalize(finalCtx, writers...)
	if err != nil {
		return report, fmt.Errorf("finalize results: %w", err)
	}
	report.Checksum = jsonWriter.Checksum()

	if report.Summary.Counts.Total > 0 {
		report.MessageID, err = a.notify(finalCtx, backend.Name(), report)
		if err != nil {
			return report, err
		}
	}
	setPhase(api.PhaseDone)
	return report, nil
}

func (a *App) startServer(ctx context.Context, server *api.Server, logger *zap.Logger) func() {
	srvCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
		if err := server.Serve(srvCtx, addr); err != nil {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (a *App) loadItems(ctx context.Context) ([]harvest.WorkItem, error) {
	if a.discoverer != nil {
		return a.discoverer.Discover(ctx)
	}
	if a.cfg.Harvest.InputFile != "" {
		items, err := discovery.LoadURLFile(a.cfg.Harvest.InputFile)
		if err != nil {
			return nil, fmt.Errorf("load input file: %w", err)
		}
		return items, nil
	}
	return a.newDiscoverer().Discover(ctx)
}

func (a *App) newDiscoverer() *discovery.Discoverer {
	return discovery.New(discovery.Config{
		URLTemplate: a.cfg.Discovery.URLTemplate,
		PageBound:   a.cfg.Discovery.IndexPageBound,
		ItemCap:     a.cfg.Discovery.ItemCap,
		Concurrency: a.cfg.Discovery.Concurrency,
		Timeout:     a.cfg.DiscoveryTimeout(),
		UserAgent:   a.cfg.Discovery.UserAgent,
	}, a.logger)
}

func (a *App) buildBackend() (harvest.Backend, error) {
	switch a.cfg.Harvest.Backend {
	case config.BackendAPI:
		return collyfetcher.New(collyfetcher.Config{
			Endpoint:  a.cfg.API.Endpoint,
			Culture:   a.cfg.API.Culture,
			Cookie:    a.cfg.API.Cookie,
			UserAgent: a.cfg.API.UserAgent,
			Timeout:   a.cfg.APITimeout(),
		}, a.logger.Named(collyfetcher.BackendName)), nil
	case config.BackendRendered:
		return headless.New(headless.Config{
			UserAgent:         a.cfg.Rendered.UserAgent,
			NavigationTimeout: a.cfg.NavTimeout(),
			UnavailableTitle:  a.cfg.Rendered.UnavailableTitle,
			ExecPath:          a.cfg.Rendered.ExecPath,
		}, a.logger.Named(headless.BackendName)), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", a.cfg.Harvest.Backend)
	}
}

// buildWriters resolves every configured artifact. The JSON writer is always
// first so its artifact exists even if a later writer fails.
func (a *App) buildWriters(
	ctx context.Context,
	logger *zap.Logger,
) (*output.JSONWriter, []harvest.ResultWriter, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	resolve := func(target string) (*output.Location, error) {
		loc, err := output.Resolve(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("resolve output %s: %w", target, err)
		}
		closers = append(closers, func() {
			if err := loc.Close(); err != nil {
				logger.Warn("output close failed", zap.String("target", target), zap.Error(err))
			}
		})
		return loc, nil
	}

	loc, err := resolve(a.cfg.Output.Path)
	if err != nil {
		closeAll()
		return nil, nil, nil, err
	}
	jsonWriter := output.NewJSONWriter(loc.Store, loc.Path, a.hasher)
	writers := []harvest.ResultWriter{jsonWriter}

	if a.cfg.Output.CSVPath != "" {
		loc, err := resolve(a.cfg.Output.CSVPath)
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		writers = append(writers, output.NewCSVWriter(loc.Store, loc.Path))
	}
	if a.cfg.Output.RawPath != "" {
		loc, err := resolve(a.cfg.Output.RawPath)
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		writers = append(writers, output.NewRawWriter(loc.Store, loc.Path))
	}
	if a.cfg.DB.DSN != "" {
		store, err := postgres.NewProductStore(ctx, postgres.Config{
			DSN:             a.cfg.DB.DSN,
			Table:           a.cfg.DB.Table,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DBMaxConnLifetime(),
		})
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("open product store: %w", err)
		}
		closers = append(closers, store.Close)
		if a.cfg.DB.CreateTable {
			if err := store.EnsureSchema(ctx); err != nil {
				closeAll()
				return nil, nil, nil, err
			}
		}
		writers = append(writers, store)
	}
	writers = append(writers, a.writers...)
	return jsonWriter, writers, closeAll, nil
}

func (a *App) notify(ctx context.Context, backendName string, report Report) (string, error) {
	topic := a.cfg.PubSub.TopicName
	if topic == "" {
		return "", nil
	}
	publisher := a.publisher
	if publisher == nil {
		p, err := pubsubPublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return "", err
		}
		defer func() {
			if err := p.Close(); err != nil {
				a.logger.Warn("pubsub close failed", zap.Error(err))
			}
		}()
		publisher = p
	}

	result := report.Summary.Result
	notice := RunNotice{
		RunID:       report.RunID,
		Backend:     backendName,
		StartedAt:   result.StartedAt,
		FinishedAt:  result.FinishedAt,
		Counts:      report.Summary.Counts,
		Artifacts:   report.Summary.Artifacts,
		ArtifactURI: report.Summary.Artifacts["json"],
		Checksum:    report.Checksum,
	}
	id, err := publisher.Publish(ctx, topic, notice)
	if err != nil {
		return "", fmt.Errorf("publish run notice: %w", err)
	}
	a.logger.Info("run notice published", zap.String("run_id", report.RunID), zap.String("message_id", id))
	return id, nil
}

// Discover runs sitemap discovery only and persists the URL list to out.
func (a *App) Discover(ctx context.Context, out string) (int, string, error) {
	d := a.discoverer
	if d == nil {
		d = a.newDiscoverer()
	}
	items, err := d.Discover(ctx)
	if err != nil {
		return 0, "", err
	}
	items = harvest.Dedupe(items)
	data, err := discovery.EncodeURLList(items)
	if err != nil {
		return 0, "", err
	}
	loc, err := output.Resolve(ctx, out)
	if err != nil {
		return 0, "", fmt.Errorf("resolve output %s: %w", out, err)
	}
	defer func() { _ = loc.Close() }()
	uri, err := loc.Store.PutObject(ctx, loc.Path, "application/json", bytes.NewReader(data))
	if err != nil {
		return 0, "", fmt.Errorf("write url list: %w", err)
	}
	a.logger.Info("url list written", zap.Int("items", len(items)), zap.String("uri", uri))
	return len(items), uri, nil
}
