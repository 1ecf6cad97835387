package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Specoptor/trendyol/internal/harvest"
)

// BackendName identifies this backend in configuration.
const BackendName = "rendered"

// DefaultUnavailableTitle is the title served instead of a removed product page.
const DefaultUnavailableTitle = "trendyol.com"

// Config controls the rendered-browser backend.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	UnavailableTitle  string
	ExecPath          string
}

type page struct {
	title      string
	html       string
	statusCode int
}

type renderer interface {
	render(ctx context.Context, rawURL string) (page, error)
	close() error
}

type rendererFactory func(ctx context.Context, cfg Config) (renderer, error)

// Backend hands out one browser-backed session per worker.
type Backend struct {
	cfg         Config
	newRenderer rendererFactory
	logger      *zap.Logger
}

// New creates a rendered-browser backend.
func New(cfg Config, logger *zap.Logger) *Backend {
	cfg.NavigationTimeout = navTimeout(cfg.NavigationTimeout)
	if cfg.UnavailableTitle == "" {
		cfg.UnavailableTitle = DefaultUnavailableTitle
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		cfg:         cfg,
		newRenderer: newChromeRenderer,
		logger:      logger,
	}
}

// Name implements harvest.Backend.
func (b *Backend) Name() string {
	return BackendName
}

// NewSession starts a dedicated browser for the calling worker.
func (b *Backend) NewSession(ctx context.Context) (harvest.Session, error) {
	r, err := b.newRenderer(ctx, b.cfg)
	if err != nil {
		return nil, fmt.Errorf("new browser session: %w", err)
	}
	return &Session{cfg: b.cfg, renderer: r, logger: b.logger}, nil
}

// Session renders product pages in its own browser.
type Session struct {
	cfg      Config
	renderer renderer
	logger   *zap.Logger
}

// Extract implements harvest.Session.
func (s *Session) Extract(ctx context.Context, item harvest.WorkItem) (harvest.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return harvest.RawRecord{}, harvest.NewExtractionError(harvest.KindCanceled, item.URL, err)
	}
	pg, err := s.renderer.render(ctx, item.URL)
	if err != nil {
		if ctx.Err() != nil {
			return harvest.RawRecord{}, harvest.NewExtractionError(harvest.KindCanceled, item.URL, err)
		}
		return harvest.RawRecord{}, harvest.BackendError(item.URL, 0, err)
	}
	title := strings.TrimSpace(pg.title)
	if strings.EqualFold(title, s.cfg.UnavailableTitle) {
		return harvest.RawRecord{}, harvest.NewExtractionError(harvest.KindItemUnavailable, item.URL, nil)
	}
	if pg.statusCode >= 400 {
		return harvest.RawRecord{}, harvest.BackendError(item.URL, pg.statusCode, errors.New("document request failed"))
	}
	if strings.TrimSpace(pg.html) == "" {
		return harvest.RawRecord{}, harvest.NewExtractionError(harvest.KindEmptyResponse, item.URL, nil)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pg.html))
	if err != nil {
		return harvest.RawRecord{}, harvest.NewExtractionError(harvest.KindMalformedResponse, item.URL, err)
	}
	return harvest.RawRecord{Document: doc, Title: title, Body: []byte(pg.html)}, nil
}

// Close shuts the browser down.
func (s *Session) Close() error {
	if err := s.renderer.close(); err != nil {
		s.logger.Warn("browser close failed", zap.Error(err))
		return err
	}
	return nil
}
