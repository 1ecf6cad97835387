// Package discovery enumerates product URLs from the paginated sitemap index.
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Specoptor/trendyol/internal/harvest"
	"github.com/Specoptor/trendyol/internal/metrics"
)

// DefaultURLTemplate is the sitemap page pattern; %d is the 1-based page number.
const DefaultURLTemplate = "https://www.trendyol.com/en/sitemap_products%d.xml"

const (
	defaultPageBound   = 3
	defaultConcurrency = 3
	defaultTimeout     = 30 * time.Second
	locXPath           = "//urlset/url/loc"
)

// Config controls sitemap discovery.
type Config struct {
	URLTemplate string
	PageBound   int
	// ItemCap stops discovery once this many unique links are known. Zero is unbounded.
	ItemCap     int
	Concurrency int
	Timeout     time.Duration
	UserAgent   string
}

// Discoverer fetches sitemap pages concurrently and returns unique product links.
type Discoverer struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// New builds a Discoverer. Zero config fields take defaults.
func New(cfg Config, logger *zap.Logger) *Discoverer {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	if cfg.PageBound <= 0 {
		cfg.PageBound = defaultPageBound
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &Discoverer{
		cfg:    cfg,
		base:   c,
		logger: logger.Named("discovery"),
	}
}

// PageURL renders the sitemap URL for a 1-based page number.
func (d *Discoverer) PageURL(page int) string {
	return fmt.Sprintf(d.cfg.URLTemplate, page)
}

// Discover fetches pages 1..PageBound and returns the deduplicated links.
// A failing page contributes nothing. Returns harvest.ErrNoWorkItems when no
// link was found.
func (d *Discoverer) Discover(ctx context.Context) ([]harvest.WorkItem, error) {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	acc := newAccumulator(d.cfg.ItemCap)
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(d.cfg.Concurrency)

	for page := 1; page <= d.cfg.PageBound; page++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			target := d.PageURL(page)
			links, err := d.fetchPage(gctx, target)
			if err != nil {
				if gctx.Err() == nil {
					d.logger.Warn("sitemap page failed", zap.String("url", target), zap.Error(err))
					metrics.ObserveDiscoveryPage("error", 0)
				}
				return nil
			}
			added, full := acc.add(target, links)
			metrics.ObserveDiscoveryPage("ok", added)
			d.logger.Debug("sitemap page fetched",
				zap.String("url", target),
				zap.Int("links", len(links)),
				zap.Int("new", added),
			)
			if full {
				d.logger.Info("item cap reached", zap.Int("item_cap", d.cfg.ItemCap))
				stop()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discovery canceled: %w", err)
	}
	items := acc.snapshot()
	if len(items) == 0 {
		return nil, harvest.ErrNoWorkItems
	}
	d.logger.Info("discovery finished", zap.Int("items", len(items)))
	return items, nil
}

type pageResult struct {
	statusCode int
	links      []string
	err        error
}

func (d *Discoverer) fetchPage(ctx context.Context, target string) ([]string, error) {
	var res pageResult
	c := d.base.Clone()
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/xml, text/xml")
	})
	c.OnResponse(func(r *colly.Response) {
		res.statusCode = r.StatusCode
	})
	c.OnXML(locXPath, func(e *colly.XMLElement) {
		if link := strings.TrimSpace(e.Text); link != "" {
			res.links = append(res.links, link)
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.statusCode = r.StatusCode
		}
		res.err = err
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(target)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("sitemap fetch canceled: %w", ctx.Err())
	case err := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("sitemap status %d: %w", res.statusCode, res.err)
		}
		if err != nil {
			return nil, fmt.Errorf("visit sitemap: %w", err)
		}
	}
	if res.statusCode != 0 && (res.statusCode < http.StatusOK || res.statusCode >= http.StatusMultipleChoices) {
		return nil, fmt.Errorf("sitemap status %d", res.statusCode)
	}
	return res.links, nil
}

// accumulator keeps unique links in arrival order up to an optional cap,
// each tagged with the sitemap page it was first seen on.
type accumulator struct {
	mu    sync.Mutex
	limit int
	seen  map[string]struct{}
	items []harvest.WorkItem
}

func newAccumulator(limit int) *accumulator {
	return &accumulator{limit: limit, seen: make(map[string]struct{})}
}

func (a *accumulator) add(source string, links []string) (added int, full bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range links {
		if a.limit > 0 && len(a.items) >= a.limit {
			break
		}
		if _, ok := a.seen[l]; ok {
			continue
		}
		a.seen[l] = struct{}{}
		a.items = append(a.items, harvest.WorkItem{URL: l, Source: source})
		added++
	}
	return added, a.limit > 0 && len(a.items) >= a.limit
}

func (a *accumulator) snapshot() []harvest.WorkItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.items)
}
