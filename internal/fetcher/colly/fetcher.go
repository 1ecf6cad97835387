// Package collyfetcher implements the content API extraction backend using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/Specoptor/trendyol/internal/harvest"
)

// BackendName identifies this backend in configuration.
const BackendName = "api"

const (
	defaultEndpoint = "https://public-mdc.trendyol.com/discovery-sfint-productgw-service/api/product-detail/getProductDetailContentV2"
	defaultCulture  = "en-GB"
	defaultCookie   = "storefrontId=34; countryCode=GB; language=en;"
)

// Config controls content API requests.
type Config struct {
	Endpoint  string
	Culture   string
	Cookie    string
	UserAgent string
	Timeout   time.Duration
}

// Backend hands out per-worker content API sessions.
type Backend struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Backend. Empty config fields take the catalog defaults.
func New(cfg Config, logger *zap.Logger) *Backend {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Culture == "" {
		cfg.Culture = defaultCulture
	}
	if cfg.Cookie == "" {
		cfg.Cookie = defaultCookie
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		cfg:       cfg,
		transport: newHTTPTransport(),
		logger:    logger,
	}
}

// Name implements harvest.Backend.
func (b *Backend) Name() string {
	return BackendName
}

// NewSession implements harvest.Backend. Each session owns its own collector.
func (b *Backend) NewSession(_ context.Context) (harvest.Session, error) {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(b.transport)
	c.SetRequestTimeout(b.cfg.Timeout)
	if b.cfg.UserAgent != "" {
		c.UserAgent = b.cfg.UserAgent
	}
	return &Session{
		cfg:       b.cfg,
		base:      c,
		transport: b.transport,
		logger:    b.logger,
	}, nil
}

// Session issues content API requests for one worker.
type Session struct {
	cfg       Config
	base      *colly.Collector
	transport http.RoundTripper
	logger    *zap.Logger
}

// response collects the outcome of one collector visit.
type response struct {
	statusCode int
	body       []byte
	err        error
}

// Extract implements harvest.Session.
func (s *Session) Extract(ctx context.Context, item harvest.WorkItem) (harvest.RawRecord, error) {
	id, ok := harvest.ProductID(item.URL)
	if !ok {
		return harvest.RawRecord{}, harvest.NewExtractionError(harvest.KindNoIdentifier, item.URL, nil)
	}
	target, err := s.requestURL(id)
	if err != nil {
		return harvest.RawRecord{}, harvest.BackendError(item.URL, 0, err)
	}

	var resp response
	collector := s.base.Clone()
	s.configureCollectorHooks(collector, &resp)
	if err := runCollector(ctx, collector, target, &resp); err != nil {
		if ctx.Err() != nil {
			return harvest.RawRecord{}, harvest.NewExtractionError(harvest.KindCanceled, item.URL, err)
		}
		return harvest.RawRecord{}, harvest.BackendError(item.URL, resp.statusCode, err)
	}
	return decodePayload(item.URL, resp)
}

// Close implements harvest.Session.
func (s *Session) Close() error {
	if t, ok := s.transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

func (s *Session) requestURL(id string) (string, error) {
	u, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("contentId", id)
	q.Set("culture", s.cfg.Culture)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Session) configureCollectorHooks(hooks collectorHooks, resp *response) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Cookie", s.cfg.Cookie)
		r.Headers.Set("Accept", "application/json")
	})

	hooks.OnResponse(func(r *colly.Response) {
		resp.statusCode = r.StatusCode
		resp.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			resp.statusCode = r.StatusCode
		}
		resp.err = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, target string, resp *response) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if resp.err != nil {
			return fmt.Errorf("colly response failed: %w", resp.err)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func decodePayload(itemURL string, resp response) (harvest.RawRecord, error) {
	if resp.statusCode != 0 && resp.statusCode != http.StatusOK {
		return harvest.RawRecord{}, harvest.BackendError(itemURL, resp.statusCode, errors.New(http.StatusText(resp.statusCode)))
	}
	return DecodeBody(itemURL, resp.body)
}

// DecodeBody classifies a content API response body and unwraps the optional
// result envelope. It is also used to re-normalize raw dumps offline.
func DecodeBody(itemURL string, raw []byte) (harvest.RawRecord, error) {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return harvest.RawRecord{}, harvest.NewExtractionError(harvest.KindEmptyResponse, itemURL, nil)
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return harvest.RawRecord{}, harvest.NewExtractionError(harvest.KindMalformedResponse, itemURL, err)
	}
	payload, ok := decoded.(map[string]any)
	if !ok {
		return harvest.RawRecord{}, harvest.NewExtractionError(harvest.KindMalformedResponse, itemURL,
			fmt.Errorf("unexpected payload type %T", decoded))
	}
	if inner, wrapped := payload["result"]; wrapped {
		if inner == nil {
			return harvest.RawRecord{}, harvest.NewExtractionError(harvest.KindEmptyResponse, itemURL, nil)
		}
		if m, ok := inner.(map[string]any); ok {
			payload = m
		}
	}
	if len(payload) == 0 {
		return harvest.RawRecord{}, harvest.NewExtractionError(harvest.KindEmptyResponse, itemURL, nil)
	}
	return harvest.RawRecord{Payload: payload, Body: append([]byte(nil), body...)}, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}
