package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Specoptor/trendyol/internal/harvest"
)

func newContentServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Cookie") != defaultCookie {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Query().Get("culture") != "en-GB" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("contentId") {
		case "1":
			_, _ = w.Write([]byte(`{"id": 1, "name": "Shirt", "brand": {"name": "Acme"}}`))
		case "2":
			w.WriteHeader(http.StatusNotFound)
		case "3":
			w.WriteHeader(http.StatusOK)
		case "4":
			_, _ = w.Write([]byte(`null`))
		case "5":
			_, _ = w.Write([]byte(`{"id": `))
		case "6":
			_, _ = w.Write([]byte(`{"isSuccess": true, "result": {"id": 6, "name": "Bag"}}`))
		case "7":
			_, _ = w.Write([]byte(`{"result": null}`))
		case "8":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte(`[1,2]`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSession(t *testing.T, endpoint string) harvest.Session {
	t.Helper()
	backend := New(Config{Endpoint: endpoint, Timeout: 2 * time.Second}, zap.NewNop())
	session, err := backend.NewSession(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestExtractClassifiesResponses(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newContentServer(t, &hits)
	session := newTestSession(t, srv.URL+"/api/product-detail")

	cases := []struct {
		id     string
		kind   harvest.ErrorKind
		status int
	}{
		{"2", harvest.KindBackendError, http.StatusNotFound},
		{"3", harvest.KindEmptyResponse, 0},
		{"4", harvest.KindEmptyResponse, 0},
		{"5", harvest.KindMalformedResponse, 0},
		{"7", harvest.KindEmptyResponse, 0},
		{"8", harvest.KindBackendError, http.StatusInternalServerError},
		{"9", harvest.KindMalformedResponse, 0},
	}
	for _, tc := range cases {
		_, err := session.Extract(context.Background(), harvest.WorkItem{URL: "https://shop/x-p-" + tc.id})
		xerr, ok := harvest.AsExtractionError(err)
		require.True(t, ok, "id %s: %v", tc.id, err)
		assert.Equal(t, tc.kind, xerr.Kind, "id %s", tc.id)
		assert.Equal(t, tc.status, xerr.StatusCode, "id %s", tc.id)
	}
}

func TestExtractReturnsPayload(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newContentServer(t, &hits)
	session := newTestSession(t, srv.URL)

	raw, err := session.Extract(context.Background(), harvest.WorkItem{URL: "https://shop/shirt-p-1"})
	require.NoError(t, err)
	assert.Equal(t, "Shirt", raw.Payload["name"])
	assert.NotEmpty(t, raw.Body)

	// Same session, same URL twice: revisits must be allowed.
	_, err = session.Extract(context.Background(), harvest.WorkItem{URL: "https://shop/shirt-p-1"})
	require.NoError(t, err)

	wrapped, err := session.Extract(context.Background(), harvest.WorkItem{URL: "https://shop/bag-p-6"})
	require.NoError(t, err)
	assert.Equal(t, "Bag", wrapped.Payload["name"])
	assert.EqualValues(t, 3, hits.Load())
}

func TestExtractWithoutIdentifierIssuesNoRequest(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newContentServer(t, &hits)
	session := newTestSession(t, srv.URL)

	_, err := session.Extract(context.Background(), harvest.WorkItem{URL: "https://shop/category"})
	require.ErrorIs(t, err, harvest.ErrNoIdentifier)
	assert.Zero(t, hits.Load())
}

func TestExtractTransportFailureHasZeroStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	session := newTestSession(t, endpoint)
	_, err := session.Extract(context.Background(), harvest.WorkItem{URL: "https://shop/x-p-1"})
	xerr, ok := harvest.AsExtractionError(err)
	require.True(t, ok)
	assert.Equal(t, harvest.KindBackendError, xerr.Kind)
	assert.Zero(t, xerr.StatusCode)
}

func TestExtractCanceledContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	session := newTestSession(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := session.Extract(ctx, harvest.WorkItem{URL: "https://shop/x-p-1"})
	require.Equal(t, harvest.KindCanceled, harvest.KindOf(err))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	s := &Session{cfg: Config{Cookie: "a=b"}}
	var resp response
	hooks := &stubHooks{}
	s.configureCollectorHooks(hooks, &resp)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	req := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(req)
	assert.Equal(t, "a=b", req.Headers.Get("Cookie"))

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte(`{}`)})
	assert.Equal(t, http.StatusOK, resp.statusCode)

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("Bad Gateway"))
	assert.Equal(t, http.StatusBadGateway, resp.statusCode)
	assert.EqualError(t, resp.err, "Bad Gateway")
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	b := New(Config{}, nil)
	assert.Equal(t, defaultEndpoint, b.cfg.Endpoint)
	assert.Equal(t, defaultCulture, b.cfg.Culture)
	assert.Equal(t, 15*time.Second, b.cfg.Timeout)
	assert.Equal(t, BackendName, b.Name())
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
