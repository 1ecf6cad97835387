package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsStatusAndRoute(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/progress", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "405"))
	unavailableBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "503"))

	for _, tc := range []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/progress?verbose=1", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusServiceUnavailable},
		{http.MethodPost, "/progress", http.StatusMethodNotAllowed},
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		require.Equal(t, tc.want, rec.Code, tc.path)
	}

	assert.InDelta(t, unavailableBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "503")), 0.001)
	assert.InDelta(t, okBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "405")), 0.001)
	assert.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func TestRouteOfWithoutChiContext(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unmatched", routeOf(httptest.NewRequest(http.MethodGet, "/x", nil)))
}
