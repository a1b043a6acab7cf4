package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetrics_LabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewHTTPMetrics(reg, "identity")
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/"+id, nil))
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(m.total.WithLabelValues("GET", "/users/{id}", "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.total))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.inFlight))

	count, err := testutil.GatherAndCount(reg, "http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHTTPMetrics_UnmatchedRoute(t *testing.T) {
	m, err := NewHTTPMetrics(nil, "identity")
	require.NoError(t, err)

	h := m.Middleware(okHandler)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.total.WithLabelValues("GET", "unknown", "200")))
}

func TestNewHTTPMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewHTTPMetrics(reg, "identity")
	require.NoError(t, err)
	_, err = NewHTTPMetrics(reg, "identity")
	assert.Error(t, err)
}
