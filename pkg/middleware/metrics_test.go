package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func meteredRouter(service string, status int) http.Handler {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics(service))
	r.Post("/user-login/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	r.Get("/get-user-profile/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	return r
}

func TestPrometheusMetrics_CountsByRoute(t *testing.T) {
	h := meteredRouter("metrics-count", http.StatusOK)
	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/user-login/", nil))
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(
		httpRequestsTotal.WithLabelValues("metrics-count", "POST", "/user-login/", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(httpRequestDuration.WithLabelValues("metrics-count", "POST", "/user-login/")))
}

func TestPrometheusMetrics_ImplicitOK(t *testing.T) {
	h := meteredRouter("metrics-implicit", http.StatusOK)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/get-user-profile/", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(
		httpRequestsTotal.WithLabelValues("metrics-implicit", "GET", "/get-user-profile/", "200")))
}

func TestPrometheusMetrics_Rejections(t *testing.T) {
	tests := []struct {
		status int
		want   float64
	}{
		{http.StatusUnauthorized, 1},
		{http.StatusTooManyRequests, 1},
		{http.StatusBadRequest, 0},
		{http.StatusInternalServerError, 0},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			service := "metrics-reject-" + http.StatusText(tt.status)
			meteredRouter(service, tt.status).ServeHTTP(httptest.NewRecorder(),
				httptest.NewRequest(http.MethodPost, "/user-login/", nil))

			assert.Equal(t, tt.want, testutil.ToFloat64(
				httpRejectionsTotal.WithLabelValues(service, "/user-login/", strconv.Itoa(tt.status))))
		})
	}
}

func TestPrometheusMetrics_InFlight(t *testing.T) {
	var during float64
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("metrics-inflight"))
	r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(httpRequestsInFlight.WithLabelValues("metrics-inflight"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))

	assert.Equal(t, float64(1), during)
	assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsInFlight.WithLabelValues("metrics-inflight")))
}

func TestPrometheusMetrics_UnmatchedRouteCollapses(t *testing.T) {
	h := meteredRouter("metrics-unmatched", http.StatusOK)
	for _, p := range []string{"/a", "/b", "/wp-login.php"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(
		httpRequestsTotal.WithLabelValues("metrics-unmatched", "GET", "unmatched", "404")))
}
