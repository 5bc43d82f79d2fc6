package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestMiddleware_CountsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware(noop.NewTracerProvider().Tracer("test"), "smartmeter-panel-test"))
	r.Get("/panel/{device_id}/settings", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, path := range []string{"/panel/42/settings", "/panel/7/settings"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusTeapot {
			t.Fatalf("%s: status=%d", path, rec.Code)
		}
	}

	got := testutil.ToFloat64(requestCounter.WithLabelValues("smartmeter-panel-test", "/panel/{device_id}/settings", "GET", "418"))
	if got != 2 {
		t.Fatalf("counter=%v want 2", got)
	}
}
