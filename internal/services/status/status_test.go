package status

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quorumlab/nodegate/internal/api"
	"github.com/quorumlab/nodegate/internal/logger"
)

func TestStatusEndpoints(t *testing.T) {
	aggregator := api.NewAggregator()
	aggregator.Insert(Name, New().API())
	h := aggregator.Handler(api.Public, api.NewServerConfig(":0"), logger.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status/info", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/status/info status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("info body = %s, want ok status", rec.Body.String())
	}
	if rec.Header().Get("Warning") != "" {
		t.Error("info endpoint should not carry a deprecation warning")
	}
}

func TestHealthIsDeprecatedAlias(t *testing.T) {
	aggregator := api.NewAggregator()
	aggregator.Insert(Name, New().API())
	h := aggregator.Handler(api.Public, api.NewServerConfig(":0"), logger.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/status/health status = %d, want 200", rec.Code)
	}
	warning := rec.Header().Get("Warning")
	if !strings.HasPrefix(warning, `299 - "`) {
		t.Fatalf("Warning = %q, want a 299 deprecation warning", warning)
	}
	if !strings.Contains(warning, "use the `info` endpoint instead") {
		t.Errorf("Warning = %q, want pointer to the replacement", warning)
	}
}
