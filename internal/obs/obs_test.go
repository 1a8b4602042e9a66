package obs_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alex-user-go/luxsearch/internal/obs"
)

func TestMetricsHandler(t *testing.T) {
	m := obs.NewMetrics(slog.New(slog.DiscardHandler))
	m.IncRequests()
	m.IncRequests()
	m.IncCacheHits()
	m.IncProviderErrors()
	m.AddNormalizedItems(7)

	rec := httptest.NewRecorder()
	m.MetricsHandler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"luxsearch_requests_total 2\n",
		"luxsearch_cache_hits_total 1\n",
		"luxsearch_rate_limited_total 0\n",
		"luxsearch_provider_errors_total 1\n",
		"luxsearch_normalized_items_total 7\n",
		"# TYPE luxsearch_requests_total counter\n",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics to contain %q, got:\n%s", want, body)
		}
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		format     string
		logDebug   bool
		wantPrefix string
	}{
		{name: "json info hides debug", level: "info", format: "json", logDebug: false, wantPrefix: "{"},
		{name: "text debug", level: "DEBUG", format: "text", logDebug: true, wantPrefix: "time="},
		{name: "unknown level is info", level: "loud", format: "json", logDebug: false, wantPrefix: "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, _ := obs.NewLogger(&buf, tt.level, tt.format)

			logger.Debug("debug line")
			if got := buf.Len() > 0; got != tt.logDebug {
				t.Errorf("expected debug logged=%v, got %v", tt.logDebug, got)
			}

			buf.Reset()
			logger.Info("info line")
			if !strings.HasPrefix(buf.String(), tt.wantPrefix) {
				t.Errorf("expected output to start with %q, got %q", tt.wantPrefix, buf.String())
			}
		})
	}
}

func TestNewLogger_LevelSwitch(t *testing.T) {
	var buf bytes.Buffer
	logger, lvl := obs.NewLogger(&buf, "error", "json")

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}

	lvl.Set(slog.LevelInfo)
	logger.Info("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected info after level switch, got %q", buf.String())
	}
}
