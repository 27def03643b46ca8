package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/geocosy/internal/logger"
)

func TestEngineRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "geocosy_test_gauge", Help: "test"})
	gauge.Set(3)
	registry.MustRegister(gauge)

	engine := NewEngine(logger.Nop(), registry, map[string][]byte{
		"/dashboards/cosy/overview.json": []byte(`{"title":"x"}`),
	})

	cases := []struct {
		path     string
		code     int
		contains string
	}{
		{"/health", http.StatusOK, "ok"},
		{"/metrics", http.StatusOK, "geocosy_test_gauge 3"},
		{"/dashboards/cosy/overview.json", http.StatusOK, `"title":"x"`},
		{"/dashboards/cosy/missing.json", http.StatusNotFound, "not found"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.code, w.Code)
		}
		if !strings.Contains(w.Body.String(), tc.contains) {
			t.Fatalf("%s: body %q missing %q", tc.path, w.Body.String(), tc.contains)
		}
	}
}
