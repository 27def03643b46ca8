package cosy

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/joshp123/geocosy/internal/logger"
)

// gaugeValue gathers registry and returns the unlabelled gauge named name.
func gaugeValue(t *testing.T, registry *prometheus.Registry, name string) (float64, bool) {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		metrics := family.GetMetric()
		if len(metrics) == 0 {
			return 0, false
		}
		return metrics[0].GetGauge().GetValue(), true
	}
	return 0, false
}

func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestMetricsCollector(t *testing.T) {
	fake := newFakeCosy(t)
	fake.mode = 2
	collector := NewMetricsCollector(newTestController(t, fake, nil), nil)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	temp, ok := gaugeValue(t, registry, "geocosy_cosy_temperature_celsius")
	if !ok || temp != 20.5 {
		t.Fatalf("expected temperature 20.5, got %v (present=%v)", temp, ok)
	}
	if got := testutil.ToFloat64(collector.success); got != 1 {
		t.Fatalf("expected scrape success, got %v", got)
	}
	if got := testutil.ToFloat64(collector.presetActive.WithLabelValues("comfy")); got != 1 {
		t.Fatalf("expected comfy active, got %v", got)
	}
	if got := testutil.ToFloat64(collector.presetActive.WithLabelValues("slumber")); got != 0 {
		t.Fatalf("expected slumber inactive, got %v", got)
	}
	if got := testutil.ToFloat64(collector.setpoint.WithLabelValues("cosy")); got != 21 {
		t.Fatalf("expected cosy setpoint 21, got %v", got)
	}
}

func TestMetricsCollectorDropsMissingTemperature(t *testing.T) {
	fake := newFakeCosy(t)
	log, logs := observedLogger()
	collector := NewMetricsCollector(newTestController(t, fake, nil), log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	if _, ok := gaugeValue(t, registry, "geocosy_cosy_temperature_celsius"); !ok {
		t.Fatalf("expected temperature on first scrape")
	}

	fake.mu.Lock()
	fake.liveData = `{"controllerStatusList":[{"currentMode":1}]}`
	fake.mu.Unlock()

	if temp, ok := gaugeValue(t, registry, "geocosy_cosy_temperature_celsius"); ok {
		t.Fatalf("expected no temperature without a reading, got %v", temp)
	}
	if got, _ := gaugeValue(t, registry, "geocosy_cosy_mode_code"); got != 1 {
		t.Fatalf("expected mode code 1, got %v", got)
	}
	if logs.FilterMessage("cosy metrics temperature unavailable").Len() == 0 {
		t.Fatalf("expected missing temperature to be logged")
	}
}

func TestMetricsCollectorFailure(t *testing.T) {
	fake := newFakeCosy(t)
	fake.failPath = "account/login"
	fake.failCode = http.StatusServiceUnavailable
	log, logs := observedLogger()
	collector := NewMetricsCollector(newTestController(t, fake, nil), log)

	if count := testutil.CollectAndCount(collector, "geocosy_cosy_scrape_success"); count != 1 {
		t.Fatalf("expected success gauge to be exported, got %d", count)
	}
	if count := testutil.CollectAndCount(collector, "geocosy_cosy_temperature_celsius"); count != 0 {
		t.Fatalf("expected no temperature on failed scrape, got %d", count)
	}
	if got := testutil.ToFloat64(collector.success); got != 0 {
		t.Fatalf("expected scrape failure, got %v", got)
	}

	entries := logs.FilterMessage("cosy metrics state read failed").All()
	if len(entries) == 0 {
		t.Fatalf("expected state failure to be logged")
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level, got %s", entries[0].Level)
	}
	if _, ok := entries[0].ContextMap()["err"]; !ok {
		t.Fatalf("expected err field, got %v", entries[0].ContextMap())
	}
}

func TestMetricsCollectorLogsSetpointFailure(t *testing.T) {
	fake := newFakeCosy(t)
	fake.failPath = "system/all-cosy-settings"
	fake.failCode = http.StatusInternalServerError
	log, logs := observedLogger()
	collector := NewMetricsCollector(newTestController(t, fake, nil), log)

	testutil.CollectAndCount(collector)
	if got := testutil.ToFloat64(collector.success); got != 0 {
		t.Fatalf("expected scrape failure, got %v", got)
	}
	if logs.FilterMessage("cosy metrics setpoints read failed").Len() != 1 {
		t.Fatalf("expected setpoints failure to be logged once, got %v", logs.All())
	}
}
