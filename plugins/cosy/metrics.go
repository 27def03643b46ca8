package cosy

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/geocosy/internal/logger"
)

// MetricsCollector polls the thermostat on each scrape. The temperature is
// only exported when the latest scrape returned one.
type MetricsCollector struct {
	controller *Controller
	log        *logger.Logger

	temp         *prometheus.Desc
	modeCode     prometheus.Gauge
	presetActive *prometheus.GaugeVec
	setpoint     *prometheus.GaugeVec
	lastSuccess  prometheus.Gauge
	success      prometheus.Gauge
}

func NewMetricsCollector(controller *Controller, log *logger.Logger) *MetricsCollector {
	if log == nil {
		log = logger.Nop()
	}
	return &MetricsCollector{
		controller: controller,
		log:        log,
		temp: prometheus.NewDesc(
			"geocosy_cosy_temperature_celsius",
			"Current room temperature reported by the Cosy controller",
			nil, nil,
		),
		modeCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geocosy_cosy_mode_code",
			Help: "Raw controller mode code (0=hibernate, 1=slumber, 2=comfy, 3=cosy)",
		}),
		presetActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geocosy_cosy_preset_active_bool",
			Help: "Active preset (1=active, 0=inactive)",
		}, []string{"preset"}),
		setpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geocosy_cosy_setpoint_celsius",
			Help: "Configured target temperature per preset",
		}, []string{"preset"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geocosy_cosy_last_success_timestamp_seconds",
			Help: "Last successful Cosy scrape timestamp (epoch seconds)",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geocosy_cosy_scrape_success",
			Help: "Last scrape success (1=ok, 0=error)",
		}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.temp
	c.modeCode.Describe(ch)
	c.presetActive.Describe(ch)
	c.setpoint.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.success.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state, err := c.controller.State(ctx)
	if err != nil {
		c.log.Warnw("cosy metrics state read failed", "err", err)
		c.success.Set(0)
		c.collectAll(ch)
		return
	}

	setpoints, err := c.controller.Setpoints(ctx)
	if err != nil {
		c.log.Warnw("cosy metrics setpoints read failed", "err", err)
		c.success.Set(0)
		c.collectAll(ch)
		return
	}

	if state.TemperatureCelsius != nil {
		ch <- prometheus.MustNewConstMetric(c.temp, prometheus.GaugeValue, *state.TemperatureCelsius)
	} else {
		c.log.Debugw("cosy metrics temperature unavailable", "unique_id", state.UniqueID)
	}
	c.modeCode.Set(float64(state.ModeCode))

	c.presetActive.Reset()
	for _, preset := range NamedPresets() {
		c.presetActive.WithLabelValues(string(preset)).Set(boolToFloat(state.Preset == preset))
	}

	c.setpoint.Reset()
	for preset, value := range setpoints.ByPreset() {
		c.setpoint.WithLabelValues(string(preset)).Set(value)
	}

	c.success.Set(1)
	c.lastSuccess.Set(float64(time.Now().Unix()))
	c.collectAll(ch)
}

func (c *MetricsCollector) collectAll(ch chan<- prometheus.Metric) {
	c.modeCode.Collect(ch)
	c.presetActive.Collect(ch)
	c.setpoint.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.success.Collect(ch)
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
