package cosy

import (
	"context"
	_ "embed"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/geocosy/internal/config"
	"github.com/joshp123/geocosy/internal/core"
	"github.com/joshp123/geocosy/internal/journal"
	"github.com/joshp123/geocosy/internal/logger"
)

//go:embed AGENTS.md
var agentsMD string

//go:embed dashboard.json
var dashboardJSON []byte

const pluginID = "cosy"

// Plugin implements the geocosy plugin contract.
type Plugin struct {
	controller    *Controller
	bridge        *Bridge
	store         *journal.Store
	log           *logger.Logger
	health        core.HealthStatus
	healthMessage string
}

// NewPlugin constructs a Cosy plugin from config. ok is false when the
// cosy section is not configured.
func NewPlugin(cfg *config.Config, log *logger.Logger) (core.Plugin, bool) {
	if cfg == nil || cfg.Cosy.Username == "" {
		return nil, false
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named(pluginID)

	clientCfg, err := ConfigFromSettings(cfg.Cosy)
	if err != nil {
		return &Plugin{log: log, health: core.HealthError, healthMessage: err.Error()}, true
	}
	client, err := NewClient(clientCfg, log)
	if err != nil {
		return &Plugin{log: log, health: core.HealthError, healthMessage: err.Error()}, true
	}

	plugin := &Plugin{log: log, health: core.HealthHealthy}

	var j Journal
	if cfg.Journal.Path != "" {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			plugin.health = core.HealthDegraded
			plugin.healthMessage = err.Error()
			log.Warnw("command journal disabled", "path", cfg.Journal.Path, "err", err)
		} else {
			plugin.store = store
			j = store
		}
	}

	plugin.controller = NewController(client, j, log)
	if bridgeCfg, ok := BridgeConfigFromSettings(cfg.MQTT); ok {
		plugin.bridge = NewBridge(bridgeCfg, plugin.controller, log)
	}
	return plugin, true
}

func (p *Plugin) ID() string {
	return pluginID
}

func (p *Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    pluginID,
		DisplayName: "Geo Cosy",
		Version:     "0.1.0",
		Routes:      serviceRoutes,
	}
}

func (p *Plugin) AgentsMD() string {
	return agentsMD
}

func (p *Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "cosy-overview", JSON: dashboardJSON}}
}

func (p *Plugin) RegisterHTTP(group *gin.RouterGroup) {
	RegisterService(group, p.controller, p.log)
}

func (p *Plugin) Collectors() []prometheus.Collector {
	if p.controller == nil {
		return nil
	}
	return []prometheus.Collector{NewMetricsCollector(p.controller, p.log)}
}

func (p *Plugin) Health() core.HealthStatus {
	return p.health
}

func (p *Plugin) HealthMessage() string {
	return p.healthMessage
}

// Run connects to the vendor and drives the MQTT bridge when configured.
func (p *Plugin) Run(ctx context.Context) error {
	if p.controller == nil {
		<-ctx.Done()
		return nil
	}
	if err := p.controller.Connect(ctx); err != nil {
		p.log.Warnw("initial cosy connect failed, retrying on demand", "err", err)
	}
	if p.bridge == nil {
		<-ctx.Done()
		return nil
	}
	return p.bridge.Run(ctx)
}

func (p *Plugin) Close() error {
	if p.controller != nil {
		p.controller.Close()
	}
	if p.store != nil {
		return p.store.Close()
	}
	return nil
}
