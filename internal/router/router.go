package router

import (
	"github.com/gin-gonic/gin"

	"github.com/joshp123/geocosy/internal/core"
)

// RegisterPlugins mounts the registry and every plugin's routes on engine.
func RegisterPlugins(engine *gin.Engine, plugins []core.Plugin) {
	core.NewRegistryService(plugins).RegisterHTTP(engine.Group("/registry"))

	for _, p := range plugins {
		p.RegisterHTTP(engine.Group("/plugins/" + p.ID()))
	}
}
