package plugins

import (
	"github.com/joshp123/geocosy/internal/config"
	"github.com/joshp123/geocosy/internal/core"
	"github.com/joshp123/geocosy/internal/logger"
)

// Factory builds a plugin instance from the loaded config.
type Factory func(*config.Config, *logger.Logger) (core.Plugin, bool)

var compiled []Factory

// Register adds a compiled-in plugin factory to the registry.
func Register(factory Factory) {
	compiled = append(compiled, factory)
}

// Compiled returns the configured plugin instances for this build.
func Compiled(cfg *config.Config, log *logger.Logger) []core.Plugin {
	if cfg == nil {
		return nil
	}
	out := make([]core.Plugin, 0, len(compiled))
	for _, factory := range compiled {
		plugin, ok := factory(cfg, log)
		if !ok {
			continue
		}
		out = append(out, plugin)
	}
	return out
}
