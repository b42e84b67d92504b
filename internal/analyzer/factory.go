package analyzer

import (
	"fmt"

	"reclaim/internal/config"
	"reclaim/internal/port"
)

// ProviderFactory is a function that creates a remote Analyzer from a
// provider config.
type ProviderFactory func(cfg *config.AnalyzerProviderConfig) (port.Analyzer, error)

// registry of remote analyzer factories, populated explicitly via
// RegisterProvider during wiring.
var providers = map[string]ProviderFactory{}

// RegisterProvider registers a remote analyzer factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// NewRemote creates a remote Analyzer from a provider config using the
// registered factory.
func NewRemote(cfg *config.AnalyzerProviderConfig) (port.Analyzer, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown analyzer provider: %s", cfg.Provider)
	}
	return factory(cfg)
}
