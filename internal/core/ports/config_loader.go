package ports

import "go.trai.ch/pkgd/internal/core/domain"

// ConfigLoader defines the interface for loading the runtime configuration.
type ConfigLoader interface {
	// Load reads the configuration visible from cwd, falling back to defaults.
	Load(cwd string) (*domain.Config, error)
}
