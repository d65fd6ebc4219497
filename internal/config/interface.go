package config

import (
	"context"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads the configuration file at path over the defaults. An empty
	// path returns the defaults.
	Load(ctx context.Context, path string) (*Model, error)
}
