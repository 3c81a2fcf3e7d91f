package config

import (
	"context"
)

// Loader provides configuration loading capabilities. It abstracts the
// source of configuration so the tooling can load from files today and
// from environment overlays or remote sources without touching callers.
type Loader interface {
	// Load retrieves, parses, and validates the configuration from the
	// underlying source. The returned configuration has every
	// source_file reference already resolved into inline source.
	Load(ctx context.Context) (*Config, error)
}
