// Package fileloader loads tooling configuration from a YAML file on
// disk.
package fileloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/adt-armada/internal/config"
)

// FileLoader loads configuration from a file on disk. It implements
// the config.Loader interface.
type FileLoader struct {
	// path is the filesystem path to the configuration file.
	path string
}

var _ config.Loader = (*FileLoader)(nil)

// NewFileLoader creates a FileLoader that will load configuration from
// the specified file path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load reads, parses, and validates the configuration file. Object
// specs that reference a source_file get the file's content inlined,
// resolved relative to the configuration file's directory, so callers
// always see a fully materialized configuration.
func (l *FileLoader) Load(ctx context.Context) (*config.Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(l.path)
	for i := range cfg.Objects {
		spec := &cfg.Objects[i]
		if spec.SourceFile == "" {
			continue
		}

		path := spec.SourceFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read source file for object %s: %w", spec.Name, err)
		}
		spec.Source = string(source)
		spec.SourceFile = ""
	}

	return &cfg, nil
}
