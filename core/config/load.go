package config

import (
	"errors"
	"io/fs"
	"log"
	"path/filepath"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory.
func Load(path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}

	return LoadFs(afero.NewBasePathFs(afero.NewOsFs(), path))
}

// LoadFs loads the configuration from the root of configFs.
func LoadFs(configFs afero.Fs) (*Configuration, error) {
	configContents, err := afero.ReadFile(configFs, ConfigurationName)
	if err != nil {
		return nil, err
	}
	var out Configuration
	if err := yaml.UnmarshalStrict(configContents, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadOrDefault loads the configuration from path, falling back to the built
// in defaults if the directory has none. An empty path always gives the
// defaults.
func LoadOrDefault(path string, logger *log.Logger) (*Configuration, error) {
	if path == "" {
		return defaultConfig(), nil
	}

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		if logger != nil {
			logger.Printf("no configuration in %q, using defaults", path)
		}
		return defaultConfig(), nil
	}
	return cfg, err
}

// Initialize writes the default configuration into dir. Existing files are
// left alone.
func Initialize(dir string, logger *log.Logger) error {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return InitializeFs(afero.NewBasePathFs(osFs, dir), logger)
}

// InitializeFs writes the default configuration into the root of configFs.
func InitializeFs(configFs afero.Fs, logger *log.Logger) error {
	exists, err := afero.Exists(configFs, ConfigurationName)
	if err != nil {
		return err
	}
	if exists {
		logger.Printf("%s already exists, skipping", ConfigurationName)
		return nil
	}

	logger.Printf("writing %s", ConfigurationName)
	return afero.WriteFile(configFs, ConfigurationName, defaultConfigData, 0644)
}
