// Package config loads the CLI configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config configures the oulog CLI.
type Config struct {
	// StorePath is the directory of the Badger block store.
	StorePath string `yaml:"storePath"`
	// LogID names the log to operate on.
	LogID string `yaml:"logId"`
	// MinimumFreeGB refuses to open the store below this free-space
	// threshold.
	MinimumFreeGB int `yaml:"minimumFreeGB"`
	// PointerCount is the reference density of appended entries.
	PointerCount int `yaml:"pointerCount"`
}

// Load reads the YAML config at path and applies defaults. A missing file
// yields the defaults.
func Load(path string) (Config, error) {
	config := Config{
		StorePath:    "./oulog-data",
		LogID:        "default",
		PointerCount: 1,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if config.StorePath == "" {
		config.StorePath = "./oulog-data"
	}
	if config.LogID == "" {
		config.LogID = "default"
	}
	if config.PointerCount < 1 {
		config.PointerCount = 1
	}

	return config, nil
}
