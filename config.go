// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wrap

import (
	"io/ioutil"
	"os"

	toml "github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// ConfigName is the optional configuration file in the wrap home.
const ConfigName = "config.toml"

// DefaultRegistry is the upstream package site.
const DefaultRegistry = "https://package.elm-lang.org"

// Config is the tool's file-based configuration. Every field has a
// working default; CLI flags override whatever the file says.
type Config struct {
	// Registry is the package site base URL.
	Registry string `toml:"registry"`

	// Offline disables all network access; commands that need it fail
	// fast.
	Offline bool `toml:"offline"`

	// TimeoutSeconds bounds a single HTTP request. BulkTimeoutSeconds
	// applies during mirror and download-all runs.
	TimeoutSeconds     int `toml:"timeout-seconds"`
	BulkTimeoutSeconds int `toml:"bulk-timeout-seconds"`

	Mirror MirrorConfig `toml:"mirror"`
}

// MirrorConfig tunes bulk-operation pacing.
type MirrorConfig struct {
	MinDelaySeconds int `toml:"min-delay-seconds"`
	MaxDelaySeconds int `toml:"max-delay-seconds"`
	MaxRetries      int `toml:"max-retries"`
}

func defaultConfig() *Config {
	return &Config{
		Registry:           DefaultRegistry,
		TimeoutSeconds:     10,
		BulkTimeoutSeconds: 60,
		Mirror: MirrorConfig{
			MinDelaySeconds: 1,
			MaxDelaySeconds: 3,
			MaxRetries:      3,
		},
	}
}

// loadConfig reads the config file, filling defaults for anything unset.
// A missing file yields the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}

	if cfg.Registry == "" {
		cfg.Registry = DefaultRegistry
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	if cfg.BulkTimeoutSeconds <= 0 {
		cfg.BulkTimeoutSeconds = 60
	}
	return cfg, nil
}
