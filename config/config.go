// Package config loads acceleration settings from JSON files or attribute maps and watches a
// config file for changes.
package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/spatialaccel/accel"
	"go.viam.com/spatialaccel/logging"
)

// Config is the on-disk configuration.
type Config struct {
	// ConfigFilePath is where the config was read from, if anywhere.
	ConfigFilePath string `json:"-"`

	LogLevel logging.Level `json:"log_level"`
	Accel    accel.Config  `json:"accel"`
}

// Default returns a config with every default applied.
func Default() *Config {
	return &Config{LogLevel: logging.INFO, Accel: accel.DefaultConfig()}
}

// Read reads a config from the given file. Environment variables in the file are expanded before
// decoding.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %q", filePath)
	}
	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies where, if applicable, the file
// the reader originated from. Missing fields keep their defaults. Out of range values are
// logged as warnings and left for accel.Config.Sanitize to clamp.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	cfg := Default()
	cfg.ConfigFilePath = originalPath
	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode Config from json")
	}
	cfg.warn(logger)
	return cfg, nil
}

// Validate returns every out of range value in the config.
func (c *Config) Validate() error {
	return c.Accel.Validate("accel")
}

func (c *Config) warn(logger logging.Logger) {
	if err := c.Validate(); err != nil {
		logger.Warnw("config has out of range values that will be clamped", "path", c.ConfigFilePath, "error", err)
	}
}

// FromAttributes decodes an attribute map, as found in a larger JSON document, into an accel
// config over the defaults. Unknown keys are reported as warnings.
func FromAttributes(attributes map[string]interface{}, logger logging.Logger) (accel.Config, error) {
	cfg := accel.DefaultConfig()
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     &cfg,
		Metadata:   &md,
		DecodeHook: mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return cfg, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return accel.DefaultConfig(), errors.Wrap(err, "failed to decode acceleration attributes")
	}
	if len(md.Unused) > 0 {
		logger.Warnw("ignoring unknown acceleration attributes", "keys", md.Unused)
	}
	if err := cfg.Validate("attributes"); err != nil {
		logger.Warnw("attributes have out of range values that will be clamped", "error", err)
	}
	return cfg, nil
}
