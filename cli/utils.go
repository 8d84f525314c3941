package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/spatialaccel/config"
	"go.viam.com/spatialaccel/logging"
	"go.viam.com/spatialaccel/spatialmath"
)

const (
	logFileAppenderKey = "logFileAppender"
	logFileCloserKey   = "logFileCloser"
)

func openLogFile(c *cli.Context) error {
	path := c.Path(generalFlagLogFile)
	if path == "" {
		return nil
	}
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	appender, closer := logging.NewFileAppender(path)
	c.App.Metadata[logFileAppenderKey] = appender
	c.App.Metadata[logFileCloserKey] = closer
	return nil
}

func closeLogFile(c *cli.Context) error {
	closer, ok := c.App.Metadata[logFileCloserKey].(io.Closer)
	if !ok {
		return nil
	}
	delete(c.App.Metadata, logFileAppenderKey)
	delete(c.App.Metadata, logFileCloserKey)
	return closer.Close()
}

// newLogger returns a logger writing to the app's error writer. --debug wins over the config's
// log level.
func newLogger(c *cli.Context, level logging.Level) logging.Logger {
	logger := logging.NewBlankLogger("bvhtool")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if appender, ok := c.App.Metadata[logFileAppenderKey].(logging.Appender); ok {
		logger.AddAppender(appender)
	}
	if c.Bool(generalFlagDebug) {
		level = logging.DEBUG
	}
	logger.SetLevel(level)
	return logger
}

// loadConfig reads --config if set and returns the defaults otherwise, along with a logger at
// the configured level.
func loadConfig(c *cli.Context) (*config.Config, logging.Logger, error) {
	path := c.String(generalFlagConfig)
	if path == "" {
		cfg := config.Default()
		return cfg, newLogger(c, cfg.LogLevel), nil
	}
	// parse once with a bootstrap logger so the config's own level applies afterwards
	bootstrap := newLogger(c, logging.INFO)
	cfg, err := config.Read(path, bootstrap)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(c, cfg.LogLevel), nil
}

func cullMode(cfg *config.Config) spatialmath.CullMode {
	if cfg.Accel.BackfaceCulling {
		return spatialmath.CullBack
	}
	return spatialmath.CullNone
}
