package cli

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/spatialaccel/config"
	"go.viam.com/spatialaccel/logging"
)

// ConfigValidateAction reads a config file, reports every out of range value and prints the
// configuration that would be used after clamping.
func ConfigValidateAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = c.String(generalFlagConfig)
	}
	if path == "" {
		return errors.New("no config file given, pass one as an argument or with --config")
	}
	logger := newLogger(c, config.Default().LogLevel)
	cfg, err := config.Read(path, logger.Sublogger(logging.ConfigLoggerName))
	if err != nil {
		return err
	}

	effective := cfg.Accel.Sanitize(logger.Sublogger(logging.AccelLoggerName))
	buf, err := json.MarshalIndent(effective, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode effective config")
	}
	fmt.Fprintf(c.App.Writer, "effective acceleration config for %s:\n%s\n", path, buf)

	issues := multierr.Errors(cfg.Validate())
	if len(issues) == 0 {
		fmt.Fprintln(c.App.Writer, "config is valid")
		return nil
	}
	warn := color.New(color.FgYellow)
	for _, issue := range issues {
		warn.Fprintf(c.App.ErrWriter, "  %v\n", issue) //nolint:errcheck
	}
	return errors.Errorf("config %q has %d out of range values", path, len(issues))
}
