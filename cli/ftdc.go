package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"

	"go.viam.com/spatialaccel/ftdc"
	"go.viam.com/spatialaccel/logging"
)

type metricSeries struct {
	name   string
	values []float64
}

// collectSeries groups datum readings by metric name, keeping names with the given prefix.
func collectSeries(datums []ftdc.FlatDatum, prefix string) []metricSeries {
	byName := map[string]*metricSeries{}
	for _, d := range datums {
		for _, r := range d.Readings {
			if !strings.HasPrefix(r.MetricName, prefix) {
				continue
			}
			s, ok := byName[r.MetricName]
			if !ok {
				s = &metricSeries{name: r.MetricName}
				byName[r.MetricName] = s
			}
			s.values = append(s.values, float64(r.Value))
		}
	}
	series := make([]metricSeries, 0, len(byName))
	for _, s := range byName {
		series = append(series, *s)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].name < series[j].name })
	return series
}

// FTDCParseAction prints a per metric summary of an FTDC file written by bench --ftdc.
func FTDCParseAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("expected exactly one FTDC file argument")
	}
	_, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	path := c.Args().First()
	//nolint:gosec
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open ftdc file %q", path)
	}
	defer goutils.UncheckedErrorFunc(file.Close)

	datums, err := ftdc.ParseWithLogger(file, logger.Sublogger(logging.FTDCLoggerName))
	if err != nil {
		if len(datums) == 0 {
			return err
		}
		logger.Warnw("ftdc file is truncated, summarizing what was read", "path", path, "datums", len(datums), "error", err)
	}
	if len(datums) == 0 {
		fmt.Fprintln(c.App.Writer, "no datums")
		return nil
	}

	first, last := datums[0].ConvertedTime(), datums[len(datums)-1].ConvertedTime()
	size := "unknown size"
	if info, err := file.Stat(); err == nil {
		size = units.HumanSize(float64(info.Size()))
	}
	fmt.Fprintf(c.App.Writer, "%d datums from %s to %s (%s)\n",
		len(datums), first.Format("15:04:05.000"), last.Format("15:04:05.000"), size)

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Metric", "Samples", "Min", "Mean", "Max", "Last"})
	for _, s := range collectSeries(datums, c.String(ftdcFlagMetric)) {
		minV, _ := stats.Min(s.values)  //nolint:errcheck
		mean, _ := stats.Mean(s.values) //nolint:errcheck
		maxV, _ := stats.Max(s.values)  //nolint:errcheck
		t.AppendRow(table.Row{
			s.name,
			len(s.values),
			fmt.Sprintf("%g", minV),
			fmt.Sprintf("%g", mean),
			fmt.Sprintf("%g", maxV),
			fmt.Sprintf("%g", s.values[len(s.values)-1]),
		})
	}
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}
