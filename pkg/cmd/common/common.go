package common

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/maxgio92/funclat/pkg/analyzer"
	"github.com/maxgio92/funclat/pkg/cmd/options"
	"github.com/maxgio92/funclat/pkg/config"
	"github.com/maxgio92/funclat/pkg/report"
	"github.com/maxgio92/funclat/pkg/srcline"
	"github.com/maxgio92/funclat/pkg/trace"
)

// AddAnalysisFlags binds the analysis flags to c.
func AddAnalysisFlags(fs *pflag.FlagSet, c *config.Config) {
	fs.StringVarP(&c.Target, "func", "f", c.Target, "Name of the function to measure")
	fs.StringVarP(&c.Binary, "binary", "b", c.Binary, "Path of the binary holding the function, empty for kernel functions")
	fs.StringVar(&c.Ancestor, "ancestor", c.Ancestor, "Only measure the calls made within this function")
	fs.StringVar(&c.AncestorLatency, "ancestor-latency", c.AncestorLatency, `Only keep the ancestor calls lasting "min,max" ns`)
	fs.StringSliceVar(&c.SchedFuncs, "sched-funcs", c.SchedFuncs, "Kernel functions marking a thread scheduled out")
	fs.IntVarP(&c.Workers, "workers", "w", c.Workers, "Number of parallel workers")
	fs.StringVar(&c.Format, "format", c.Format, fmt.Sprintf("Trace format (%s, %s)", trace.FormatText, trace.FormatCompact))
	fs.BoolVar(&c.Offcpu, "offcpu", c.Offcpu, "Measure the time spent scheduled out")
	fs.BoolVar(&c.PerThread, "per-thread", c.PerThread, "Trace per thread; actions of a thread may then be out of order")
	fs.StringVar(&c.LatencyInterval, "latency-interval", c.LatencyInterval, `Only keep the calls lasting "min,max" ns`)
	fs.StringVar(&c.TimeInterval, "time-interval", c.TimeInterval,
		`Only keep the calls starting in "start,min,max" ns, start 0 being the trace start`)
	fs.BoolVar(&c.Timeline, "timeline", c.Timeline, "Print the latency timeline of each thread")
	fs.Uint32Var(&c.TimelineUnit, "timeline-unit", c.TimelineUnit, "Number of calls averaged in a timeline point")
	fs.BoolVar(&c.CodeBlock, "code-block", c.CodeBlock, "Measure the code blocks of the function instead of its children")
	fs.BoolVar(&c.Srcline, "srcline", c.Srcline, "Resolve the call sites of the children to source lines")
	fs.StringVar(&c.Report, "report", c.Report, "Write the JSON report to this file")
	fs.StringVar(&c.Xlsx, "xlsx", c.Xlsx, "Write the XLSX report to this file")
	fs.StringVar(&c.Metrics, "metrics", c.Metrics, "Write the Prometheus metrics textfile to this file")
	fs.BoolVar(&c.Verbose, "verbose", c.Verbose, "Report trace inconsistencies")
}

// LoadConfig loads the configuration file, if any, into c. Flags set on
// the command line override the file.
func LoadConfig(cmd *cobra.Command, o *options.CommonOptions, c *config.Config) error {
	if o.ConfigPath != "" {
		fs := cmd.Flags()
		changed := make(map[string][]string)
		fs.Visit(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				changed[f.Name] = sv.GetSlice()
				return
			}
			changed[f.Name] = []string{f.Value.String()}
		})

		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return err
		}
		*c = *loaded

		for name, values := range changed {
			f := fs.Lookup(name)
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				if err := sv.Replace(values); err != nil {
					return errors.Wrapf(err, "failed to set flag %s", name)
				}
				continue
			}
			if err := f.Value.Set(values[0]); err != nil {
				return errors.Wrapf(err, "failed to set flag %s", name)
			}
		}
		o.Logger.Debug().Str("path", o.ConfigPath).Int("overrides", len(changed)).Msg("config loaded")
	}

	return c.Validate()
}

// Analyze measures the latency of the configured function in the trace
// files, prints the summary to w and writes the requested reports.
func Analyze(o *options.CommonOptions, c *config.Config, paths []string, w io.Writer) error {
	params, err := c.Params()
	if err != nil {
		return err
	}
	start, window, err := config.ParseTimeInterval(c.TimeInterval)
	if err != nil {
		return err
	}
	format, err := trace.ParseFormat(c.Format)
	if err != nil {
		return err
	}

	logger := o.Logger.With().Str("component", "analyzer").Logger()
	opts := []analyzer.AnalyzerOption{
		analyzer.WithPaths(paths...),
		analyzer.WithFormat(format),
		analyzer.WithWorkers(c.Workers),
		analyzer.WithFilter(c.Filter()),
		analyzer.WithOutOfOrder(c.PerThread),
		analyzer.WithParams(*params),
		analyzer.WithTimeWindow(start, window),
		analyzer.WithVerbose(c.Verbose),
		analyzer.WithLogger(logger),
	}
	var lines *srcline.Cache
	if params.Srcline {
		lines = newSourceLines(c, o.Logger)
		opts = append(opts, analyzer.WithCallSites(lines))
	}

	result, err := analyzer.NewAnalyzer(opts...).Run(o.Ctx)
	if err != nil {
		return errors.Wrap(err, "failed to analyze trace")
	}

	reportOpts := []report.LatencyReportOption{
		report.WithReportTarget(c.Target),
		report.WithReportBinary(c.Binary),
		report.WithReportOffcpu(c.Offcpu),
		report.WithReportResult(result),
	}
	if lines != nil {
		reportOpts = append(reportOpts, report.WithReportSourceLines(lines))
	}
	r := report.NewLatencyReport(reportOpts...)

	if c.Timeline {
		err = r.PrintTimeline(w)
	} else {
		err = r.PrintSummary(w)
	}
	if err != nil {
		return errors.Wrap(err, "failed to print report")
	}

	return writeReports(r, c, o.Logger)
}

func newSourceLines(c *config.Config, logger log.Logger) *srcline.Cache {
	return srcline.NewCache(
		srcline.WithCacheBinary(c.Binary),
		srcline.WithCacheResolver(srcline.NewAddr2Line(
			srcline.WithAddr2LineParallel(c.Workers),
			srcline.WithAddr2LineLogger(logger),
		)),
		srcline.WithCacheLogger(logger.With().Str("component", "srcline").Logger()),
	)
}

func writeReports(r *report.LatencyReport, c *config.Config, logger log.Logger) error {
	if c.Report != "" {
		if err := writeFile(c.Report, r.WriteReport); err != nil {
			return errors.Wrap(err, "failed to write JSON report")
		}
		logger.Info().Str("path", c.Report).Msg("report written")
	}
	if c.Xlsx != "" {
		if err := writeFile(c.Xlsx, r.WriteXlsx); err != nil {
			return errors.Wrap(err, "failed to write XLSX report")
		}
		logger.Info().Str("path", c.Xlsx).Msg("report written")
	}
	if c.Metrics != "" {
		if err := r.WriteMetrics(c.Metrics); err != nil {
			return err
		}
		logger.Info().Str("path", c.Metrics).Msg("metrics written")
	}

	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
