package record

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/maxgio92/funclat/internal/settings"
	"github.com/maxgio92/funclat/pkg/cmd/common"
	"github.com/maxgio92/funclat/pkg/cmd/options"
	"github.com/maxgio92/funclat/pkg/collector"
	"github.com/maxgio92/funclat/pkg/config"
	"github.com/maxgio92/funclat/pkg/healthcheck"
	"github.com/maxgio92/funclat/pkg/trace"
)

const CmdName = "record"

type Options struct {
	config      *config.Config
	status      bool
	readySocket string

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{
		config:        config.Default(),
		CommonOptions: opts,
	}
	cmd := &cobra.Command{
		Use:   CmdName,
		Short: "Record a branch trace with Intel PT and measure the latency of a function",
		Long: fmt.Sprintf(`
%s records the branches of a process, thread or cpu with perf and Intel PT for a while,
decodes them with perf script and measures the latency of a function.
With --history 1 the trace is only recorded, with --history 2 the %s of a previous run is decoded again.
`, CmdName, settings.PerfDataFile),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}

	c := o.config
	fs := cmd.Flags()
	fs.StringVar(&c.PerfTool, "perf", c.PerfTool, "Path of the perf tool")
	fs.StringVar(&c.FuncIdx, "func-idx", c.FuncIdx, "Index of the function among the symbols of the same name, for IP filtering")
	fs.Float64VarP(&c.Duration, "duration", "d", c.Duration, "Recording duration in seconds")
	fs.IntVarP(&c.Pid, "pid", "p", c.Pid, "Trace the process with this PID")
	fs.IntVarP(&c.Tid, "tid", "t", c.Tid, "Trace the thread with this TID")
	fs.StringVarP(&c.CPU, "cpu", "C", c.CPU, "Trace these cpus")
	fs.BoolVar(&c.IPFilter, "ip-filter", c.IPFilter, "Only trace the function with an IP filter")
	fs.BoolVar(&c.ParallelScript, "parallel-script", c.ParallelScript, "Decode the trace in parallel chunks")
	fs.IntVar(&c.History, "history", c.History, "1 to only record, 2 to decode the trace of a previous run")
	fs.StringVar(&c.Dir, "dir", c.Dir, "Working directory of the trace files")
	fs.BoolVar(&o.status, "status", true, "Periodically print the status of the recording")
	fs.StringVar(&o.readySocket, "ready-socket", "",
		fmt.Sprintf("Unix socket telling when the recording started, for %s wait (e.g. %s)", settings.CmdName, settings.ReadySocket))
	common.AddAnalysisFlags(fs, c)

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, _ []string) error {
	if err := o.SetLogLevel(); err != nil {
		return err
	}
	c := o.config
	if err := common.LoadConfig(cmd, o.CommonOptions, c); err != nil {
		return err
	}
	if c.History < 2 {
		if err := collector.CheckSystem(); err != nil {
			return err
		}
	}
	format, err := trace.ParseFormat(c.Format)
	if err != nil {
		return err
	}

	var started func()
	if o.readySocket != "" {
		server := healthcheck.NewReadinessServer(o.readySocket, o.Logger)
		if err := server.Listen(o.Ctx); err != nil {
			return err
		}
		defer server.Shutdown()
		started = server.NotifyReadiness
	}

	var schedFunc string
	if len(c.SchedFuncs) > 0 {
		schedFunc = c.SchedFuncs[0]
	}
	coll := collector.NewCollector(
		collector.WithPerfTool(c.PerfTool),
		collector.WithBinary(c.Binary),
		collector.WithTarget(c.Target),
		collector.WithFuncIdx(c.FuncIdx),
		collector.WithDuration(c.Duration),
		collector.WithPid(c.Pid),
		collector.WithTid(c.Tid),
		collector.WithCPU(c.CPU),
		collector.WithPerThread(c.PerThread),
		collector.WithOffcpu(c.Offcpu, schedFunc),
		collector.WithIPFilter(c.IPFilter),
		collector.WithParallelScript(c.ParallelScript, c.Workers),
		collector.WithCompact(format == trace.FormatCompact),
		collector.WithHistory(c.History),
		collector.WithDir(c.Dir),
		collector.WithStatus(o.status),
		collector.WithRecordStarted(started),
		collector.WithVerbose(c.Verbose),
		collector.WithLogger(o.Logger.With().Str("component", "collector").Logger()),
	)
	c.Offcpu = coll.Offcpu()

	files, err := coll.Run(o.Ctx)
	if err != nil {
		return errors.Wrap(err, "failed to collect trace")
	}
	if len(files) == 0 {
		return nil
	}

	return common.Analyze(o.CommonOptions, c, files, cmd.OutOrStdout())
}
