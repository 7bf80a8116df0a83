package collector

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aquasecurity/libbpfgo/helpers"
	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/maxgio92/funclat/internal/output"
	"github.com/maxgio92/funclat/internal/settings"
	"github.com/maxgio92/funclat/pkg/static"
)

const (
	intelPTEvent  = "intel_pt/cyc=1/"
	scriptFields  = "-F-event,-period,+tid,+cpu,+time,+addr,-comm,+flags,-dso"
	ringBufSize   = "-m,32M"
	statusRefresh = time.Second
)

// IntelPTPath is the perf event source of Intel PT.
var IntelPTPath = "/sys/bus/event_source/devices/intel_pt"

// CheckSystem reports whether the processor supports Intel PT.
func CheckSystem() error {
	if _, err := os.Stat(IntelPTPath); err != nil {
		return errors.Wrap(ErrIntelPT, err.Error())
	}
	return nil
}

// Collector records a branch trace with perf and decodes it into perf
// script output files.
type Collector struct {
	*CollectorOptions
}

func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		CollectorOptions: &CollectorOptions{
			perfTool:  "perf",
			funcIdx:   "#0",
			pid:       -1,
			tid:       -1,
			schedFunc: "__schedule",
			workers:   1,
			dir:       ".",
			logger:    log.Nop(),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.offcpu && !c.ipFilter {
		c.logger.Warn().Msg("offcpu time is not supported when ip filtering is off")
		c.offcpu = false
	}

	return c
}

// Offcpu reports whether scheduler switches are recorded.
func (c *Collector) Offcpu() bool {
	return c.offcpu
}

func (c *Collector) validate() error {
	if c.target == "" {
		return ErrTargetEmpty
	}
	if c.history >= 2 {
		return nil
	}
	if c.duration <= 0 {
		return ErrDuration
	}
	if c.cpu == "" && c.pid == -1 && c.tid == -1 {
		return ErrNoScope
	}

	return nil
}

// Run records and decodes the trace, and returns the decoded files. It
// returns no file when recording only.
func (c *Collector) Run(ctx context.Context) ([]string, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if err := c.Record(ctx); err != nil {
		return nil, err
	}
	if c.history == 1 {
		c.logger.Info().
			Str("file", c.path(settings.PerfDataFile)).
			Msg("trace done, copy perf.data and the binary (with the same absolute path) to analyze it elsewhere")
		return nil, nil
	}
	if err := c.Script(ctx); err != nil {
		return nil, err
	}

	return ScriptFiles(c.dir)
}

// RecordArgs returns the arguments of perf record.
func (c *Collector) RecordArgs() []string {
	event := intelPTEvent
	if !c.offcpu {
		event += "u"
	}
	args := []string{"record", "-e", event, "-B"}
	if c.ipFilter {
		args = append(args, "--filter", c.ipFilterExpr())
	}

	switch {
	case c.cpu != "":
		args = append(args, "-C", c.cpu)
	case c.tid != -1:
		args = append(args, "-t", strconv.Itoa(c.tid))
	default:
		args = append(args, "-p", strconv.Itoa(c.pid))
	}
	if c.perThread {
		args = append(args, "--per-thread", "--timestamp")
	}

	return append(args, ringBufSize, "--no-bpf-event", "--",
		"sleep", strconv.FormatFloat(c.duration, 'f', -1, 64))
}

// ipFilterExpr traces the target only, and the scheduler too when
// recording off-cpu time.
func (c *Collector) ipFilterExpr() string {
	var sb strings.Builder
	if c.offcpu {
		fmt.Fprintf(&sb, "filter %s , ", c.schedFunc)
	}
	sb.WriteString("filter ")
	sb.WriteString(c.target)
	if c.binary != "" {
		if c.funcIdx != "" {
			sb.WriteString(" " + c.funcIdx)
		}
		sb.WriteString(" @ " + c.binary)
	}
	return sb.String()
}

// ScriptArgs returns the arguments of perf script.
func (c *Collector) ScriptArgs() []string {
	itrace := "cr"
	if !c.ipFilter {
		itrace += "e"
	}
	args := []string{"script", "--ns", "--itrace=" + itrace}
	if c.compact {
		args = append(args, "--compact_format=1")
	}
	args = append(args, scriptFields)
	if !c.parallelScript {
		return args
	}

	args = append(args, fmt.Sprintf("--parallel=%d", c.workers))
	if !c.ipFilter && c.binary != "" {
		args = append(args, fmt.Sprintf("--func_filter=%s", c.target), fmt.Sprintf("--opt_dso_name=%s", c.binary))
	}
	if c.tid != -1 {
		args = append(args, fmt.Sprintf("--thread_filter=%d", c.tid))
	}
	return args
}

// Record runs perf record, unless decoding a previous recording.
func (c *Collector) Record(ctx context.Context) error {
	if c.history >= 2 {
		return nil
	}
	if c.ipFilter && c.binary != "" {
		offset, err := helpers.SymbolToOffset(c.binary, c.target)
		if err != nil {
			return errors.Wrapf(ErrSymbolNotFound, "%s in %s: %v", c.target, c.binary, err)
		}
		sym, err := static.FuncSymbol(c.binary, c.target, c.funcIdx)
		if err != nil {
			return errors.Wrapf(ErrSymbolNotFound, "%v", err)
		}
		c.logger.Debug().
			Str("symbol", c.target).
			Str("index", c.funcIdx).
			Uint32("offset", offset).
			Uint64("address", sym.Value).
			Msg("target symbol found")
	}
	if err := os.Remove(c.path(settings.PerfDataFile)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to clear the previous recording")
	}

	scope := c.cpu
	if scope == "" {
		scope = strconv.Itoa(max(c.pid, c.tid))
	}
	c.logger.Info().Str("scope", scope).Float64("seconds", c.duration).Msg("tracing")

	cmd := c.command(ctx, c.RecordArgs())
	expected := time.Duration(c.duration * float64(time.Second))
	return c.exec(ctx, "perf record", cmd, expected, c.onRecord)
}

// Script runs perf script. A sequential script writes one output file, a
// parallel one a chunk file per worker.
func (c *Collector) Script(ctx context.Context) error {
	if err := clearScriptFiles(c.dir); err != nil {
		return err
	}

	cmd := c.command(ctx, c.ScriptArgs())
	if !c.parallelScript {
		f, err := os.Create(c.path(settings.ScriptFile))
		if err != nil {
			return errors.Wrap(err, "failed to create script output")
		}
		defer f.Close()
		cmd.Stdout = f
	}

	return c.exec(ctx, "perf script", cmd, 0, nil)
}

func (c *Collector) command(ctx context.Context, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.perfTool, args...)
	cmd.Dir = c.dir
	if c.verbose {
		cmd.Stderr = os.Stderr
		c.logger.Debug().Str("command", cmd.String()).Msg("running")
	}
	return cmd
}

// exec runs cmd, printing its progress meanwhile when status is on.
// started is called once the command is running.
func (c *Collector) exec(ctx context.Context, stage string, cmd *exec.Cmd, expected time.Duration, started func()) error {
	g, ctx := errgroup.WithContext(ctx)
	statusCtx, stop := context.WithCancel(ctx)
	start := time.Now()

	g.Go(func() error {
		defer stop()
		if err := cmd.Start(); err != nil {
			return errors.Wrapf(err, "%s failed", stage)
		}
		if started != nil {
			started()
		}
		return errors.Wrapf(cmd.Wait(), "%s failed", stage)
	})
	if c.status {
		g.Go(func() error {
			output.StatusBar(statusCtx, statusRefresh, func() {
				output.PrintRight(output.PrettyStageStatus(stage, time.Since(start), expected))
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.logger.Info().Str("stage", stage).Dur("elapsed", time.Since(start)).Msg("stage completed")
	return nil
}

func (c *Collector) path(name string) string {
	return filepath.Join(c.dir, name)
}

func clearScriptFiles(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, settings.ScriptFile+"*"))
	if err != nil {
		return errors.Wrap(err, "failed to list script output")
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			return errors.Wrap(err, "failed to clear script output")
		}
	}
	return nil
}

// ScriptFiles returns the perf script output in dir: the chunk files of a
// parallel script in order, or else the single output file.
func ScriptFiles(dir string) ([]string, error) {
	chunks, err := filepath.Glob(filepath.Join(dir, settings.ScriptFile+"__*"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list script output")
	}
	if len(chunks) > 0 {
		slices.Sort(chunks)
		return chunks, nil
	}

	path := filepath.Join(dir, settings.ScriptFile)
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(ErrNoScriptOutput, "in %s", dir)
	}
	return []string{path}, nil
}
