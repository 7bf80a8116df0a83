package config

import (
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/maxgio92/funclat/internal/settings"
	"github.com/maxgio92/funclat/pkg/action"
	"github.com/maxgio92/funclat/pkg/latency"
	"github.com/maxgio92/funclat/pkg/trace"
)

// Config holds the settings of a recording and of its analysis. It can be
// loaded from a YAML file and overridden by command line flags.
type Config struct {
	// Target is the function whose latency is measured.
	Target string `yaml:"func"`
	// Binary is the executable holding the target, empty for kernel
	// functions.
	Binary   string `yaml:"binary"`
	FuncIdx  string `yaml:"func_idx"`
	Ancestor string `yaml:"ancestor"`
	// AncestorLatency keeps only the ancestor windows lasting "min,max" ns.
	AncestorLatency string   `yaml:"ancestor_latency"`
	SchedFuncs      []string `yaml:"sched_funcs"`

	PerfTool       string  `yaml:"perf"`
	Duration       float64 `yaml:"duration"`
	Pid            int     `yaml:"pid"`
	Tid            int     `yaml:"tid"`
	CPU            string  `yaml:"cpu"`
	PerThread      bool    `yaml:"per_thread"`
	IPFilter       bool    `yaml:"ip_filter"`
	ParallelScript bool    `yaml:"parallel_script"`
	History        int     `yaml:"history"`
	Dir            string  `yaml:"dir"`

	Workers int    `yaml:"workers"`
	Format  string `yaml:"format"`
	Offcpu  bool   `yaml:"offcpu"`

	// LatencyInterval keeps the calls lasting "min,max" ns.
	LatencyInterval string `yaml:"latency_interval"`
	// TimeInterval keeps the calls starting in "start,min,max": between
	// start+min and start+max ns, start 0 being the trace start.
	TimeInterval string `yaml:"time_interval"`
	Timeline     bool   `yaml:"timeline"`
	TimelineUnit uint32 `yaml:"timeline_unit"`
	CodeBlock    bool   `yaml:"code_block"`
	Srcline      bool   `yaml:"srcline"`

	Report  string `yaml:"report"`
	Xlsx    string `yaml:"xlsx"`
	Metrics string `yaml:"metrics"`
	Verbose bool   `yaml:"verbose"`
}

func Default() *Config {
	return &Config{
		SchedFuncs:   action.DefaultSchedFuncs,
		FuncIdx:      "#0",
		PerfTool:     "perf",
		Duration:     0.01,
		Pid:          -1,
		Tid:          -1,
		Dir:          ".",
		Workers:      settings.DefaultWorkers,
		Format:       trace.FormatText.String(),
		TimelineUnit: 1,
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	if err := yaml.UnmarshalStrict(b, c); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}

	return c, nil
}

func (c *Config) Validate() error {
	if c.Target == "" {
		return ErrTargetEmpty
	}
	if c.Workers <= 0 {
		return errors.Wrapf(ErrBadWorkers, "got %d", c.Workers)
	}
	if c.TimelineUnit == 0 {
		return ErrBadTimelineUnit
	}
	if c.History < 0 || c.History > 2 {
		return errors.Wrapf(ErrBadHistory, "got %d", c.History)
	}
	if _, err := trace.ParseFormat(c.Format); err != nil {
		return err
	}
	if _, err := c.Params(); err != nil {
		return err
	}
	if _, _, err := ParseTimeInterval(c.TimeInterval); err != nil {
		return err
	}

	return nil
}

// Params returns the sample commit parameters. The time interval is left
// full: it is resolved against the trace start by the analysis.
func (c *Config) Params() (*latency.Params, error) {
	p := latency.DefaultParams()

	var err error
	if p.LatencyInterval, err = ParseInterval(c.LatencyInterval); err != nil {
		return nil, errors.Wrap(err, "latency interval")
	}
	if p.AncestorInterval, err = ParseInterval(c.AncestorLatency); err != nil {
		return nil, errors.Wrap(err, "ancestor latency interval")
	}
	p.Timeline = c.Timeline
	p.TimelineUnit = c.TimelineUnit
	p.CodeBlock = c.CodeBlock
	p.Srcline = c.Srcline && c.Binary != ""

	return p, nil
}

// Filter returns the action filter of the analysis.
func (c *Config) Filter() *action.Filter {
	return action.NewFilter(
		action.WithFilterTarget(c.Target),
		action.WithFilterAncestor(c.Ancestor),
		action.WithFilterSchedFuncs(c.SchedFuncs...),
		action.WithFilterOffcpu(c.Offcpu),
		action.WithFilterCodeBlock(c.CodeBlock),
	)
}

// ParseInterval parses "min,max". An empty string is the full interval.
func ParseInterval(s string) (latency.Interval, error) {
	if strings.TrimSpace(s) == "" {
		return latency.FullInterval, nil
	}
	fields := strings.Split(s, ",")
	if len(fields) != 2 {
		return latency.Interval{}, errors.Wrapf(ErrBadInterval, "%q, want \"min,max\"", s)
	}

	return parseBounds(s, fields[0], fields[1])
}

// ParseTimeInterval parses "start,min,max". An empty string is the full
// interval from the trace start.
func ParseTimeInterval(s string) (uint64, latency.Interval, error) {
	if strings.TrimSpace(s) == "" {
		return 0, latency.FullInterval, nil
	}
	fields := strings.Split(s, ",")
	if len(fields) != 3 {
		return 0, latency.Interval{}, errors.Wrapf(ErrBadInterval, "%q, want \"start,min,max\"", s)
	}
	start, err := parseUint(fields[0])
	if err != nil {
		return 0, latency.Interval{}, errors.Wrapf(ErrBadInterval, "%q: %v", s, err)
	}
	i, err := parseBounds(s, fields[1], fields[2])
	if err != nil {
		return 0, latency.Interval{}, err
	}

	return start, i, nil
}

func parseBounds(s, lo, hi string) (latency.Interval, error) {
	var (
		i   latency.Interval
		err error
	)
	if i.Min, err = parseUint(lo); err != nil {
		return latency.Interval{}, errors.Wrapf(ErrBadInterval, "%q: %v", s, err)
	}
	if i.Max, err = parseUint(hi); err != nil {
		return latency.Interval{}, errors.Wrapf(ErrBadInterval, "%q: %v", s, err)
	}
	if i.Min > i.Max {
		return latency.Interval{}, errors.Wrapf(ErrBadInterval, "%q: min is greater than max", s)
	}

	return i, nil
}

// parseUint accepts "max" as the largest bound.
func parseUint(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "max" {
		return math.MaxUint64, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
