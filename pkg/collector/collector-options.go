package collector

import (
	log "github.com/rs/zerolog"
)

type CollectorOptions struct {
	perfTool string
	binary   string
	target   string
	funcIdx  string

	duration  float64
	pid       int
	tid       int
	cpu       string
	perThread bool

	offcpu    bool
	schedFunc string
	ipFilter  bool

	parallelScript bool
	workers        int
	compact        bool

	history int
	dir     string
	status  bool
	verbose bool

	onRecord func()

	logger log.Logger
}

type CollectorOption func(*Collector)

func WithPerfTool(path string) CollectorOption {
	return func(c *Collector) {
		c.perfTool = path
	}
}

// WithBinary sets the executable holding the target. Leave it empty to
// trace a kernel function.
func WithBinary(binary string) CollectorOption {
	return func(c *Collector) {
		c.binary = binary
	}
}

func WithTarget(target string) CollectorOption {
	return func(c *Collector) {
		c.target = target
	}
}

// WithFuncIdx selects which of the functions sharing the target name the
// IP filter applies to.
func WithFuncIdx(idx string) CollectorOption {
	return func(c *Collector) {
		c.funcIdx = idx
	}
}

// WithDuration sets the recording duration in seconds.
func WithDuration(seconds float64) CollectorOption {
	return func(c *Collector) {
		c.duration = seconds
	}
}

func WithPid(pid int) CollectorOption {
	return func(c *Collector) {
		c.pid = pid
	}
}

func WithTid(tid int) CollectorOption {
	return func(c *Collector) {
		c.tid = tid
	}
}

func WithCPU(cpu string) CollectorOption {
	return func(c *Collector) {
		c.cpu = cpu
	}
}

func WithPerThread(perThread bool) CollectorOption {
	return func(c *Collector) {
		c.perThread = perThread
	}
}

func WithOffcpu(offcpu bool, schedFunc string) CollectorOption {
	return func(c *Collector) {
		c.offcpu = offcpu
		c.schedFunc = schedFunc
	}
}

func WithIPFilter(ipFilter bool) CollectorOption {
	return func(c *Collector) {
		c.ipFilter = ipFilter
	}
}

// WithParallelScript makes perf script decode with workers threads, into
// one chunk file each.
func WithParallelScript(parallel bool, workers int) CollectorOption {
	return func(c *Collector) {
		c.parallelScript = parallel
		c.workers = workers
	}
}

func WithCompact(compact bool) CollectorOption {
	return func(c *Collector) {
		c.compact = compact
	}
}

// WithHistory sets the history mode: 1 records only, 2 decodes a previous
// recording.
func WithHistory(history int) CollectorOption {
	return func(c *Collector) {
		c.history = history
	}
}

// WithDir sets the directory of perf.data and of the script output.
func WithDir(dir string) CollectorOption {
	return func(c *Collector) {
		c.dir = dir
	}
}

func WithStatus(status bool) CollectorOption {
	return func(c *Collector) {
		c.status = status
	}
}

// WithRecordStarted sets a function called once perf record is running.
func WithRecordStarted(fn func()) CollectorOption {
	return func(c *Collector) {
		c.onRecord = fn
	}
}

func WithVerbose(verbose bool) CollectorOption {
	return func(c *Collector) {
		c.verbose = verbose
	}
}

func WithLogger(logger log.Logger) CollectorOption {
	return func(c *Collector) {
		c.logger = logger
	}
}
