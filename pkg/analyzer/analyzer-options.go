package analyzer

import (
	"context"

	log "github.com/rs/zerolog"

	"github.com/maxgio92/funclat/pkg/action"
	"github.com/maxgio92/funclat/pkg/latency"
	"github.com/maxgio92/funclat/pkg/trace"
)

// CallSiteResolver records call sites during the analysis and resolves
// them to source lines once it is over.
type CallSiteResolver interface {
	latency.CallSiteRecorder
	Process(ctx context.Context) error
}

type AnalyzerOptions struct {
	paths      []string
	format     trace.Format
	workers    int
	filter     *action.Filter
	outOfOrder bool
	params     latency.Params

	// timeStart is the absolute start of the time window, 0 to start at
	// the earliest decoded timestamp.
	timeStart  uint64
	timeWindow latency.Interval

	callSites CallSiteResolver
	verbose   bool

	logger log.Logger
}

type AnalyzerOption func(*Analyzer)

func WithPaths(paths ...string) AnalyzerOption {
	return func(a *Analyzer) {
		a.paths = paths
	}
}

func WithFormat(format trace.Format) AnalyzerOption {
	return func(a *Analyzer) {
		a.format = format
	}
}

func WithWorkers(n int) AnalyzerOption {
	return func(a *Analyzer) {
		a.workers = n
	}
}

func WithFilter(filter *action.Filter) AnalyzerOption {
	return func(a *Analyzer) {
		a.filter = filter
	}
}

func WithOutOfOrder(outOfOrder bool) AnalyzerOption {
	return func(a *Analyzer) {
		a.outOfOrder = outOfOrder
	}
}

// WithParams sets the sample commit parameters. TimeInterval and
// TimeOrigin are computed by the run, see WithTimeWindow.
func WithParams(params latency.Params) AnalyzerOption {
	return func(a *Analyzer) {
		a.params = params
	}
}

// WithTimeWindow keeps the calls starting in window, relative to start,
// or to the earliest decoded timestamp when start is 0.
func WithTimeWindow(start uint64, window latency.Interval) AnalyzerOption {
	return func(a *Analyzer) {
		a.timeStart = start
		a.timeWindow = window
	}
}

func WithCallSites(resolver CallSiteResolver) AnalyzerOption {
	return func(a *Analyzer) {
		a.callSites = resolver
	}
}

func WithVerbose(verbose bool) AnalyzerOption {
	return func(a *Analyzer) {
		a.verbose = verbose
	}
}

func WithLogger(logger log.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		a.logger = logger
	}
}
