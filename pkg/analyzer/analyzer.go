package analyzer

import (
	"context"
	"math"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"golang.org/x/exp/slices"

	"github.com/maxgio92/funclat/internal/utils"
	"github.com/maxgio92/funclat/pkg/action"
	"github.com/maxgio92/funclat/pkg/latency"
	"github.com/maxgio92/funclat/pkg/trace"
	"github.com/maxgio92/funclat/pkg/worker"
)

// Result is the outcome of an analysis.
type Result struct {
	// Stat merges the latency of every thread.
	Stat *latency.FuncStat
	// Threads holds the latency of each thread.
	Threads map[int]*latency.FuncStat
	Status  latency.Status
	// Actions is the number of decoded actions.
	Actions uint64
	// Params are the parameters samples were committed with.
	Params latency.Params
}

// Analyzer decodes trace files and reconstructs the latency of the target
// function, in two parallel stages: parse jobs decode the sources into
// per-thread action sets, then one thread job per thread merges its sets
// and rebuilds its calls.
type Analyzer struct {
	*AnalyzerOptions
}

func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		AnalyzerOptions: &AnalyzerOptions{
			format:     trace.FormatText,
			workers:    1,
			params:     *latency.DefaultParams(),
			timeWindow: latency.FullInterval,
			logger:     log.Nop(),
		},
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *Analyzer) validate() error {
	if a.filter == nil {
		return ErrFilterNil
	}
	if a.filter.Target() == "" {
		return ErrTargetEmpty
	}
	if a.workers <= 0 {
		return errors.Wrapf(worker.ErrPoolSize, "got %d workers", a.workers)
	}
	if len(a.paths) == 0 {
		return trace.ErrNoSources
	}

	return nil
}

// Run analyzes the trace files. It stops between stages when ctx is done.
func (a *Analyzer) Run(ctx context.Context) (*Result, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}

	pool := worker.NewPool(worker.WithPoolLogger(a.logger))
	if err := pool.Start(a.workers); err != nil {
		return nil, err
	}
	defer pool.Stop()

	start := time.Now()
	jobs, err := a.parse(pool)
	if err != nil {
		return nil, err
	}
	var actions uint64
	origin := uint64(math.MaxUint64)
	for _, job := range jobs {
		actions += job.Actions()
		origin = min(origin, job.StartTime())
	}
	if origin == math.MaxUint64 {
		origin = 0
	}
	a.logger.Info().
		Uint64("actions", actions).
		Int("jobs", len(jobs)).
		Dur("elapsed", time.Since(start)).
		Msg("actions parsed")

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "analysis interrupted")
	}

	params := a.params
	params.TimeOrigin = origin
	params.TimeInterval = a.timeInterval(origin)
	status := latency.NewGlobalStatus()

	start = time.Now()
	threadJobs, err := a.analyze(pool, jobs, &params, status)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if err := pool.AddJob(&worker.ReleaseJob{Target: job}, uint64(job.ID())); err != nil {
			return nil, err
		}
	}

	result := &Result{
		Stat:    latency.NewFuncStat(&params),
		Threads: make(map[int]*latency.FuncStat, len(threadJobs)),
		Actions: actions,
		Params:  params,
	}
	for _, job := range threadJobs {
		result.Stat.Merge(job.Stat())
		result.Threads[job.Tid()] = job.Stat()
	}
	pool.WaitAllIdle()
	result.Status = status.Snapshot()
	a.logger.Info().
		Int("threads", len(threadJobs)).
		Uint64("samples", result.Stat.Latency.Target.Count).
		Dur("elapsed", time.Since(start)).
		Msg("threads analyzed")

	if params.Srcline && a.callSites != nil {
		if err := a.callSites.Process(ctx); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// parse decodes the sources, one parse job each.
func (a *Analyzer) parse(pool *worker.Pool) ([]*trace.ParseJob, error) {
	sources, err := trace.Plan(a.paths, a.format, a.workers)
	if err != nil {
		return nil, err
	}

	jobs := make([]*trace.ParseJob, len(sources))
	for i, source := range sources {
		jobs[i] = trace.NewParseJob(
			trace.WithJobID(i),
			trace.WithJobSource(source),
			trace.WithJobFormat(a.format),
			trace.WithJobFilter(a.filter),
			trace.WithJobOutOfOrder(a.outOfOrder),
			trace.WithJobVerbose(a.verbose),
			trace.WithJobLogger(a.logger),
		)
		if err := pool.AddJob(jobs[i], uint64(i)); err != nil {
			return nil, err
		}
	}
	pool.WaitAllIdle()

	for _, job := range jobs {
		if err := job.Err(); err != nil {
			return nil, errors.Wrapf(err, "failed to decode %s", sources[job.ID()].Path)
		}
	}

	return jobs, nil
}

// analyze runs one thread job per thread that touched the target.
func (a *Analyzer) analyze(pool *worker.Pool, jobs []*trace.ParseJob, params *latency.Params, status *latency.GlobalStatus) ([]*ThreadJob, error) {
	threads := mapset.NewThreadUnsafeSet[int]()
	for _, job := range jobs {
		for tid, set := range job.Threads() {
			if set.Target > 0 {
				threads.Add(tid)
			}
		}
	}
	tids := threads.ToSlice()
	slices.Sort(tids)

	threadJobs := make([]*ThreadJob, 0, len(tids))
	for _, tid := range tids {
		sets := make([]*action.ActionSet, len(jobs))
		for i, job := range jobs {
			sets[i], _ = job.Thread(tid)
		}
		job := NewThreadJob(
			WithThreadTid(tid),
			WithThreadSets(sets...),
			WithThreadParams(params),
			WithThreadStatus(status),
			WithThreadAncestor(a.filter.Ancestor() != ""),
			WithThreadCallSite(a.callSites),
			WithThreadVerbose(a.verbose),
			WithThreadLogger(a.logger),
		)
		if err := pool.AddJob(job, utils.HashInt(tid)); err != nil {
			return nil, err
		}
		threadJobs = append(threadJobs, job)
	}
	pool.WaitAllIdle()

	return threadJobs, nil
}

// timeInterval returns the absolute time window.
func (a *Analyzer) timeInterval(origin uint64) latency.Interval {
	if a.timeWindow.IsFull() && a.timeStart == 0 {
		return latency.FullInterval
	}
	base := a.timeStart
	if base == 0 {
		base = origin
	}
	return a.timeWindow.Shift(base)
}
