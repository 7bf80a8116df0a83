package analyzer

import (
	log "github.com/rs/zerolog"

	"github.com/maxgio92/funclat/pkg/action"
	"github.com/maxgio92/funclat/pkg/latency"
)

type ThreadJobOptions struct {
	tid      int
	sets     []*action.ActionSet
	params   *latency.Params
	status   *latency.GlobalStatus
	ancestor bool
	callSite latency.CallSiteRecorder
	verbose  bool

	logger log.Logger
}

type ThreadJobOption func(*ThreadJob)

func WithThreadTid(tid int) ThreadJobOption {
	return func(j *ThreadJob) {
		j.tid = tid
	}
}

// WithThreadSets sets the action sets of the thread, one per parse job in
// source order. Jobs that saw nothing of the thread give a nil set.
func WithThreadSets(sets ...*action.ActionSet) ThreadJobOption {
	return func(j *ThreadJob) {
		j.sets = sets
	}
}

func WithThreadParams(params *latency.Params) ThreadJobOption {
	return func(j *ThreadJob) {
		j.params = params
	}
}

func WithThreadStatus(status *latency.GlobalStatus) ThreadJobOption {
	return func(j *ThreadJob) {
		j.status = status
	}
}

func WithThreadAncestor(ancestor bool) ThreadJobOption {
	return func(j *ThreadJob) {
		j.ancestor = ancestor
	}
}

func WithThreadCallSite(recorder latency.CallSiteRecorder) ThreadJobOption {
	return func(j *ThreadJob) {
		j.callSite = recorder
	}
}

func WithThreadVerbose(verbose bool) ThreadJobOption {
	return func(j *ThreadJob) {
		j.verbose = verbose
	}
}

func WithThreadLogger(logger log.Logger) ThreadJobOption {
	return func(j *ThreadJob) {
		j.logger = logger
	}
}

// ThreadJob rebuilds the target calls of one thread.
type ThreadJob struct {
	stat    *latency.FuncStat
	actions int
	*ThreadJobOptions
}

func NewThreadJob(opts ...ThreadJobOption) *ThreadJob {
	j := &ThreadJob{
		ThreadJobOptions: &ThreadJobOptions{
			params: latency.DefaultParams(),
			logger: log.Nop(),
		},
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.status == nil {
		j.status = latency.NewGlobalStatus()
	}

	return j
}

func (j *ThreadJob) Execute() {
	actions := Merge(j.sets)
	j.actions = len(actions)
	if len(actions) > 0 {
		j.status.ObserveSpan(actions[0].TS, actions[len(actions)-1].TS)
	}

	chain := latency.NewChain(
		latency.WithChainTid(j.tid),
		latency.WithChainParams(j.params),
		latency.WithChainStatus(j.status),
		latency.WithChainAncestor(j.ancestor),
		latency.WithChainCallSite(j.callSite),
		latency.WithChainVerbose(j.verbose),
		latency.WithChainLogger(j.logger),
	)
	j.stat = chain.Run(actions)
	j.sets = nil

	j.logger.Debug().
		Int("tid", j.tid).
		Int("actions", j.actions).
		Uint64("samples", j.stat.Latency.Target.Count).
		Msg("thread analyzed")
}

func (j *ThreadJob) Tid() int {
	return j.tid
}

// Stat returns the thread's FuncStat, nil until the job ran.
func (j *ThreadJob) Stat() *latency.FuncStat {
	return j.stat
}

// Actions returns the number of merged actions the job consumed.
func (j *ThreadJob) Actions() int {
	return j.actions
}
