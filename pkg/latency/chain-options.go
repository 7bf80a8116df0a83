package latency

import (
	log "github.com/rs/zerolog"
)

// CallSiteRecorder remembers the call site address of a child key so it
// can be resolved to a source line once the analysis is over.
type CallSiteRecorder interface {
	Put(key string, addr uint64)
}

type ChainOptions struct {
	tid      int
	params   *Params
	status   *GlobalStatus
	ancestor bool
	callSite CallSiteRecorder
	verbose  bool

	logger log.Logger
}

type ChainOption func(*Chain)

func WithChainTid(tid int) ChainOption {
	return func(c *Chain) {
		c.tid = tid
	}
}

func WithChainParams(params *Params) ChainOption {
	return func(c *Chain) {
		c.params = params
	}
}

func WithChainStatus(status *GlobalStatus) ChainOption {
	return func(c *Chain) {
		c.status = status
	}
}

// WithChainAncestor restricts the analysis to the windows in which the
// ancestor function is running.
func WithChainAncestor(ancestor bool) ChainOption {
	return func(c *Chain) {
		c.ancestor = ancestor
	}
}

func WithChainCallSite(recorder CallSiteRecorder) ChainOption {
	return func(c *Chain) {
		c.callSite = recorder
	}
}

func WithChainVerbose(verbose bool) ChainOption {
	return func(c *Chain) {
		c.verbose = verbose
	}
}

func WithChainLogger(logger log.Logger) ChainOption {
	return func(c *Chain) {
		c.logger = logger
	}
}
