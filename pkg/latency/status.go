package latency

import (
	"math"
	"sync/atomic"
)

// GlobalStatus gathers the counters of a run shared by all the thread
// analyses. It is written while they run and read after they all finished.
type GlobalStatus struct {
	missed          atomic.Uint64
	minTS           atomic.Uint64
	maxTS           atomic.Uint64
	ancestorCalls   atomic.Uint64
	ancestorReturns atomic.Uint64
	lost            atomic.Uint64
	inconsistencies atomic.Uint64
}

// Status is a point in time copy of a GlobalStatus.
type Status struct {
	MissedTime      uint64 `json:"missed_time_ns"`
	MinTS           uint64 `json:"min_ts"`
	MaxTS           uint64 `json:"max_ts"`
	TraceTime       uint64 `json:"trace_time_ns"`
	AncestorCalls   uint64 `json:"ancestor_calls"`
	AncestorReturns uint64 `json:"ancestor_returns"`
	LostMarkers     uint64 `json:"lost_markers"`
	Inconsistencies uint64 `json:"inconsistencies"`
}

func NewGlobalStatus() *GlobalStatus {
	g := new(GlobalStatus)
	g.minTS.Store(math.MaxUint64)

	return g
}

func (g *GlobalStatus) AddMissed(d uint64) {
	g.missed.Add(d)
}

// ObserveSpan widens the observed trace span to [minTS, maxTS].
func (g *GlobalStatus) ObserveSpan(minTS, maxTS uint64) {
	for {
		cur := g.minTS.Load()
		if minTS >= cur || g.minTS.CompareAndSwap(cur, minTS) {
			break
		}
	}
	for {
		cur := g.maxTS.Load()
		if maxTS <= cur || g.maxTS.CompareAndSwap(cur, maxTS) {
			break
		}
	}
}

func (g *GlobalStatus) AddAncestorCall() {
	g.ancestorCalls.Add(1)
}

func (g *GlobalStatus) AddAncestorReturn() {
	g.ancestorReturns.Add(1)
}

func (g *GlobalStatus) AddLost() {
	g.lost.Add(1)
}

func (g *GlobalStatus) AddInconsistency() {
	g.inconsistencies.Add(1)
}

func (g *GlobalStatus) Snapshot() Status {
	s := Status{
		MissedTime:      g.missed.Load(),
		MinTS:           g.minTS.Load(),
		MaxTS:           g.maxTS.Load(),
		AncestorCalls:   g.ancestorCalls.Load(),
		AncestorReturns: g.ancestorReturns.Load(),
		LostMarkers:     g.lost.Load(),
		Inconsistencies: g.inconsistencies.Load(),
	}
	if s.MaxTS > s.MinTS {
		s.TraceTime = s.MaxTS - s.MinTS
	} else {
		s.MinTS = s.MaxTS
	}

	return s
}
