package latency

import (
	"golang.org/x/exp/slices"

	"github.com/maxgio92/funclat/pkg/action"
	"github.com/maxgio92/funclat/pkg/stat"
)

const (
	// UnknownCaller groups incomplete or unattributable chains.
	UnknownCaller = "unknown"
	// SelfKey is the child key of the time spent in the target itself.
	SelfKey = "*self"
)

// Latency is the distribution of the target latency and of the time the
// thread spent scheduled out during it.
type Latency struct {
	Target stat.Distribution `json:"target"`
	Sched  stat.Distribution `json:"sched"`
}

func (l *Latency) Merge(o *Latency) {
	l.Target.Merge(&o.Target)
	l.Sched.Merge(&o.Sched)
}

// LatencyChild aggregates the latency of the functions called by the
// target, and the time they spent scheduled out.
type LatencyChild struct {
	Target *stat.Bucket `json:"target"`
	Sched  *stat.Bucket `json:"sched"`
}

func NewLatencyChild() LatencyChild {
	return LatencyChild{
		Target: stat.NewBucket("cnt"),
		Sched:  stat.NewBucket("sched_time"),
	}
}

func (c *LatencyChild) AddTarget(name string, lat uint64) {
	c.Target.AddVal(name, lat)
}

// AddSched records scheduled out time, ignoring zero values.
func (c *LatencyChild) AddSched(name string, lat uint64) {
	if lat == 0 {
		return
	}
	c.Sched.AddVal(name, lat)
}

func (c *LatencyChild) Merge(o *LatencyChild) {
	c.Target.AddBucket(o.Target)
	c.Sched.AddBucket(o.Sched)
}

func (c *LatencyChild) Clear() {
	c.Target.Clear()
	c.Sched.Clear()
}

func (c *LatencyChild) Empty() bool {
	return c.Target.Empty() && c.Sched.Empty()
}

// LatencyCaller is the share of a FuncStat for one caller of the target.
type LatencyCaller struct {
	Latency  Latency      `json:"latency"`
	Children LatencyChild `json:"children"`
}

func NewLatencyCaller() *LatencyCaller {
	return &LatencyCaller{Children: NewLatencyChild()}
}

func (c *LatencyCaller) Merge(o *LatencyCaller) {
	c.Latency.Merge(&o.Latency)
	c.Children.Merge(&o.Children)
}

// TimelinePoint is the average latency of a group of samples, in
// microseconds, at the time of the last call since the time origin.
type TimelinePoint struct {
	X float64 `json:"x_us"`
	Y float64 `json:"y_us"`
}

// FuncStat holds the latency of the target for one thread, or for all of
// them once merged. The global latency and children always equal the sum
// over the callers.
type FuncStat struct {
	Latency    Latency                   `json:"latency"`
	Children   LatencyChild              `json:"children"`
	Callers    map[string]*LatencyCaller `json:"callers"`
	SchedCount uint64                    `json:"sched_count"`
	Timeline   []TimelinePoint           `json:"timeline,omitempty"`

	timelineLat  uint64
	timelineUnit uint32
	params       *Params
}

func NewFuncStat(params *Params) *FuncStat {
	if params == nil {
		params = DefaultParams()
	}
	return &FuncStat{
		Children: NewLatencyChild(),
		Callers:  make(map[string]*LatencyCaller),
		params:   params,
	}
}

// Caller returns the share of caller, creating it on first use.
func (s *FuncStat) Caller(name string) *LatencyCaller {
	c, ok := s.Callers[name]
	if !ok {
		c = NewLatencyCaller()
		s.Callers[name] = c
	}
	return c
}

// CallerNames returns the callers ordered by decreasing sample count.
func (s *FuncStat) CallerNames() []string {
	names := make([]string, 0, len(s.Callers))
	for name := range s.Callers {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		ca, cb := s.Callers[a].Latency.Target.Count, s.Callers[b].Latency.Target.Count
		switch {
		case ca > cb:
			return -1
		case ca < cb:
			return 1
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	})
	return names
}

// Add commits one complete call of the target, entered by call and left by
// ret, with sched nanoseconds spent scheduled out and the latency of the
// children it called.
func (s *FuncStat) Add(call, ret *action.Action, sched uint64, child *LatencyChild) {
	var lat uint64
	if ret.TS > call.TS {
		lat = ret.TS - call.TS
	}
	if !s.params.LatencyInterval.Contains(lat) || !s.params.TimeInterval.Contains(call.TS) {
		return
	}

	if s.params.Timeline && call.TS >= s.params.TimeOrigin {
		s.timelineLat += lat
		s.timelineUnit++
		if s.timelineUnit >= max(s.params.TimelineUnit, 1) {
			s.Timeline = append(s.Timeline, TimelinePoint{
				X: float64(call.TS-s.params.TimeOrigin) / 1000,
				Y: float64(s.timelineLat) / float64(s.timelineUnit) / 1000,
			})
			s.timelineLat, s.timelineUnit = 0, 0
		}
		return
	}

	caller := UnknownCaller
	if ret.To != nil {
		caller = ret.To.Name
	}
	s.AddLatency(lat, sched, caller)

	if !s.params.CodeBlock {
		var self uint64
		if lat > child.Target.Total {
			self = lat - child.Target.Total
		}
		child.AddTarget(SelfKey, self)
	}
	s.AddChildLatency(child, caller)
}

// AddLatency records a target latency globally and for caller. Scheduled
// out time is recorded only when there is some.
func (s *FuncStat) AddLatency(lat, sched uint64, caller string) {
	c := s.Caller(caller)
	s.Latency.Target.Add(lat)
	c.Latency.Target.Add(lat)
	if sched > 0 {
		s.Latency.Sched.Add(sched)
		c.Latency.Sched.Add(sched)
	}
}

// AddChildLatency merges child globally and for caller.
func (s *FuncStat) AddChildLatency(child *LatencyChild, caller string) {
	s.Children.Merge(child)
	s.Caller(caller).Children.Merge(child)
}

// AddUnknownLatency merges the children of an incomplete chain.
func (s *FuncStat) AddUnknownLatency(child *LatencyChild) {
	s.AddChildLatency(child, UnknownCaller)
}

// Merge adds o into s. Timeline points are concatenated.
func (s *FuncStat) Merge(o *FuncStat) {
	s.Latency.Merge(&o.Latency)
	s.Children.Merge(&o.Children)
	for name, c := range o.Callers {
		s.Caller(name).Merge(c)
	}
	s.SchedCount += o.SchedCount
	s.Timeline = append(s.Timeline, o.Timeline...)
}
