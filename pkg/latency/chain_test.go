package latency_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/funclat/pkg/action"
	"github.com/maxgio92/funclat/pkg/latency"
	"github.com/maxgio92/funclat/pkg/symtable"
)

const (
	mainBase   = 0x1000
	targetBase = 0x2000
	childBase  = 0x3000
	ancBase    = 0x5000
	schedBase  = 0x9000
)

// fixture builds the action stream of one thread the way a parse job
// would: actions are tagged by the filter and dropped when irrelevant.
type fixture struct {
	tab     *symtable.Table
	filter  *action.Filter
	actions []action.Action
}

func newFixture(opts ...action.FilterOption) *fixture {
	opts = append([]action.FilterOption{action.WithFilterTarget("target")}, opts...)
	return &fixture{
		tab:    symtable.NewTable(),
		filter: action.NewFilter(opts...),
	}
}

func (f *fixture) sym(name string, base uint64, off uint32) *symtable.Symbol {
	return f.tab.Intern(base+uint64(off), off, name)
}

func (f *fixture) main(off uint32) *symtable.Symbol {
	return f.sym("main", mainBase, off)
}

func (f *fixture) target(off uint32) *symtable.Symbol {
	return f.sym("target", targetBase, off)
}

func (f *fixture) emit(kind action.Kind, from, to *symtable.Symbol, ts uint64) {
	a := action.Action{Kind: kind, From: from, To: to, TS: ts, Tid: 1}
	if f.filter.Tag(&a) {
		f.actions = append(f.actions, a)
	}
}

func (f *fixture) lose(ts uint64) {
	f.actions = append(f.actions, action.NewError(1, ts))
}

func (f *fixture) enter(ts uint64) {
	f.emit(action.KindCall, f.main(0x10), f.target(0), ts)
}

func (f *fixture) leave(ts uint64) {
	f.emit(action.KindReturn, f.target(0x40), f.main(0x15), ts)
}

// child emits a call from the target to a child and its return.
func (f *fixture) child(name string, idx int, start, dur uint64) {
	base := uint64(childBase + idx*0x100)
	f.emit(action.KindCall, f.target(0x10), f.sym(name, base, 0), start)
	f.emit(action.KindReturn, f.sym(name, base, 0x20), f.target(0x15), start+dur)
}

func (f *fixture) run(opts ...latency.ChainOption) (*latency.FuncStat, latency.Status) {
	status := latency.NewGlobalStatus()
	opts = append([]latency.ChainOption{latency.WithChainStatus(status)}, opts...)
	stat := latency.NewChain(opts...).Run(f.actions)

	return stat, status.Snapshot()
}

func requireElement(t *testing.T, child latency.LatencyChild, key string, count, total uint64) {
	t.Helper()
	e, ok := child.Target.Get(key)
	require.True(t, ok, "missing child %q", key)
	require.Equal(t, count, e.Count, "count of %q", key)
	require.Equal(t, total, e.Total, "total of %q", key)
}

func TestChainSingleChild(t *testing.T) {
	f := newFixture()
	f.enter(1000)
	f.child("child", 0, 1020, 50)
	f.leave(1120)

	stat, _ := f.run()
	require.Equal(t, uint64(1), stat.Latency.Target.Count)
	require.Equal(t, uint64(120), stat.Latency.Target.Avg())
	require.Equal(t, 2, stat.Children.Target.Len())
	requireElement(t, stat.Children, "child", 1, 50)
	requireElement(t, stat.Children, latency.SelfKey, 1, 70)

	caller, ok := stat.Callers["main"]
	require.True(t, ok)
	require.Equal(t, uint64(120), caller.Latency.Target.Avg())
	requireElement(t, caller.Children, "child", 1, 50)
}

func TestChainChildren(t *testing.T) {
	const k = 5
	f := newFixture()
	f.enter(0)
	ts, sum := uint64(10), uint64(0)
	for i := 0; i < k; i++ {
		dur := uint64(10 * (i + 1))
		f.child(fmt.Sprintf("child%d", i), i, ts, dur)
		ts += dur + 5
		sum += dur
	}
	f.leave(ts + 10)

	stat, status := f.run()
	require.Equal(t, uint64(1), stat.Latency.Target.Count)
	require.Equal(t, k+1, stat.Children.Target.Len())
	for i := 0; i < k; i++ {
		requireElement(t, stat.Children, fmt.Sprintf("child%d", i), 1, uint64(10*(i+1)))
	}
	requireElement(t, stat.Children, latency.SelfKey, 1, ts+10-sum)
	require.Zero(t, status.Inconsistencies)
}

func TestChainEmptyStackReturn(t *testing.T) {
	f := newFixture()
	f.leave(100)

	var stat *latency.FuncStat
	var status latency.Status
	require.NotPanics(t, func() { stat, status = f.run() })
	require.Zero(t, stat.Latency.Target.Count)
	require.Empty(t, stat.Callers)
	require.Equal(t, uint64(1), status.Inconsistencies)
}

func TestChainErrorRecovery(t *testing.T) {
	f := newFixture()
	f.enter(100)
	f.child("a", 0, 110, 20)
	f.emit(action.KindCall, f.target(0x10), f.sym("b", childBase+0x100, 0), 140)
	f.lose(150)

	f.enter(1000)
	f.child("c", 2, 1010, 30)
	f.leave(1100)

	stat, status := f.run()
	require.Equal(t, uint64(1), stat.Latency.Target.Count)

	unknown, ok := stat.Callers[latency.UnknownCaller]
	require.True(t, ok)
	requireElement(t, unknown.Children, "a", 1, 20)
	require.Zero(t, unknown.Latency.Target.Count)

	main := stat.Callers["main"]
	requireElement(t, main.Children, "c", 1, 30)
	requireElement(t, main.Children, latency.SelfKey, 1, 70)
	_, ok = main.Children.Target.Get("a")
	require.False(t, ok, "partial chains must not leak into the next one")
	_, ok = main.Children.Target.Get("b")
	require.False(t, ok)

	require.Equal(t, uint64(900), status.MissedTime)
	require.Equal(t, uint64(1), status.LostMarkers)
}

func TestChainOffcpu(t *testing.T) {
	f := newFixture(action.WithFilterOffcpu(true))
	child := func(off uint32) *symtable.Symbol { return f.sym("child", childBase, off) }

	f.enter(0)
	f.emit(action.KindCall, f.target(0x10), child(0), 10)
	f.emit(action.KindCall, child(0x8), f.sym("__schedule", schedBase, 0), 20)
	f.emit(action.KindReturn, f.sym("__schedule", schedBase, 0x40), child(0xc), 50)
	f.emit(action.KindReturn, child(0x20), f.target(0x15), 60)
	f.leave(100)

	stat, _ := f.run()
	require.Equal(t, uint64(1), stat.SchedCount)
	require.Equal(t, uint64(1), stat.Latency.Sched.Count)
	require.Equal(t, uint64(30), stat.Latency.Sched.Total)
	requireElement(t, stat.Children, "child", 1, 50)
	sched, ok := stat.Children.Sched.Get("child")
	require.True(t, ok)
	require.Equal(t, uint64(30), sched.Total)
}

func TestChainSchedBetweenCalls(t *testing.T) {
	f := newFixture(action.WithFilterOffcpu(true))
	f.enter(0)
	f.leave(10)
	f.emit(action.KindCall, f.main(0x30), f.sym("__schedule", schedBase, 0), 20)
	f.emit(action.KindReturn, f.sym("__schedule", schedBase, 0x40), f.main(0x35), 50)
	f.enter(60)
	f.leave(70)

	stat, status := f.run()
	require.Equal(t, uint64(2), stat.Latency.Target.Count)
	require.Equal(t, uint64(1), stat.SchedCount)
	require.Zero(t, stat.Latency.Sched.Count)
	require.Zero(t, status.Inconsistencies)
}

func TestChainStraySchedEnd(t *testing.T) {
	f := newFixture(action.WithFilterOffcpu(true))
	f.enter(0)
	f.emit(action.KindReturn, f.sym("__schedule", schedBase, 0x40), f.target(0x20), 10)
	f.leave(100)

	stat, status := f.run()
	require.Equal(t, uint64(1), stat.Latency.Target.Count)
	require.Zero(t, stat.SchedCount)
	require.Equal(t, uint64(1), status.Inconsistencies)
}

func TestChainCodeBlock(t *testing.T) {
	f := newFixture(action.WithFilterCodeBlock(true))
	f.enter(0)
	f.emit(action.KindJcc, f.target(0x8), f.target(0x20), 10)
	f.emit(action.KindCall, f.target(0x30), f.sym("child", childBase, 0), 15)
	f.emit(action.KindReturn, f.sym("child", childBase, 0x20), f.target(0x35), 45)
	f.leave(50)

	params := latency.DefaultParams()
	params.CodeBlock = true
	stat, _ := f.run(latency.WithChainParams(params))

	require.Equal(t, uint64(1), stat.Latency.Target.Count)
	requireElement(t, stat.Children, "[+0x0,+0x8]", 1, 10)
	requireElement(t, stat.Children, "[+0x20,+0x30]", 1, 5)
	requireElement(t, stat.Children, "child", 1, 30)
	requireElement(t, stat.Children, "[+0x35,+0x40]", 1, 5)
	_, ok := stat.Children.Target.Get(latency.SelfKey)
	require.False(t, ok)
}

func TestChainAncestor(t *testing.T) {
	build := func() *fixture {
		f := newFixture(action.WithFilterAncestor("anc"))
		anc := func(off uint32) *symtable.Symbol { return f.sym("anc", ancBase, off) }

		// Outside of any ancestor window.
		f.enter(0)
		f.leave(10)

		f.emit(action.KindCall, f.main(0x30), anc(0), 20)
		f.emit(action.KindCall, anc(0x10), f.target(0), 30)
		f.emit(action.KindReturn, f.target(0x40), anc(0x15), 50)
		f.emit(action.KindReturn, anc(0x20), f.main(0x35), 60)
		return f
	}

	stat, status := build().run(latency.WithChainAncestor(true))
	require.Equal(t, uint64(1), stat.Latency.Target.Count)
	require.Contains(t, stat.Callers, "anc")
	require.Equal(t, uint64(1), status.AncestorCalls)
	require.Equal(t, uint64(1), status.AncestorReturns)

	params := latency.DefaultParams()
	params.AncestorInterval = latency.Interval{Min: 0, Max: 10}
	stat, status = build().run(latency.WithChainAncestor(true), latency.WithChainParams(params))
	require.Zero(t, stat.Latency.Target.Count, "ancestor window out of range")
	require.Zero(t, status.AncestorCalls)
}

type callSites map[string]uint64

func (c callSites) Put(key string, addr uint64) {
	if _, ok := c[key]; !ok {
		c[key] = addr
	}
}

func TestChainChildKeys(t *testing.T) {
	f := newFixture()
	f.enter(0)
	f.child("child", 0, 10, 10)

	// Returns into another copy of the target.
	f.emit(action.KindCall, f.target(0x10), f.sym("moved", childBase+0x100, 0), 30)
	f.emit(action.KindReturn, f.sym("moved", childBase+0x100, 0x8), f.sym("target", 0x8000, 0x15), 40)

	f.emit(action.KindHwInt, f.target(0x10), f.sym("irq", childBase+0x200, 0), 50)
	f.emit(action.KindIret, f.sym("irq", childBase+0x200, 0x30), f.target(0x12), 55)
	f.leave(100)

	params := latency.DefaultParams()
	params.Srcline = true
	sites := callSites{}
	stat, _ := f.run(latency.WithChainParams(params), latency.WithChainCallSite(sites))

	require.Equal(t, uint64(1), stat.Latency.Target.Count)
	requireElement(t, stat.Children, "child!0x2010", 1, 10)
	requireElement(t, stat.Children, "moved!0x8015", 1, 10)
	requireElement(t, stat.Children, "irq"+latency.UngroupedSuffix, 1, 5)
	assert.Equal(t, uint64(0x2010), sites["child!0x2010"])
	assert.Equal(t, uint64(0x8015), sites["moved!0x8015"])
}

func TestChainTraceStartEnd(t *testing.T) {
	f := newFixture()
	unknown := f.tab.Intern(0, 0, "")

	f.emit(action.KindTraceStart, unknown, f.target(0), 0)
	f.emit(action.KindTraceEndCall, f.target(0x10), f.sym("child", childBase, 0), 10)
	f.emit(action.KindTraceStart, unknown, f.target(0x15), 40)
	f.emit(action.KindTraceEndReturn, f.target(0x40), f.main(0x15), 50)

	stat, status := f.run()
	require.Equal(t, uint64(1), stat.Latency.Target.Count)
	require.Equal(t, uint64(50), stat.Latency.Target.Total)
	requireElement(t, stat.Children, "child", 1, 30)
	require.Zero(t, status.Inconsistencies)
}

func TestChainLatencyInterval(t *testing.T) {
	f := newFixture()
	f.enter(0)
	f.leave(120)
	f.enter(200)
	f.leave(250)

	params := latency.DefaultParams()
	params.LatencyInterval = latency.Interval{Min: 0, Max: 100}
	stat, _ := f.run(latency.WithChainParams(params))
	require.Equal(t, uint64(1), stat.Latency.Target.Count)
	require.Equal(t, uint64(50), stat.Latency.Target.Total)
}

func TestChainTimeline(t *testing.T) {
	f := newFixture()
	for i := uint64(0); i < 5; i++ {
		f.enter(i * 10_000)
		f.leave(i*10_000 + 2000*(i+1))
	}

	params := latency.DefaultParams()
	params.Timeline = true
	params.TimelineUnit = 2
	stat, _ := f.run(latency.WithChainParams(params))

	require.Zero(t, stat.Latency.Target.Count)
	require.Equal(t, []latency.TimelinePoint{
		{X: 10, Y: 3},
		{X: 30, Y: 7},
	}, stat.Timeline)
}
