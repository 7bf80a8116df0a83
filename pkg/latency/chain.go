package latency

import (
	"fmt"

	log "github.com/rs/zerolog"

	"github.com/maxgio92/funclat/pkg/action"
)

// UngroupedSuffix marks children left through an interrupt return, whose
// call site cannot be told apart.
const UngroupedSuffix = "!ungrouped"

// Chain rebuilds the calls of the target from the time ordered actions of
// one thread and commits their latency into a FuncStat.
type Chain struct {
	stack []*action.Action
	child LatencyChild

	schedInTarget uint64
	schedInChild  uint64
	schedBegin    *action.Action

	ancestorDepth int

	// targetBegin is the entry of the chain in progress, lost is set when a
	// data loss interrupted it.
	targetBegin *action.Action
	lost        bool
	lostAt      uint64

	// prev starts the code block in progress.
	prev *action.Action

	stat *FuncStat
	*ChainOptions
}

func NewChain(opts ...ChainOption) *Chain {
	c := &Chain{
		ChainOptions: &ChainOptions{
			params: DefaultParams(),
			logger: log.Nop(),
		},
		child: NewLatencyChild(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.status == nil {
		c.status = NewGlobalStatus()
	}
	c.stat = NewFuncStat(c.params)

	return c
}

// Run consumes actions in order and returns the resulting FuncStat.
func (c *Chain) Run(actions []action.Action) *FuncStat {
	for i := range actions {
		c.step(actions, i)
	}
	c.flushUnknown()

	return c.stat
}

func (c *Chain) Stat() *FuncStat {
	return c.stat
}

func (c *Chain) step(actions []action.Action, i int) {
	a := &actions[i]

	if a.IsError {
		c.onError(a)
		return
	}
	if a.IsTargetEntry() {
		c.onTargetEntry(a)
		return
	}

	if c.ancestor {
		switch {
		case a.AncestorBegin:
			c.onAncestorBegin(actions, i)
			return
		case a.AncestorEnd:
			if c.ancestorDepth > 0 {
				c.ancestorDepth--
				c.status.AddAncestorReturn()
			}
			return
		case c.ancestorDepth == 0:
			return
		}
	}

	if a.SchedBegin {
		if c.schedBegin != nil {
			c.report("schedule begin", a)
		}
		c.schedBegin = a
		return
	}
	if a.SchedEnd {
		c.onSchedEnd(a)
		return
	}

	kind := a.Kind
	if kind.IsJump() {
		if a.IsInternal() {
			if a.FromTarget {
				c.closeBlock(a)
				c.prev = a
			}
			return
		}
		if a.To != nil && a.To.Offset == 0 {
			kind = action.KindCall
		} else {
			kind = action.KindReturn
		}
	}

	switch {
	case kind == action.KindTraceStart:
		c.onTraceStart(a)
	case kind.IsCallLike():
		c.onCall(a)
	case kind == action.KindTraceEnd:
		if len(c.stack) > 0 {
			c.stack = append(c.stack, a)
		}
	case kind.IsReturnLike():
		c.onReturn(a, kind)
	}
}

func (c *Chain) onError(a *action.Action) {
	c.status.AddLost()
	c.flushUnknown()
	c.stack = c.stack[:0]
	c.schedInTarget, c.schedInChild = 0, 0
	c.schedBegin = nil
	c.prev = nil
	if !c.lost {
		c.lost = true
		c.lostAt = a.TS
	}
}

func (c *Chain) onTargetEntry(a *action.Action) {
	if n := len(c.stack); n > 1 {
		top := c.stack[n-1]
		if top.Kind.IsCallLike() && top.FromTarget && a.TS > top.TS {
			c.child.AddTarget(top.To.Name, a.TS-top.TS)
		}
	}
	c.flushUnknown()

	c.stack = append(c.stack[:0], a)
	c.schedInTarget, c.schedInChild = 0, 0
	if c.schedBegin != nil {
		c.report("schedule begin", a)
		c.schedBegin = nil
	}
	if c.lost {
		begin := c.lostAt
		if c.targetBegin != nil {
			begin = c.targetBegin.TS
		}
		if a.TS > begin {
			c.status.AddMissed(a.TS - begin)
		}
		c.lost = false
	}
	c.targetBegin = a
	c.prev = a
}

// onAncestorBegin opens an ancestor window. With a duration range set, the
// window is opened only if its end is found and its duration is in range.
func (c *Chain) onAncestorBegin(actions []action.Action, i int) {
	if c.ancestorDepth > 0 {
		c.ancestorDepth++
		c.status.AddAncestorCall()
		return
	}
	if !c.params.AncestorInterval.IsFull() {
		begin := &actions[i]
		end, ok := findAncestorEnd(actions, i)
		if !ok || end.TS < begin.TS || !c.params.AncestorInterval.Contains(end.TS-begin.TS) {
			return
		}
	}
	c.ancestorDepth = 1
	c.status.AddAncestorCall()
}

func findAncestorEnd(actions []action.Action, i int) (*action.Action, bool) {
	depth := 1
	for j := i + 1; j < len(actions); j++ {
		a := &actions[j]
		switch {
		case a.IsError:
			return nil, false
		case a.AncestorBegin:
			depth++
		case a.AncestorEnd:
			depth--
			if depth == 0 {
				return a, true
			}
		}
	}
	return nil, false
}

func (c *Chain) onSchedEnd(a *action.Action) {
	if c.schedBegin == nil {
		c.report("schedule end", a)
		return
	}
	if a.TS > c.schedBegin.TS {
		d := a.TS - c.schedBegin.TS
		c.schedInTarget += d
		c.schedInChild += d
	}
	c.stat.SchedCount++
	c.schedBegin = nil
}

// onTraceStart handles a trace resuming after a trace end, usually when
// a child called through a traced boundary returns.
func (c *Chain) onTraceStart(a *action.Action) {
	n := len(c.stack)
	if n == 0 {
		c.wrongChain("trace", a)
		return
	}
	top := c.stack[n-1]
	switch top.Kind {
	case action.KindTraceEndCall, action.KindTraceEndHwInt, action.KindTraceEndSyscall:
		c.stack = c.stack[:n-1]
		c.recordChild(top, a)
	case action.KindTraceEnd:
		c.stack = c.stack[:n-1]
	default:
		c.wrongChain("trace", a)
		return
	}
	if a.ToTarget {
		c.prev = a
	}
}

func (c *Chain) onCall(a *action.Action) {
	if len(c.stack) == 0 {
		return
	}
	c.closeBlock(a)
	c.prev = nil
	c.stack = append(c.stack, a)
	if c.schedBegin != nil {
		c.report("schedule begin in child", a)
		c.schedBegin = nil
	}
	c.schedInChild = 0
}

func (c *Chain) onReturn(a *action.Action, kind action.Kind) {
	n := len(c.stack)
	switch {
	case n == 1 && a.FromTarget:
		c.closeBlock(a)
		c.stat.Add(c.stack[0], a, c.schedInTarget, &c.child)
		c.child.Clear()
		c.stack = c.stack[:0]
		c.schedInTarget, c.schedInChild = 0, 0
		c.targetBegin = nil
		c.prev = nil
	case n > 1 && c.stack[n-1].FromTarget && kind != action.KindTraceEndReturn:
		top := c.stack[n-1]
		c.stack = c.stack[:n-1]
		if top.Kind.IsCallLike() {
			c.recordChild(top, a)
		}
		c.prev = nil
		if a.ToTarget {
			c.prev = a
		}
	default:
		c.wrongChain("return", a)
	}
}

// recordChild records the latency of the child entered by call and left
// by ret.
func (c *Chain) recordChild(call, ret *action.Action) {
	if ret.TS < call.TS {
		c.report("child timestamp", ret)
		return
	}
	key := c.childKey(call, ret)
	c.child.AddTarget(key, ret.TS-call.TS)
	c.child.AddSched(key, c.schedInChild)
}

// childKey names a child by its function. A child left through an
// interrupt return is ungrouped. A child returning outside the function
// that called it is keyed by its return address, and with call sites on by
// its call site.
func (c *Chain) childKey(call, ret *action.Action) string {
	name := call.To.Name
	switch {
	case ret.Kind == action.KindIret:
		return name + UngroupedSuffix
	case ret.To != nil && !ret.To.IsUnknown() && !ret.To.Equal(call.From):
		key := fmt.Sprintf("%s!%#x", name, ret.To.Address)
		c.recordCallSite(key, ret.To.Address)
		return key
	case c.params.Srcline:
		key := fmt.Sprintf("%s!%#x", name, call.From.Address)
		c.recordCallSite(key, call.From.Address)
		return key
	}
	return name
}

func (c *Chain) recordCallSite(key string, addr uint64) {
	if c.params.Srcline && c.callSite != nil {
		c.callSite.Put(key, addr)
	}
}

// closeBlock records the span of target code from the start of the block
// in progress up to a, which leaves it.
func (c *Chain) closeBlock(a *action.Action) {
	if !c.params.CodeBlock || c.prev == nil || !a.FromTarget || a.TS < c.prev.TS {
		return
	}
	key := fmt.Sprintf("[+%#x,+%#x]", c.prev.To.Offset, a.From.Offset)
	c.child.AddTarget(key, a.TS-c.prev.TS)
}

func (c *Chain) wrongChain(kind string, a *action.Action) {
	c.report(kind, a)
	c.flushUnknown()
	c.stack = c.stack[:0]
	c.schedInTarget, c.schedInChild = 0, 0
	c.prev = nil
}

func (c *Chain) flushUnknown() {
	if c.child.Empty() {
		return
	}
	c.stat.AddUnknownLatency(&c.child)
	c.child.Clear()
}

func (c *Chain) report(kind string, a *action.Action) {
	c.status.AddInconsistency()
	if c.verbose {
		c.logger.Debug().
			Str("kind", kind).
			Int("tid", c.tid).
			Uint64("ts", a.TS).
			Msg("chain inconsistency detected")
	}
}
