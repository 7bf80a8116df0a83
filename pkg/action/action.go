package action

import (
	"cmp"
	"math"

	"golang.org/x/exp/slices"

	"github.com/maxgio92/funclat/pkg/symtable"
)

// Action is one decoded control-flow edge, or a data loss marker when
// IsError is set. Symbols are owned by the symbol table of the parse job
// that decoded the action.
type Action struct {
	Kind Kind
	From *symtable.Symbol
	To   *symtable.Symbol
	TS   uint64
	Tid  int
	CPU  int

	FromTarget    bool
	ToTarget      bool
	SchedBegin    bool
	SchedEnd      bool
	AncestorBegin bool
	AncestorEnd   bool
	IsError       bool
}

// NewError returns a data loss marker for a thread.
func NewError(tid int, ts uint64) Action {
	return Action{Tid: tid, TS: ts, IsError: true}
}

// IsInternal reports whether the action is a jump that stays inside one
// function.
func (a *Action) IsInternal() bool {
	return a.Kind.IsJump() && a.From.Equal(a.To)
}

// IsTarget reports whether the action enters or leaves the target function.
func (a *Action) IsTarget() bool {
	return a.FromTarget || a.ToTarget
}

// IsTargetEntry reports whether the action enters the target at its start.
func (a *Action) IsTargetEntry() bool {
	return a.ToTarget && a.To != nil && a.To.Offset == 0 && a.Kind.IsEntry()
}

// ActionSet holds the actions of one thread decoded by one parse job.
type ActionSet struct {
	Tid int
	// Target counts the actions that enter or leave the target.
	Target uint32

	Actions []Action
	Errors  []Action
}

func NewActionSet(tid int) *ActionSet {
	return &ActionSet{Tid: tid}
}

func (s *ActionSet) Add(a Action) {
	if a.IsError {
		s.Errors = append(s.Errors, a)
		return
	}
	if a.IsTarget() {
		s.Target++
	}
	s.Actions = append(s.Actions, a)
}

// Sort orders the error actions by timestamp, and the normal actions too
// when the trace is known to be captured out of order.
func (s *ActionSet) Sort(outOfOrder bool) {
	byTS := func(a, b Action) int { return cmp.Compare(a.TS, b.TS) }
	slices.SortStableFunc(s.Errors, byTS)
	if outOfOrder {
		slices.SortStableFunc(s.Actions, byTS)
	}
}

func (s *ActionSet) Len() int {
	return len(s.Actions) + len(s.Errors)
}

// MinTimestamp returns the earliest timestamp of the set, or MaxUint64
// when empty.
func (s *ActionSet) MinTimestamp() uint64 {
	ts := uint64(math.MaxUint64)
	if len(s.Actions) > 0 {
		ts = min(ts, s.Actions[0].TS)
	}
	if len(s.Errors) > 0 {
		ts = min(ts, s.Errors[0].TS)
	}
	return ts
}

// MaxTimestamp returns the latest timestamp of the set, or 0 when empty.
func (s *ActionSet) MaxTimestamp() uint64 {
	var ts uint64
	if len(s.Actions) > 0 {
		ts = max(ts, s.Actions[len(s.Actions)-1].TS)
	}
	if len(s.Errors) > 0 {
		ts = max(ts, s.Errors[len(s.Errors)-1].TS)
	}
	return ts
}
