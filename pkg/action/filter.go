package action

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// DefaultSchedFuncs are the kernel scheduler entry points: __schedule, and
// __sched_text_start as reported by 4.19 kernels.
var DefaultSchedFuncs = []string{"__schedule", "__sched_text_start"}

type FilterOptions struct {
	target     string
	ancestor   string
	schedFuncs mapset.Set[string]
	offcpu     bool
	codeBlock  bool
}

type FilterOption func(*Filter)

// Filter tags decoded actions with their relevance to the target, the
// scheduler and the ancestor function, and decides which ones to keep.
type Filter struct {
	*FilterOptions
}

func NewFilter(opts ...FilterOption) *Filter {
	f := &Filter{
		FilterOptions: &FilterOptions{
			schedFuncs: mapset.NewThreadUnsafeSet(DefaultSchedFuncs...),
		},
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

func WithFilterTarget(target string) FilterOption {
	return func(f *Filter) {
		f.target = target
	}
}

func WithFilterAncestor(ancestor string) FilterOption {
	return func(f *Filter) {
		f.ancestor = ancestor
	}
}

func WithFilterSchedFuncs(names ...string) FilterOption {
	return func(f *Filter) {
		if len(names) > 0 {
			f.schedFuncs = mapset.NewThreadUnsafeSet(names...)
		}
	}
}

func WithFilterOffcpu(offcpu bool) FilterOption {
	return func(f *Filter) {
		f.offcpu = offcpu
	}
}

func WithFilterCodeBlock(codeBlock bool) FilterOption {
	return func(f *Filter) {
		f.codeBlock = codeBlock
	}
}

func (f *Filter) Target() string {
	return f.target
}

func (f *Filter) Ancestor() string {
	return f.ancestor
}

// Mentions is a cheap pre-check on a raw text line: lines that name none of
// the relevant functions cannot produce a kept action.
func (f *Filter) Mentions(line string) bool {
	if strings.Contains(line, traceErrorPrefix) {
		return true
	}
	if f.target != "" && strings.Contains(line, f.target) {
		return true
	}
	if f.ancestor != "" && strings.Contains(line, f.ancestor) {
		return true
	}
	if f.offcpu {
		found := false
		f.schedFuncs.Each(func(name string) bool {
			found = strings.Contains(line, name)
			return found
		})
		return found
	}
	return false
}

// Tag sets the relevance flags of a and reports whether it must be kept.
// Error actions are always kept.
func (f *Filter) Tag(a *Action) bool {
	if a.IsError {
		return true
	}
	a.FromTarget = a.From != nil && a.From.Name == f.target
	a.ToTarget = a.To != nil && a.To.Name == f.target

	a.SchedBegin, a.SchedEnd = false, false
	if f.offcpu {
		switch {
		case a.Kind.IsEntry() && a.To != nil && a.To.Offset == 0 && f.schedFuncs.Contains(a.To.Name):
			a.SchedBegin = true
		case a.Kind.IsExit() && a.From != nil && f.schedFuncs.Contains(a.From.Name):
			a.SchedEnd = true
		}
	}

	a.AncestorBegin, a.AncestorEnd = false, false
	if f.ancestor != "" {
		switch {
		case a.Kind.IsEntry() && a.To != nil && a.To.Offset == 0 && a.To.Name == f.ancestor:
			a.AncestorBegin = true
		case a.Kind.IsExit() && a.From != nil && a.From.Name == f.ancestor:
			a.AncestorEnd = true
		}
	}

	if a.IsInternal() && !(f.codeBlock && a.FromTarget) {
		return false
	}

	return a.IsTarget() || a.SchedBegin || a.SchedEnd || a.AncestorBegin || a.AncestorEnd
}
