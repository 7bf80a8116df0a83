package analyzer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/funclat/pkg/action"
	"github.com/maxgio92/funclat/pkg/analyzer"
	"github.com/maxgio92/funclat/pkg/latency"
	"github.com/maxgio92/funclat/pkg/symtable"
)

func set(actions ...action.Action) *action.ActionSet {
	s := action.NewActionSet(1)
	for _, a := range actions {
		s.Add(a)
	}
	return s
}

func call(ts uint64, cpu int) action.Action {
	return action.Action{Kind: action.KindCall, TS: ts, Tid: 1, CPU: cpu}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		sets []*action.ActionSet
		want []uint64
		cpus []int
	}{
		{
			name: "empty",
			sets: []*action.ActionSet{nil, set()},
		},
		{
			name: "interleaved",
			sets: []*action.ActionSet{
				set(call(1, 0), call(4, 0), call(5, 0)),
				nil,
				set(call(2, 1), call(3, 1), call(6, 1)),
			},
			want: []uint64{1, 2, 3, 4, 5, 6},
		},
		{
			name: "ties go to the earlier source",
			sets: []*action.ActionSet{
				set(call(1, 0), call(2, 0)),
				set(call(1, 1), call(2, 1)),
			},
			want: []uint64{1, 1, 2, 2},
			cpus: []int{0, 1, 0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := analyzer.Merge(tt.sets)
			require.Len(t, merged, len(tt.want))
			for i, a := range merged {
				require.Equal(t, tt.want[i], a.TS)
				if tt.cpus != nil {
					require.Equal(t, tt.cpus[i], a.CPU)
				}
			}
		})
	}
}

func TestMergeErrors(t *testing.T) {
	merged := analyzer.Merge([]*action.ActionSet{
		set(call(1, 0), action.NewError(1, 2), call(5, 0)),
		set(action.NewError(1, 3), call(4, 0), action.NewError(1, 6)),
	})

	var kinds []bool
	var ts []uint64
	for _, a := range merged {
		kinds = append(kinds, a.IsError)
		ts = append(ts, a.TS)
	}
	require.Equal(t, []uint64{1, 2, 4, 5, 6}, ts, "consecutive errors collapse")
	require.Equal(t, []bool{false, true, false, false, true}, kinds)
}

func TestThreadJob(t *testing.T) {
	tab := symtable.NewTable()
	main := tab.Intern(0x1010, 0x10, "main")
	target := tab.Intern(0x2000, 0, "target")
	targetRet := tab.Intern(0x2040, 0x40, "target")
	mainRet := tab.Intern(0x1015, 0x15, "main")

	filter := action.NewFilter(action.WithFilterTarget("target"))
	tag := func(a action.Action) action.Action {
		require.True(t, filter.Tag(&a))
		return a
	}

	// The call and the return were decoded by different parse jobs.
	status := latency.NewGlobalStatus()
	job := analyzer.NewThreadJob(
		analyzer.WithThreadTid(1),
		analyzer.WithThreadStatus(status),
		analyzer.WithThreadSets(
			set(tag(action.Action{Kind: action.KindCall, From: main, To: target, TS: 100, Tid: 1})),
			set(tag(action.Action{Kind: action.KindReturn, From: targetRet, To: mainRet, TS: 220, Tid: 1})),
		),
	)
	job.Execute()

	require.Equal(t, 1, job.Tid())
	require.Equal(t, 2, job.Actions())
	require.Equal(t, uint64(1), job.Stat().Latency.Target.Count)
	require.Equal(t, uint64(120), job.Stat().Latency.Target.Total)
	require.Equal(t, uint64(120), status.Snapshot().TraceTime)
}
