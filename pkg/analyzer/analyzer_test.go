package analyzer_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/funclat/pkg/action"
	"github.com/maxgio92/funclat/pkg/analyzer"
	"github.com/maxgio92/funclat/pkg/latency"
	"github.com/maxgio92/funclat/pkg/trace"
	"github.com/maxgio92/funclat/pkg/worker"
)

const (
	testTarget = "do_command"
	startTS    = uint64(1_000_000_000)
)

// writeTrace writes n calls of the target lasting 20ns per thread, for
// threads 10 and 11. Each round of calls spans 60ns.
func writeTrace(t *testing.T, n int) string {
	t.Helper()
	var sb strings.Builder
	ts := startTS
	line := func(tid int, kind, from, to string) {
		fmt.Fprintf(&sb, "%8d [001] %d.%09d:   %-20s %s => %s\n", tid, ts/1e9, ts%1e9, kind, from, to)
		ts += 10
	}
	for i := 0; i < n; i++ {
		for _, tid := range []int{10, 11} {
			line(tid, "call", "401010 main+0x10", "402000 do_command+0x0")
			line(tid, "call", "405000 other+0x0", "406000 helper+0x0")
			line(tid, "return", "402040 do_command+0x40", "401015 main+0x15")
		}
	}

	path := filepath.Join(t.TempDir(), "script_out")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))

	return path
}

func newAnalyzer(path string, opts ...analyzer.AnalyzerOption) *analyzer.Analyzer {
	opts = append([]analyzer.AnalyzerOption{
		analyzer.WithPaths(path),
		analyzer.WithFilter(action.NewFilter(action.WithFilterTarget(testTarget))),
	}, opts...)
	return analyzer.NewAnalyzer(opts...)
}

func TestAnalyzerValidation(t *testing.T) {
	_, err := analyzer.NewAnalyzer(analyzer.WithPaths("x")).Run(context.Background())
	require.ErrorIs(t, err, analyzer.ErrFilterNil)

	_, err = analyzer.NewAnalyzer(
		analyzer.WithPaths("x"),
		analyzer.WithFilter(action.NewFilter()),
	).Run(context.Background())
	require.ErrorIs(t, err, analyzer.ErrTargetEmpty)

	_, err = newAnalyzer("x", analyzer.WithWorkers(0)).Run(context.Background())
	require.ErrorIs(t, err, worker.ErrPoolSize)

	_, err = newAnalyzer("x", analyzer.WithPaths()).Run(context.Background())
	require.ErrorIs(t, err, trace.ErrNoSources)

	_, err = newAnalyzer(filepath.Join(t.TempDir(), "missing")).Run(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestAnalyzerRun(t *testing.T) {
	path := writeTrace(t, 200)

	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("%d workers", workers), func(t *testing.T) {
			res, err := newAnalyzer(path, analyzer.WithWorkers(workers)).Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, uint64(800), res.Actions, "unrelated calls are filtered out")
			assert.Equal(t, startTS, res.Params.TimeOrigin)
			assert.Equal(t, uint64(400), res.Stat.Latency.Target.Count)
			assert.Equal(t, uint64(8000), res.Stat.Latency.Target.Total)
			assert.Equal(t, []string{"main"}, res.Stat.CallerNames())
			require.Len(t, res.Threads, 2)
			assert.Equal(t, uint64(200), res.Threads[10].Latency.Target.Count)
			assert.Equal(t, uint64(200), res.Threads[11].Latency.Target.Count)

			assert.Equal(t, startTS, res.Status.MinTS)
			assert.Equal(t, startTS+200*60-10, res.Status.MaxTS)
			assert.Zero(t, res.Status.Inconsistencies)
		})
	}
}

func TestAnalyzerTimeWindow(t *testing.T) {
	path := writeTrace(t, 10)

	res, err := newAnalyzer(path,
		analyzer.WithTimeWindow(0, latency.Interval{Min: 0, Max: 59}),
	).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(2), res.Stat.Latency.Target.Count, "only the first round starts in the window")

	res, err = newAnalyzer(path,
		analyzer.WithTimeWindow(startTS+60, latency.Interval{Min: 0, Max: 119}),
	).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(4), res.Stat.Latency.Target.Count)
}

type callSites struct {
	processed bool
}

func (c *callSites) Put(string, uint64) {}

func (c *callSites) Process(context.Context) error {
	c.processed = true
	return nil
}

func TestAnalyzerCallSites(t *testing.T) {
	path := writeTrace(t, 1)
	params := *latency.DefaultParams()
	params.Srcline = true
	sites := &callSites{}

	_, err := newAnalyzer(path,
		analyzer.WithParams(params),
		analyzer.WithCallSites(sites),
	).Run(context.Background())
	require.NoError(t, err)
	require.True(t, sites.processed)
}

func TestAnalyzerInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newAnalyzer(writeTrace(t, 1)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
