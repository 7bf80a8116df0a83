package collector_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/funclat/internal/settings"
	"github.com/maxgio92/funclat/pkg/collector"
)

// fakePerf writes a perf stand-in that records an empty perf.data and
// scripts one line per output file.
func fakePerf(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "perf")
	script := `#!/bin/sh
case "$1" in
record)
	touch perf.data ;;
script)
	for arg in "$@"; do
		case "$arg" in
		--parallel=*)
			n=${arg#--parallel=}
			i=0
			while [ $i -lt $n ]; do
				printf 'chunk %d\n' $i > "$(printf 'script_out__%05d' $i)"
				i=$((i+1))
			done
			exit 0 ;;
		esac
	done
	echo "10 [001] 1.000000000: call 401010 main+0x10 => 402000 do_command+0x0" ;;
*)
	exit 1 ;;
esac
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestRecordArgs(t *testing.T) {
	tests := []struct {
		name string
		opts []collector.CollectorOption
		want []string
	}{
		{
			name: "pid",
			opts: []collector.CollectorOption{collector.WithPid(42)},
			want: []string{"record", "-e", "intel_pt/cyc=1/u", "-B", "-p", "42",
				"-m,32M", "--no-bpf-event", "--", "sleep", "0.5"},
		},
		{
			name: "tid per thread",
			opts: []collector.CollectorOption{collector.WithTid(7), collector.WithPerThread(true)},
			want: []string{"record", "-e", "intel_pt/cyc=1/u", "-B", "-t", "7", "--per-thread", "--timestamp",
				"-m,32M", "--no-bpf-event", "--", "sleep", "0.5"},
		},
		{
			name: "cpu with user ip filter",
			opts: []collector.CollectorOption{
				collector.WithCPU("0-3"),
				collector.WithIPFilter(true),
				collector.WithBinary("/usr/sbin/mysqld"),
			},
			want: []string{"record", "-e", "intel_pt/cyc=1/u", "-B",
				"--filter", "filter do_command #0 @ /usr/sbin/mysqld", "-C", "0-3",
				"-m,32M", "--no-bpf-event", "--", "sleep", "0.5"},
		},
		{
			name: "offcpu kernel function",
			opts: []collector.CollectorOption{
				collector.WithPid(1),
				collector.WithIPFilter(true),
				collector.WithOffcpu(true, "__schedule"),
			},
			want: []string{"record", "-e", "intel_pt/cyc=1/", "-B",
				"--filter", "filter __schedule , filter do_command", "-p", "1",
				"-m,32M", "--no-bpf-event", "--", "sleep", "0.5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]collector.CollectorOption{
				collector.WithTarget("do_command"),
				collector.WithDuration(0.5),
			}, tt.opts...)
			require.Equal(t, tt.want, collector.NewCollector(opts...).RecordArgs())
		})
	}
}

func TestOffcpuNeedsIPFilter(t *testing.T) {
	c := collector.NewCollector(collector.WithOffcpu(true, "__schedule"))
	require.False(t, c.Offcpu())
}

func TestScriptArgs(t *testing.T) {
	c := collector.NewCollector(collector.WithTarget("do_command"))
	require.Equal(t, []string{"script", "--ns", "--itrace=cre",
		"-F-event,-period,+tid,+cpu,+time,+addr,-comm,+flags,-dso"}, c.ScriptArgs())

	c = collector.NewCollector(
		collector.WithTarget("do_command"),
		collector.WithBinary("/usr/sbin/mysqld"),
		collector.WithTid(9),
		collector.WithCompact(true),
		collector.WithParallelScript(true, 4),
	)
	require.Equal(t, []string{"script", "--ns", "--itrace=cre", "--compact_format=1",
		"-F-event,-period,+tid,+cpu,+time,+addr,-comm,+flags,-dso",
		"--parallel=4", "--func_filter=do_command", "--opt_dso_name=/usr/sbin/mysqld", "--thread_filter=9",
	}, c.ScriptArgs())
}

func TestRunValidation(t *testing.T) {
	ctx := context.Background()

	_, err := collector.NewCollector().Run(ctx)
	require.ErrorIs(t, err, collector.ErrTargetEmpty)

	_, err = collector.NewCollector(collector.WithTarget("f"), collector.WithPid(1)).Run(ctx)
	require.ErrorIs(t, err, collector.ErrDuration)

	_, err = collector.NewCollector(collector.WithTarget("f"), collector.WithDuration(1)).Run(ctx)
	require.ErrorIs(t, err, collector.ErrNoScope)
}

func TestRun(t *testing.T) {
	perf := fakePerf(t)

	t.Run("should script into one file", func(t *testing.T) {
		dir := t.TempDir()
		files, err := collector.NewCollector(
			collector.WithPerfTool(perf),
			collector.WithTarget("do_command"),
			collector.WithDuration(0.01),
			collector.WithPid(1),
			collector.WithDir(dir),
		).Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, []string{filepath.Join(dir, settings.ScriptFile)}, files)
		assert.FileExists(t, filepath.Join(dir, settings.PerfDataFile))

		b, err := os.ReadFile(files[0])
		require.NoError(t, err)
		assert.Contains(t, string(b), "do_command")
	})

	t.Run("should script into chunks", func(t *testing.T) {
		dir := t.TempDir()
		// A stale output of a previous run is cleared.
		require.NoError(t, os.WriteFile(filepath.Join(dir, settings.ScriptFile), nil, 0o644))

		files, err := collector.NewCollector(
			collector.WithPerfTool(perf),
			collector.WithTarget("do_command"),
			collector.WithDuration(0.01),
			collector.WithTid(1),
			collector.WithParallelScript(true, 3),
			collector.WithDir(dir),
		).Run(context.Background())
		require.NoError(t, err)
		require.Len(t, files, 3)
		for i, f := range files {
			require.Equal(t, filepath.Join(dir, fmt.Sprintf(settings.ScriptChunkFormat, i)), f)
		}
	})

	t.Run("should only record in history mode 1", func(t *testing.T) {
		dir := t.TempDir()
		files, err := collector.NewCollector(
			collector.WithPerfTool(perf),
			collector.WithTarget("do_command"),
			collector.WithDuration(0.01),
			collector.WithPid(1),
			collector.WithHistory(1),
			collector.WithDir(dir),
		).Run(context.Background())
		require.NoError(t, err)
		require.Empty(t, files)
		assert.FileExists(t, filepath.Join(dir, settings.PerfDataFile))
		assert.NoFileExists(t, filepath.Join(dir, settings.ScriptFile))
	})

	t.Run("should only script in history mode 2", func(t *testing.T) {
		dir := t.TempDir()
		files, err := collector.NewCollector(
			collector.WithPerfTool(perf),
			collector.WithTarget("do_command"),
			collector.WithHistory(2),
			collector.WithDir(dir),
		).Run(context.Background())
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.NoFileExists(t, filepath.Join(dir, settings.PerfDataFile))
	})

	t.Run("should notify once recording", func(t *testing.T) {
		var started int
		_, err := collector.NewCollector(
			collector.WithPerfTool(perf),
			collector.WithTarget("do_command"),
			collector.WithDuration(0.01),
			collector.WithPid(1),
			collector.WithDir(t.TempDir()),
			collector.WithRecordStarted(func() { started++ }),
		).Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, started)
	})

	t.Run("should fail when perf fails", func(t *testing.T) {
		_, err := collector.NewCollector(
			collector.WithPerfTool(filepath.Join(t.TempDir(), "missing-perf")),
			collector.WithTarget("do_command"),
			collector.WithDuration(0.01),
			collector.WithPid(1),
			collector.WithDir(t.TempDir()),
		).Run(context.Background())
		require.ErrorContains(t, err, "perf record failed")
	})
}

func TestRecordSymbolNotFound(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	err = collector.NewCollector(
		collector.WithTarget("no_such_function_in_this_binary"),
		collector.WithBinary(exe),
		collector.WithIPFilter(true),
		collector.WithDuration(0.01),
		collector.WithPid(1),
		collector.WithDir(t.TempDir()),
	).Record(context.Background())
	require.ErrorIs(t, err, collector.ErrSymbolNotFound)
}

func TestScriptFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := collector.ScriptFiles(dir)
	require.ErrorIs(t, err, collector.ErrNoScriptOutput)

	for _, i := range []int{2, 0, 1} {
		name := filepath.Join(dir, fmt.Sprintf(settings.ScriptChunkFormat, i))
		require.NoError(t, os.WriteFile(name, nil, 0o644))
	}
	files, err := collector.ScriptFiles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "script_out__00000"),
		filepath.Join(dir, "script_out__00001"),
		filepath.Join(dir, "script_out__00002"),
	}, files)
}

func TestCheckSystem(t *testing.T) {
	saved := collector.IntelPTPath
	t.Cleanup(func() { collector.IntelPTPath = saved })

	collector.IntelPTPath = filepath.Join(t.TempDir(), "missing")
	require.ErrorIs(t, collector.CheckSystem(), collector.ErrIntelPT)

	collector.IntelPTPath = t.TempDir()
	require.NoError(t, collector.CheckSystem())
}
