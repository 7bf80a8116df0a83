package trace_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	log "github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/funclat/pkg/trace"
)

func TestConvert(t *testing.T) {
	src := writeTextTrace(t, 5)

	tests := []struct {
		name string
		dst  string
	}{
		{name: "plain", dst: "trace.bin"},
		{name: "snappy", dst: "trace.bin" + trace.SnappySuffix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := filepath.Join(t.TempDir(), tt.dst)
			stats, err := trace.Convert(context.Background(), src, dst, log.Nop())
			require.NoError(t, err)
			require.Equal(t, uint64(30), stats.Branches)
			require.Equal(t, uint64(1), stats.Errors)
			// main, do_command, other, helper, and both return sites.
			require.Equal(t, uint64(6), stats.Symbols)

			text := trace.NewParseJob(
				trace.WithJobSource(trace.Source{Path: src}),
				trace.WithJobFilter(testFilter()),
			)
			text.Execute()
			require.NoError(t, text.Err())

			bin := trace.NewParseJob(
				trace.WithJobSource(trace.Source{Path: dst}),
				trace.WithJobFormat(trace.FormatCompact),
				trace.WithJobFilter(testFilter()),
			)
			bin.Execute()
			require.NoError(t, bin.Err())

			require.Equal(t, text.Actions(), bin.Actions())
			require.Equal(t, text.StartTime(), bin.StartTime())
			for tid, set := range text.Threads() {
				got, ok := bin.Thread(tid)
				require.True(t, ok)
				require.Equal(t, set.Len(), got.Len())
				for i := range set.Actions {
					require.Equal(t, set.Actions[i].TS, got.Actions[i].TS)
					require.Equal(t, set.Actions[i].Kind, got.Actions[i].Kind)
					require.Equal(t, set.Actions[i].To.Name, got.Actions[i].To.Name)
				}
			}
		})
	}
}

func TestConvertMalformed(t *testing.T) {
	src := filepath.Join(t.TempDir(), "script_out")
	require.NoError(t, os.WriteFile(src, []byte("not a perf line\n"), 0o644))

	_, err := trace.Convert(context.Background(), src, filepath.Join(t.TempDir(), "out.bin"), log.Nop())
	require.ErrorContains(t, err, "at line 1")
}

func TestConvertCanceled(t *testing.T) {
	src := writeTextTrace(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := trace.Convert(ctx, src, filepath.Join(t.TempDir(), "out.bin"), log.Nop())
	require.ErrorIs(t, err, context.Canceled)
}
