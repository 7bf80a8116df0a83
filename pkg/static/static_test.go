package static_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/funclat/pkg/static"
)

func TestParseFuncIdx(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "#0", want: 0},
		{in: "#3", want: 3},
		{in: "3", wantErr: true},
		{in: "#-1", wantErr: true},
		{in: "#x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := static.ParseFuncIdx(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, static.ErrBadFuncIdx)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFuncSymbol(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	sym, err := static.FuncSymbol(exe, "main.main", "#0")
	require.NoError(t, err)
	require.Equal(t, "main.main", sym.Name)
	require.NotZero(t, sym.Value)

	_, err = static.FuncSymbol(exe, "main.main", "#1")
	require.ErrorIs(t, err, static.ErrFuncNotFound)

	_, err = static.FuncSymbol(exe, "no_such_function_in_this_binary", "#0")
	require.ErrorIs(t, err, static.ErrFuncNotFound)

	_, err = static.FuncSymbols("/no/such/binary", "main.main")
	require.Error(t, err)
}
