package compact_test

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/funclat/pkg/compact"
)

func TestCompressedRoundTrip(t *testing.T) {
	tests := []struct {
		n    uint32
		size int
	}{
		{0, 1},
		{0x7f, 1},
		{0x80, 2},
		{0x3fff, 2},
		{0x4000, 3},
		{0x1fffff, 3},
		{0x200000, 4},
		{0xfffffff, 4},
		{0x10000000, 5},
		{math.MaxUint32, 5},
	}

	buf := make([]byte, 5)
	for _, tt := range tests {
		n := compact.PutCompressed(buf, tt.n)
		require.Equal(t, tt.size, n, "value %#x", tt.n)
		require.Equal(t, tt.size, compact.CompressedSize(tt.n))

		got, size, err := compact.Compressed(buf[:n])
		require.NoError(t, err)
		require.Equal(t, tt.n, got)
		require.Equal(t, n, size)
	}
}

func TestCompressedTruncated(t *testing.T) {
	buf := make([]byte, 5)
	n := compact.PutCompressed(buf, 0x4000)

	_, _, err := compact.Compressed(buf[:n-1])
	require.ErrorIs(t, err, compact.ErrTruncated)
}

func TestRecordRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := compact.NewWriter(&buf)

	sym := compact.Symbol{ID: 3, Address: 0x401000, Offset: 0x10, Name: "do_command"}
	branch := compact.Branch{Tid: 0x12345, Kind: 5, TS: 1<<40 + 7, FromID: 3, ToID: 0x200000}
	lost := compact.Error{Tid: 9, TS: 42, Code: compact.LostDataCode}

	require.NoError(t, w.WriteSymbol(sym))
	require.NoError(t, w.WriteBranch(branch))
	require.NoError(t, w.WriteError(lost))

	var got []compact.Record
	err := compact.NewReader(&buf).ForEach(func(r *compact.Record) error {
		got = append(got, *r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, compact.TagSymbol, got[0].Tag)
	require.Equal(t, sym, got[0].Symbol)
	require.Equal(t, compact.TagBranch, got[1].Tag)
	require.Equal(t, branch, got[1].Branch)
	require.Equal(t, compact.TagError, got[2].Tag)
	require.Equal(t, lost, got[2].Error)
}

func TestWriterPadsBlocks(t *testing.T) {
	var buf bytes.Buffer
	w := compact.NewWriter(&buf)

	// Each symbol record takes 21 bytes of header plus its name.
	name := strings.Repeat("f", 1000)
	written := 0
	for w.Offset() < 2*compact.BlockSize {
		require.NoError(t, w.WriteSymbol(compact.Symbol{ID: uint32(written), Address: 1, Name: name}))
		written++
	}

	read := 0
	err := compact.NewReader(&buf).ForEach(func(r *compact.Record) error {
		require.Equal(t, uint32(read), r.Symbol.ID)
		require.Equal(t, name, r.Symbol.Name)
		read++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, written, read)
}

func TestRecordTooLarge(t *testing.T) {
	w := compact.NewWriter(&bytes.Buffer{})
	err := w.WriteSymbol(compact.Symbol{Name: strings.Repeat("x", compact.BlockSize)})
	require.True(t, errors.Is(err, compact.ErrRecordTooLarge))
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := compact.DecodeRecord([]byte{0x7})
	require.ErrorIs(t, err, compact.ErrUnknownTag)

	rec := compact.AppendBranch(nil, compact.Branch{Tid: 1, TS: 1})
	_, _, err = compact.DecodeRecord(rec[:len(rec)-1])
	require.ErrorIs(t, err, compact.ErrTruncated)

	rec = compact.AppendSymbol(nil, compact.Symbol{Name: "abc"})
	_, _, err = compact.DecodeRecord(rec[:len(rec)-1])
	require.ErrorIs(t, err, compact.ErrTruncated)
}
