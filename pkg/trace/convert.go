package trace

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/maxgio92/funclat/pkg/action"
	"github.com/maxgio92/funclat/pkg/compact"
	"github.com/maxgio92/funclat/pkg/symtable"
)

// ConvertStats counts the records written by a conversion.
type ConvertStats struct {
	Branches uint64
	Symbols  uint64
	Errors   uint64
}

// encoder assigns dense ids to the symbols of a text trace, writing each
// symbol record before the first branch that refers to it.
type encoder struct {
	w   *compact.Writer
	ids map[*symtable.Symbol]uint32

	stats ConvertStats
}

func (e *encoder) symbol(sym *symtable.Symbol) (uint32, error) {
	if id, ok := e.ids[sym]; ok {
		return id, nil
	}
	id := uint32(len(e.ids))
	s := compact.Symbol{ID: id, Address: sym.Address, Offset: sym.Offset, Name: sym.Name}
	if sym.IsUnknown() {
		s.Name = ""
	}
	if err := e.w.WriteSymbol(s); err != nil {
		return 0, err
	}
	e.ids[sym] = id
	e.stats.Symbols++

	return id, nil
}

func (e *encoder) encode(a *action.Action) error {
	if a.IsError {
		e.stats.Errors++
		return e.w.WriteError(compact.Error{Tid: uint32(a.Tid), TS: a.TS, Code: compact.LostDataCode})
	}
	from, err := e.symbol(a.From)
	if err != nil {
		return err
	}
	to, err := e.symbol(a.To)
	if err != nil {
		return err
	}
	e.stats.Branches++

	return e.w.WriteBranch(compact.Branch{
		Tid:    uint32(a.Tid),
		Kind:   uint8(a.Kind),
		TS:     a.TS,
		FromID: from,
		ToID:   to,
	})
}

// Convert rewrites the text trace at src as a compact trace at dst. Paths
// ending with SnappySuffix are read or written snappy-framed.
func Convert(ctx context.Context, src, dst string, logger log.Logger) (*ConvertStats, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open trace source")
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create compact trace")
	}
	defer out.Close()

	var r io.Reader = in
	if strings.HasSuffix(src, SnappySuffix) {
		r = snappy.NewReader(in)
	}
	var w io.Writer = out
	var sw *snappy.Writer
	if strings.HasSuffix(dst, SnappySuffix) {
		sw = snappy.NewBufferedWriter(out)
		w = sw
	}
	bw := bufio.NewWriterSize(w, compact.BlockSize)

	stats, err := convert(ctx, r, bw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to convert %s", src)
	}
	if err := bw.Flush(); err != nil {
		return nil, errors.Wrap(err, "failed to write compact trace")
	}
	if sw != nil {
		if err := sw.Close(); err != nil {
			return nil, errors.Wrap(err, "failed to write compact trace")
		}
	}
	logger.Info().
		Str("source", src).
		Str("destination", dst).
		Uint64("branches", stats.Branches).
		Uint64("symbols", stats.Symbols).
		Uint64("errors", stats.Errors).
		Msg("trace converted")

	return stats, nil
}

func convert(ctx context.Context, r io.Reader, w io.Writer) (*ConvertStats, error) {
	e := &encoder{
		w:   compact.NewWriter(w),
		ids: make(map[*symtable.Symbol]uint32),
	}
	tab := symtable.NewTable()

	br := bufio.NewReaderSize(r, readBufferSize)
	for n := 0; ; n++ {
		if n%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			a, ok, perr := action.ParseLine(line, tab)
			if perr != nil {
				return nil, errors.Wrapf(perr, "at line %d", n+1)
			}
			if ok {
				if werr := e.encode(&a); werr != nil {
					return nil, werr
				}
			}
		}
		if err == io.EOF {
			return &e.stats, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read trace source")
		}
	}
}
