package compact

import (
	"io"

	"github.com/pkg/errors"
)

// Writer appends records to a block-aligned stream, padding the tail of a
// block with Undefined bytes when the next record would cross it.
type Writer struct {
	w   io.Writer
	off int64
	buf []byte
	pad [BlockSize]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, buf: make([]byte, 0, 64)}
}

func (w *Writer) WriteBranch(r Branch) error {
	w.buf = AppendBranch(w.buf[:0], r)
	return w.write(w.buf)
}

func (w *Writer) WriteSymbol(s Symbol) error {
	w.buf = AppendSymbol(w.buf[:0], s)
	return w.write(w.buf)
}

func (w *Writer) WriteError(e Error) error {
	w.buf = AppendError(w.buf[:0], e)
	return w.write(w.buf)
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int64 {
	return w.off
}

func (w *Writer) write(rec []byte) error {
	if len(rec) >= BlockSize {
		return errors.Wrapf(ErrRecordTooLarge, "%d bytes", len(rec))
	}
	blockEnd := (w.off/BlockSize + 1) * BlockSize
	if w.off+int64(len(rec)) > blockEnd {
		n, err := w.w.Write(w.pad[:blockEnd-w.off])
		w.off += int64(n)
		if err != nil {
			return errors.Wrap(err, "failed to pad block")
		}
	}
	n, err := w.w.Write(rec)
	w.off += int64(n)
	if err != nil {
		return errors.Wrap(err, "failed to write record")
	}

	return nil
}

// Reader scans a block-aligned stream one block at a time.
type Reader struct {
	r     io.Reader
	buf   []byte
	block int64
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, buf: make([]byte, BlockSize)}
}

// ForEach calls fn for every record of the stream, in order. Scanning of a
// block stops at the first Undefined tag. The first decode error or error
// returned by fn stops the scan.
func (r *Reader) ForEach(fn func(*Record) error) error {
	for {
		n, err := io.ReadFull(r.r, r.buf)
		if n > 0 {
			if serr := r.scan(r.buf[:n], fn); serr != nil {
				return serr
			}
			r.block++
		}
		switch {
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			return nil
		case err != nil:
			return errors.Wrap(err, "failed to read block")
		}
	}
}

func (r *Reader) scan(b []byte, fn func(*Record) error) error {
	for p := 0; p < len(b); {
		rec, n, err := DecodeRecord(b[p:])
		if err != nil {
			return errors.Wrapf(err, "block %d offset %d", r.block, p)
		}
		if rec.Tag == TagUndefined {
			return nil
		}
		if err := fn(&rec); err != nil {
			return err
		}
		p += n
	}

	return nil
}
