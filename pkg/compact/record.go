package compact

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// BlockSize is the alignment unit of compact trace files: records never
// straddle a block boundary.
const BlockSize = 65536

// LostDataCode is the error code of a data loss record.
const LostDataCode = 8

// Tag is the first byte of every record.
type Tag uint8

const (
	TagUndefined Tag = iota
	TagBranch
	TagSymbol
	TagError
)

var (
	ErrTruncated      = errors.New("truncated record")
	ErrUnknownTag     = errors.New("unknown record tag")
	ErrRecordTooLarge = errors.New("record does not fit in a block")
)

// symbolHeaderLen is tag, id, address, offset and name length.
const symbolHeaderLen = 1 + 4 + 8 + 4 + 4

type Branch struct {
	Tid    uint32
	Kind   uint8
	TS     uint64
	FromID uint32
	ToID   uint32
}

type Symbol struct {
	ID      uint32
	Address uint64
	Offset  uint32
	Name    string
}

type Error struct {
	Tid  uint32
	TS   uint64
	Code uint8
}

// Record is one decoded record. Only the field matching Tag is set.
type Record struct {
	Tag    Tag
	Branch Branch
	Symbol Symbol
	Error  Error
}

func AppendBranch(b []byte, r Branch) []byte {
	var tmp [5]byte
	b = append(b, byte(TagBranch))
	b = append(b, tmp[:PutCompressed(tmp[:], r.Tid)]...)
	b = append(b, r.Kind)
	b = binary.BigEndian.AppendUint64(b, r.TS)
	b = append(b, tmp[:PutCompressed(tmp[:], r.FromID)]...)
	b = append(b, tmp[:PutCompressed(tmp[:], r.ToID)]...)
	return b
}

func AppendSymbol(b []byte, s Symbol) []byte {
	b = append(b, byte(TagSymbol))
	b = binary.BigEndian.AppendUint32(b, s.ID)
	b = binary.BigEndian.AppendUint64(b, s.Address)
	b = binary.BigEndian.AppendUint32(b, s.Offset)
	b = binary.BigEndian.AppendUint32(b, uint32(len(s.Name)))
	b = append(b, s.Name...)
	return b
}

func AppendError(b []byte, e Error) []byte {
	var tmp [5]byte
	b = append(b, byte(TagError))
	b = append(b, tmp[:PutCompressed(tmp[:], e.Tid)]...)
	b = binary.BigEndian.AppendUint64(b, e.TS)
	b = append(b, e.Code)
	return b
}

// DecodeRecord decodes the record at the start of b and returns it with the
// number of bytes consumed. An Undefined tag consumes one byte.
func DecodeRecord(b []byte) (Record, int, error) {
	var rec Record
	if len(b) == 0 {
		return rec, 0, ErrTruncated
	}
	rec.Tag = Tag(b[0])
	p := 1

	switch rec.Tag {
	case TagUndefined:
		return rec, p, nil
	case TagBranch:
		v, n, err := Compressed(b[p:])
		if err != nil {
			return rec, 0, err
		}
		rec.Branch.Tid = v
		p += n
		if len(b) < p+1+8 {
			return rec, 0, ErrTruncated
		}
		rec.Branch.Kind = b[p]
		p++
		rec.Branch.TS = binary.BigEndian.Uint64(b[p:])
		p += 8
		if rec.Branch.FromID, n, err = Compressed(b[p:]); err != nil {
			return rec, 0, err
		}
		p += n
		if rec.Branch.ToID, n, err = Compressed(b[p:]); err != nil {
			return rec, 0, err
		}
		p += n
	case TagSymbol:
		if len(b) < symbolHeaderLen {
			return rec, 0, ErrTruncated
		}
		rec.Symbol.ID = binary.BigEndian.Uint32(b[p:])
		rec.Symbol.Address = binary.BigEndian.Uint64(b[p+4:])
		rec.Symbol.Offset = binary.BigEndian.Uint32(b[p+12:])
		nameLen := int(binary.BigEndian.Uint32(b[p+16:]))
		p = symbolHeaderLen
		if nameLen > len(b)-p {
			return rec, 0, ErrTruncated
		}
		rec.Symbol.Name = string(b[p : p+nameLen])
		p += nameLen
	case TagError:
		v, n, err := Compressed(b[p:])
		if err != nil {
			return rec, 0, err
		}
		rec.Error.Tid = v
		p += n
		if len(b) < p+8+1 {
			return rec, 0, ErrTruncated
		}
		rec.Error.TS = binary.BigEndian.Uint64(b[p:])
		p += 8
		rec.Error.Code = b[p]
		p++
	default:
		return rec, 0, errors.Wrapf(ErrUnknownTag, "tag %d", rec.Tag)
	}

	return rec, p, nil
}
