package symtable

import (
	"fmt"

	"github.com/pkg/errors"
)

const UnknownName = "[unknown]"

var (
	ErrSymNotFound = errors.New("symbol not found")
	ErrSymIDTaken  = errors.New("symbol id already registered")
	ErrSymIDRange  = errors.New("symbol id out of sequence")
)

// Symbol is a resolved branch source or destination: the function name,
// the absolute instruction address and its offset from the function start.
type Symbol struct {
	Name    string
	Address uint64
	Offset  uint32
}

// Base returns the start address of the function the symbol points into.
func (s *Symbol) Base() uint64 {
	return s.Address - uint64(s.Offset)
}

// Equal reports whether both symbols point into the same function.
func (s *Symbol) Equal(o *Symbol) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Base() == o.Base()
}

func (s *Symbol) IsUnknown() bool {
	return s == nil || s.Address == 0
}

func (s *Symbol) String() string {
	if s.IsUnknown() {
		return UnknownName
	}
	return fmt.Sprintf("%x %s+%#x", s.Address, s.Name, s.Offset)
}

// Table interns symbols. Text traces intern by address, compact traces
// register symbols by the dense id the writer assigned them.
// A Table is not safe for concurrent use: each parse job owns its own.
type Table struct {
	byAddr map[uint64]*Symbol
	byID   []*Symbol
}

func NewTable() *Table {
	tab := new(Table)
	tab.byAddr = make(map[uint64]*Symbol)
	tab.byID = make([]*Symbol, 0)

	return tab
}

// Intern returns the symbol stored for addr, creating it on first use.
// The first name and offset seen for an address win.
func (t *Table) Intern(addr uint64, offset uint32, name string) *Symbol {
	if sym, ok := t.byAddr[addr]; ok {
		return sym
	}
	if addr == 0 {
		name, offset = UnknownName, 0
	}
	sym := &Symbol{Name: name, Address: addr, Offset: offset}
	t.byAddr[addr] = sym

	return sym
}

// Register stores a symbol under a dense id: ids are registered in
// sequence from 0, each one right after the previous.
func (t *Table) Register(id uint32, addr uint64, offset uint32, name string) (*Symbol, error) {
	switch {
	case uint64(id) < uint64(len(t.byID)):
		return nil, errors.Wrapf(ErrSymIDTaken, "id %d", id)
	case uint64(id) > uint64(len(t.byID)):
		return nil, errors.Wrapf(ErrSymIDRange, "id %d, expected %d", id, len(t.byID))
	}
	sym := &Symbol{Name: name, Address: addr, Offset: offset}
	if addr == 0 && name == "" {
		sym.Name = UnknownName
	}
	t.byID = append(t.byID, sym)

	return sym, nil
}

// Get returns the symbol registered under id.
func (t *Table) Get(id uint32) (*Symbol, error) {
	if int(id) >= len(t.byID) || t.byID[id] == nil {
		return nil, errors.Wrapf(ErrSymNotFound, "id %d", id)
	}
	return t.byID[id], nil
}

// Len returns the number of interned symbols.
func (t *Table) Len() int {
	n := len(t.byAddr)
	for _, s := range t.byID {
		if s != nil {
			n++
		}
	}
	return n
}
