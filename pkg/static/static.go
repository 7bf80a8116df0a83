package static

import (
	"cmp"
	"debug/elf"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

var (
	ErrBadFuncIdx   = errors.New("function index must be of the form #N")
	ErrFuncNotFound = errors.New("function symbol not found")
)

// FuncSymbols returns the function symbols called name in the ELF binary
// at path, ordered by address. Several local functions can share a name.
func FuncSymbols(path, name string) ([]elf.Symbol, error) {
	b, err := elf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer b.Close()

	syms, err := b.Symbols()
	if errors.Is(err, elf.ErrNoSymbols) {
		syms, err = b.DynamicSymbols()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read symbols of %s", path)
	}

	var funcs []elf.Symbol
	for _, sym := range syms {
		// Exclude non-function symbols.
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		if sym.Name != name || sym.Value == 0 {
			continue
		}
		funcs = append(funcs, sym)
	}
	slices.SortFunc(funcs, func(a, b elf.Symbol) int {
		return cmp.Compare(a.Value, b.Value)
	})

	return funcs, nil
}

// ParseFuncIdx parses the "#N" index of a function among the symbols of
// the same name. An empty index is 0.
func ParseFuncIdx(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, ok := strings.CutPrefix(s, "#")
	if !ok {
		return 0, errors.Wrapf(ErrBadFuncIdx, "%q", s)
	}
	idx, err := strconv.Atoi(n)
	if err != nil || idx < 0 {
		return 0, errors.Wrapf(ErrBadFuncIdx, "%q", s)
	}

	return idx, nil
}

// FuncSymbol returns the function symbol of index idx, as "#N", among the
// symbols called name in the binary at path.
func FuncSymbol(path, name, idx string) (elf.Symbol, error) {
	i, err := ParseFuncIdx(idx)
	if err != nil {
		return elf.Symbol{}, err
	}
	funcs, err := FuncSymbols(path, name)
	if err != nil {
		return elf.Symbol{}, err
	}
	if i >= len(funcs) {
		return elf.Symbol{}, errors.Wrapf(ErrFuncNotFound, "%s %s: %d symbols with this name", name, idx, len(funcs))
	}

	return funcs[i], nil
}
