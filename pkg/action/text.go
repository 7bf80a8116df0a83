package action

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/maxgio92/funclat/pkg/symtable"
)

const (
	nsecsPerSec = 1000000000

	traceErrorPrefix = "instruction trace error"
	lostDataMarker   = "Lost trace data"
)

var (
	traceErrTidRe  = regexp.MustCompile(`\btid\s+(-?\d+)`)
	traceErrTimeRe = regexp.MustCompile(`\btime\s+(\d+\.\d+)`)
)

// ParseLine decodes one perf script line of the form
//
//	tid [cpu] sec.nsec: <type> <from> => <to>
//
// interning its symbols into tab. The boolean is false for lines that carry
// no action, like blank lines or trace errors other than data loss.
func ParseLine(line string, tab *symtable.Table) (Action, bool, error) {
	s := strings.TrimLeft(line, " \t")
	s = strings.TrimRight(s, "\r\n")
	if s == "" {
		return Action{}, false, nil
	}
	if strings.HasPrefix(s, traceErrorPrefix) {
		return parseTraceError(s)
	}

	var a Action
	lb := strings.IndexByte(s, '[')
	if lb < 0 {
		return a, false, errors.Wrapf(ErrMalformedLine, "missing cpu: %q", line)
	}
	tid, err := parseTid(strings.TrimSpace(s[:lb]))
	if err != nil {
		return a, false, errors.Wrapf(ErrMalformedLine, "bad tid: %q", line)
	}
	a.Tid = tid

	rb := strings.IndexByte(s[lb:], ']')
	if rb < 0 {
		return a, false, errors.Wrapf(ErrMalformedLine, "missing cpu: %q", line)
	}
	rb += lb
	if a.CPU, err = strconv.Atoi(strings.TrimSpace(s[lb+1 : rb])); err != nil {
		return a, false, errors.Wrapf(ErrMalformedLine, "bad cpu: %q", line)
	}

	rest := s[rb+1:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return a, false, errors.Wrapf(ErrMalformedLine, "missing timestamp: %q", line)
	}
	if a.TS, err = ParseTimestamp(strings.TrimSpace(rest[:colon])); err != nil {
		return a, false, errors.Wrapf(err, "line %q", line)
	}

	rest = strings.TrimLeft(rest[colon+1:], " \t")
	kind, n, ok := ParseKind(rest)
	if !ok {
		return a, false, errors.Wrapf(ErrUnknownKind, "line %q", line)
	}
	a.Kind = kind
	rest = rest[n:]

	arrow := strings.Index(rest, "=>")
	if arrow < 0 {
		return a, false, errors.Wrapf(ErrMalformedLine, "missing '=>': %q", line)
	}
	if a.From, err = parseSymbol(strings.TrimSpace(rest[:arrow]), tab); err != nil {
		return a, false, errors.Wrapf(err, "line %q", line)
	}
	if a.To, err = parseSymbol(strings.TrimSpace(rest[arrow+2:]), tab); err != nil {
		return a, false, errors.Wrapf(err, "line %q", line)
	}

	return a, true, nil
}

// ParseTimestamp converts "sec.frac" to nanoseconds.
func ParseTimestamp(s string) (uint64, error) {
	secStr, fracStr, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseUint(secStr, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedLine, "bad timestamp %q", s)
	}
	var nsec uint64
	if fracStr != "" {
		if len(fracStr) > 9 {
			fracStr = fracStr[:9]
		}
		fracStr += strings.Repeat("0", 9-len(fracStr))
		if nsec, err = strconv.ParseUint(fracStr, 10, 64); err != nil {
			return 0, errors.Wrapf(ErrMalformedLine, "bad timestamp %q", s)
		}
	}
	return sec*nsecsPerSec + nsec, nil
}

// parseTid accepts both "tid" and "pid/tid".
func parseTid(s string) (int, error) {
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndexAny(s, " \t"); i >= 0 {
		s = s[i+1:]
	}
	return strconv.Atoi(s)
}

// parseSymbol decodes "hexaddr name+0xoff".
func parseSymbol(s string, tab *symtable.Table) (*symtable.Symbol, error) {
	if strings.Contains(s, symtable.UnknownName) {
		return tab.Intern(0, 0, symtable.UnknownName), nil
	}
	addrStr, sym, ok := strings.Cut(s, " ")
	if !ok {
		addrStr = s
	}
	addr, err := strconv.ParseUint(addrStr, 16, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedLine, "bad address %q", addrStr)
	}
	if addr == 0 {
		return tab.Intern(0, 0, symtable.UnknownName), nil
	}
	// Drop a trailing "(dso)" if the trace was produced with dso output.
	if i := strings.Index(sym, " ("); i >= 0 {
		sym = sym[:i]
	}
	sym = strings.TrimSpace(sym)

	name, offset := sym, uint64(0)
	if i := strings.LastIndexByte(sym, '+'); i >= 0 {
		name = sym[:i]
		if offset, err = strconv.ParseUint(sym[i+1:], 0, 32); err != nil {
			return nil, errors.Wrapf(ErrMalformedLine, "bad offset %q", sym)
		}
	}

	return tab.Intern(addr, uint32(offset), name), nil
}

func parseTraceError(s string) (Action, bool, error) {
	if !strings.Contains(s, lostDataMarker) {
		return Action{}, false, nil
	}
	tidMatch := traceErrTidRe.FindStringSubmatch(s)
	timeMatch := traceErrTimeRe.FindStringSubmatch(s)
	if tidMatch == nil || timeMatch == nil {
		return Action{}, false, errors.Wrapf(ErrMalformedLine, "trace error %q", s)
	}
	tid, err := strconv.Atoi(tidMatch[1])
	if err != nil {
		return Action{}, false, errors.Wrapf(ErrMalformedLine, "trace error %q", s)
	}
	ts, err := ParseTimestamp(timeMatch[1])
	if err != nil {
		return Action{}, false, err
	}

	return NewError(tid, ts), true, nil
}

// FormatLine renders an action in the perf script layout ParseLine reads.
func FormatLine(a *Action) string {
	if a.IsError {
		return " instruction trace error type 1 time " + formatTimestamp(a.TS) +
			" cpu -1 pid " + strconv.Itoa(a.Tid) + " tid " + strconv.Itoa(a.Tid) +
			" ip 0 code 8: " + lostDataMarker
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(a.Tid))
	b.WriteString(" [")
	b.WriteString(strconv.Itoa(a.CPU))
	b.WriteString("] ")
	b.WriteString(formatTimestamp(a.TS))
	b.WriteString(":   ")
	b.WriteString(a.Kind.String())
	b.WriteString(" ")
	b.WriteString(a.From.String())
	b.WriteString(" => ")
	b.WriteString(a.To.String())
	return b.String()
}

func formatTimestamp(ts uint64) string {
	frac := strconv.FormatUint(ts%nsecsPerSec, 10)
	return strconv.FormatUint(ts/nsecsPerSec, 10) + "." + strings.Repeat("0", 9-len(frac)) + frac
}
