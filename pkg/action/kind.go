package action

import "strings"

// Kind is the branch type perf reports for a sample.
type Kind uint8

const (
	KindCall Kind = iota
	KindReturn
	KindJcc
	KindJmp
	KindTraceStart
	KindTraceEndCall
	KindTraceEndReturn
	KindTraceEndHwInt
	KindTraceEndSyscall
	KindTraceEnd
	KindInt
	KindIret
	KindSyscall
	KindSysret
	KindAsync
	KindHwInt
	KindTxAbrt
	KindVmEntry
	KindVmExit
	kindMax
)

// keywords are the perf script flag strings, indexed by Kind.
var keywords = [...]string{
	KindCall:            "call",
	KindReturn:          "return",
	KindJcc:             "jcc",
	KindJmp:             "jmp",
	KindTraceStart:      "tr strt",
	KindTraceEndCall:    "tr end  call",
	KindTraceEndReturn:  "tr end  return",
	KindTraceEndHwInt:   "tr end  hw int",
	KindTraceEndSyscall: "tr end  syscall",
	KindTraceEnd:        "tr end",
	KindInt:             "int",
	KindIret:            "iret",
	KindSyscall:         "syscall",
	KindSysret:          "sysret",
	KindAsync:           "async",
	KindHwInt:           "hw int",
	KindTxAbrt:          "tx abrt",
	KindVmEntry:         "vmentry",
	KindVmExit:          "vmexit",
}

// byLength holds the kinds ordered by decreasing keyword length so that
// "tr end  call" is matched before "tr end".
var byLength = func() []Kind {
	kinds := make([]Kind, 0, kindMax)
	for k := Kind(0); k < kindMax; k++ {
		kinds = append(kinds, k)
	}
	for i := 1; i < len(kinds); i++ {
		for j := i; j > 0 && len(keywords[kinds[j]]) > len(keywords[kinds[j-1]]); j-- {
			kinds[j], kinds[j-1] = kinds[j-1], kinds[j]
		}
	}
	return kinds
}()

func (k Kind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return keywords[k]
}

func (k Kind) Valid() bool {
	return k < kindMax
}

// ParseKind matches the keyword at the start of s and returns the kind
// and the keyword length.
func ParseKind(s string) (Kind, int, bool) {
	for _, k := range byLength {
		kw := keywords[k]
		if !strings.HasPrefix(s, kw) {
			continue
		}
		// Keywords must end on a word boundary: "int" must not match "intr".
		if len(s) > len(kw) && s[len(kw)] != ' ' && s[len(kw)] != '\t' {
			continue
		}
		return k, len(kw), true
	}
	return kindMax, 0, false
}

// IsJump reports whether the branch is an intra-procedural jump.
func (k Kind) IsJump() bool {
	return k == KindJcc || k == KindJmp
}

// IsCallLike reports whether the branch enters a child frame.
func (k Kind) IsCallLike() bool {
	switch k {
	case KindCall, KindTraceEndCall, KindHwInt, KindTraceEndHwInt, KindTraceEndSyscall:
		return true
	}
	return false
}

// IsReturnLike reports whether the branch leaves the current frame.
func (k Kind) IsReturnLike() bool {
	switch k {
	case KindReturn, KindTraceEndReturn, KindIret:
		return true
	}
	return false
}

// IsEntry reports whether the branch can enter a function at its start.
func (k Kind) IsEntry() bool {
	return k == KindCall || k == KindTraceStart
}

// IsExit reports whether the branch can leave a function.
func (k Kind) IsExit() bool {
	return k == KindReturn || k == KindTraceEndReturn
}
