package latency

import "math"

// Interval is an inclusive range of nanoseconds.
type Interval struct {
	Min uint64 `yaml:"min" json:"min"`
	Max uint64 `yaml:"max" json:"max"`
}

// FullInterval accepts every value.
var FullInterval = Interval{Min: 0, Max: math.MaxUint64}

func (i Interval) Contains(v uint64) bool {
	return v >= i.Min && v <= i.Max
}

func (i Interval) IsFull() bool {
	return i == FullInterval
}

// Shift moves the interval by base, saturating at MaxUint64.
func (i Interval) Shift(base uint64) Interval {
	return Interval{Min: saturatingAdd(i.Min, base), Max: saturatingAdd(i.Max, base)}
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// Params drive how samples are committed. They are shared read-only by
// every thread analysis of a run.
type Params struct {
	// LatencyInterval drops samples whose latency falls outside it.
	LatencyInterval Interval
	// TimeInterval drops samples whose call timestamp falls outside it.
	TimeInterval Interval
	// AncestorInterval drops ancestor windows whose duration falls outside it.
	AncestorInterval Interval

	// Timeline turns samples into averaged points every TimelineUnit
	// samples, with timestamps relative to TimeOrigin.
	Timeline     bool
	TimelineUnit uint32
	TimeOrigin   uint64

	// CodeBlock records spans of the target's own code instead of self time.
	CodeBlock bool
	// Srcline qualifies child keys with their call site.
	Srcline bool
}

func DefaultParams() *Params {
	return &Params{
		LatencyInterval:  FullInterval,
		TimeInterval:     FullInterval,
		AncestorInterval: FullInterval,
		TimelineUnit:     1,
	}
}
