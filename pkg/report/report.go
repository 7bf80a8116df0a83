package report

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/maxgio92/funclat/pkg/analyzer"
	"github.com/maxgio92/funclat/pkg/latency"
)

// SourceLines resolves child keys to the source line of their call site.
type SourceLines interface {
	Get(key string) (string, bool)
}

// LatencyReport is the outcome of an analysis, ready to be printed or
// exported.
type LatencyReport struct {
	Target string `json:"target"`
	Binary string `json:"binary,omitempty"`
	Offcpu bool   `json:"offcpu"`
	// Duration is the traced time in ns the cpu percent is computed on.
	Duration uint64 `json:"duration_ns"`
	Actions  uint64 `json:"actions"`

	Stat     *latency.FuncStat               `json:"stat"`
	Status   latency.Status                  `json:"status"`
	Timeline map[int][]latency.TimelinePoint `json:"timeline,omitempty"`
	Srclines map[string]string               `json:"srclines,omitempty"`

	// TimeStart is the timestamp timeline points are relative to.
	TimeStart uint64 `json:"time_start"`

	lines SourceLines
}

type LatencyReportOption func(*LatencyReport)

func NewLatencyReport(opts ...LatencyReportOption) *LatencyReport {
	report := &LatencyReport{
		Stat: latency.NewFuncStat(nil),
	}
	for _, opt := range opts {
		opt(report)
	}
	if report.Duration == 0 {
		report.Duration = report.Status.TraceTime
	}
	if report.lines != nil {
		report.resolveSourceLines()
	}

	return report
}

func WithReportTarget(target string) LatencyReportOption {
	return func(r *LatencyReport) {
		r.Target = target
	}
}

func WithReportBinary(binary string) LatencyReportOption {
	return func(r *LatencyReport) {
		r.Binary = binary
	}
}

func WithReportOffcpu(offcpu bool) LatencyReportOption {
	return func(r *LatencyReport) {
		r.Offcpu = offcpu
	}
}

// WithReportDuration sets the traced time in ns. It defaults to the time
// spanned by the decoded actions.
func WithReportDuration(ns uint64) LatencyReportOption {
	return func(r *LatencyReport) {
		r.Duration = ns
	}
}

func WithReportResult(result *analyzer.Result) LatencyReportOption {
	return func(r *LatencyReport) {
		r.Stat = result.Stat
		r.Status = result.Status
		r.Actions = result.Actions
		r.TimeStart = result.Params.TimeOrigin
		if !result.Params.TimeInterval.IsFull() {
			r.TimeStart = result.Params.TimeInterval.Min
		}
		if !result.Params.Timeline {
			return
		}
		r.Timeline = make(map[int][]latency.TimelinePoint, len(result.Threads))
		for tid, s := range result.Threads {
			if len(s.Timeline) > 0 {
				r.Timeline[tid] = s.Timeline
			}
		}
	}
}

// WithReportSourceLines resolves the call sites of the child keys that
// carry one.
func WithReportSourceLines(lines SourceLines) LatencyReportOption {
	return func(r *LatencyReport) {
		r.lines = lines
	}
}

func (r *LatencyReport) resolveSourceLines() {
	r.Srclines = make(map[string]string)
	for key := range r.Stat.Children.Target.Elements {
		if !strings.Contains(key, "!") {
			continue
		}
		if line, ok := r.lines.Get(key); ok {
			r.Srclines[key] = line
		}
	}
}

func (r *LatencyReport) WriteReport(w io.Writer) error {
	encoder := json.NewEncoder(w)
	return encoder.Encode(r)
}
