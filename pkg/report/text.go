package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/exp/slices"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/maxgio92/funclat/internal/output"
	"github.com/maxgio92/funclat/pkg/latency"
	"github.com/maxgio92/funclat/pkg/stat"
)

const (
	starsWidth   = 40
	minLineWidth = 80
	maxLineWidth = 160
	keyHeader    = "function"
)

type column struct {
	name string
	dist *stat.Distribution
}

// textPrinter renders a report on a buffered writer. Write errors are
// returned by the final Flush.
type textPrinter struct {
	w     *bufio.Writer
	p     *message.Printer
	width int
	r     *LatencyReport
}

func newTextPrinter(w io.Writer, r *LatencyReport) *textPrinter {
	return &textPrinter{
		w:     bufio.NewWriter(w),
		p:     message.NewPrinter(language.English),
		width: max(minLineWidth, min(output.Width(), maxLineWidth)),
		r:     r,
	}
}

// PrintSummary prints the latency histograms of the target and of its
// children, globally and for each caller.
func (r *LatencyReport) PrintSummary(w io.Writer) error {
	t := newTextPrinter(w, r)

	t.line('=')
	t.title(fmt.Sprintf("Histogram - Latency of [%s]:", r.Target))
	t.latency(&r.Stat.Latency)
	if r.Offcpu {
		var each uint64
		if r.Stat.SchedCount > 0 {
			each = r.Stat.Latency.Sched.Total / r.Stat.SchedCount
		}
		t.p.Fprintf(t.w, "sched total: %d, sched each time: %d ns\n", r.Stat.SchedCount, each)
	}

	t.line('-')
	t.title(fmt.Sprintf("Histogram - Child functions's Latency of [%s]:", r.Target))
	t.children(&r.Stat.Children)

	for _, name := range r.Stat.CallerNames() {
		caller := r.Stat.Callers[name]
		t.line('=')
		if name != latency.UnknownCaller {
			t.title(fmt.Sprintf("Histogram - Latency of [%s] called from [%s]:", r.Target, name))
			t.latency(&caller.Latency)
			t.line('-')
		}
		t.title(fmt.Sprintf("Histogram - Child functions's Latency of [%s] called from [%s]:", r.Target, name))
		t.children(&caller.Children)
	}
	t.line('=')
	t.status()

	return t.w.Flush()
}

// PrintTimeline prints the timeline points of each thread.
func (r *LatencyReport) PrintTimeline(w io.Writer) error {
	t := newTextPrinter(w, r)

	tids := make([]int, 0, len(r.Timeline))
	for tid := range r.Timeline {
		tids = append(tids, tid)
	}
	slices.Sort(tids)

	for _, tid := range tids {
		points := r.Timeline[tid]
		t.title(fmt.Sprintf("\nThread %d:", tid))
		fmt.Fprintf(t.w, "start_timestamp: %d\n", r.TimeStart)

		var top float64
		for _, pt := range points {
			top = max(top, pt.Y)
		}
		fmt.Fprintf(t.w, "%14s %14s  distribution\n", "x(us)", "y(us)")
		for _, pt := range points {
			fmt.Fprintf(t.w, "%14.3f %14.3f |%s|\n", pt.X, pt.Y,
				output.Stars(uint64(pt.Y*1000), uint64(top*1000), starsWidth))
		}
	}

	return t.w.Flush()
}

func (t *textPrinter) line(c byte) {
	fmt.Fprintf(t.w, "\n%s\n", strings.Repeat(string(c), t.width))
}

func (t *textPrinter) title(title string) {
	fmt.Fprintln(t.w, title)
}

func (t *textPrinter) latency(l *latency.Latency) {
	cols := []column{{name: "cnt", dist: &l.Target}}
	if t.r.Offcpu {
		cols = append(cols, column{name: "sched", dist: &l.Sched})
	}
	t.distributions("ns", cols)

	avg, cnt := l.Target.Avg(), l.Target.Count
	t.p.Fprintf(t.w, "trace count: %d, average latency: %d ns\n", cnt, avg)
	if !t.r.Offcpu {
		return
	}
	var schedAvg uint64
	if cnt > 0 {
		schedAvg = l.Sched.Total / cnt
	}
	var cpuPct uint64
	if t.r.Duration > 0 && avg > schedAvg {
		cpuPct = (avg - schedAvg) * cnt * 100 / t.r.Duration
	}
	t.p.Fprintf(t.w, "sched count: %d, sched latency: %d ns, cpu percent: %d %%\n",
		l.Sched.Count, schedAvg, cpuPct)
}

// distributions prints log2 histograms side by side.
func (t *textPrinter) distributions(unit string, cols []column) {
	last := -1
	for _, c := range cols {
		for i, v := range c.dist.Slots {
			if v > 0 {
				last = max(last, i)
			}
		}
	}
	if last < 0 {
		fmt.Fprintln(t.w, "no samples")
		return
	}

	rangeWidth := 10
	if last > 32 {
		rangeWidth = 20
	}
	stars := starsWidth / len(cols)

	fmt.Fprintf(t.w, "%*s%-*s :", rangeWidth-5, "", rangeWidth+9, unit)
	for _, c := range cols {
		fmt.Fprintf(t.w, " %-8s %-*s ", c.name, stars+1, "distribution")
	}
	fmt.Fprintln(t.w)

	for i := 0; i <= last; i++ {
		lo, hi := stat.SlotRange(i)
		fmt.Fprintf(t.w, "%*d -> %-*d :", rangeWidth, lo, rangeWidth, hi)
		for _, c := range cols {
			v := slotCount(c.dist, i)
			fmt.Fprintf(t.w, " %-8d |%s|", v, output.Stars(v, c.dist.MaxSlotCount(), stars))
		}
		fmt.Fprintln(t.w)
	}
}

func slotCount(d *stat.Distribution, i int) uint64 {
	if i < len(d.Slots) {
		return d.Slots[i]
	}
	return 0
}

// children prints the latency of the children, by decreasing total. With
// off-cpu tracking, the average time spent scheduled out and the share of
// cpu time are added.
func (t *textPrinter) children(c *latency.LatencyChild) {
	target := c.Target
	keys := target.Keys()
	if len(keys) == 0 {
		fmt.Fprintln(t.w, "no samples")
		return
	}

	var sched, oncpu *stat.Bucket
	if t.r.Offcpu {
		sched, oncpu = schedColumns(c, t.r.Duration)
	}

	keyWidth := len(keyHeader)
	for _, key := range keys {
		keyWidth = max(keyWidth, len(key))
	}

	fmt.Fprintf(t.w, "%-*s : %-10s %-12s %-*s", keyWidth, keyHeader, "cnt", "avg(ns)", starsWidth+2, "distribution")
	if t.r.Offcpu {
		fmt.Fprintf(t.w, " %-12s %-10s", sched.Name, oncpu.Name)
	}
	if len(t.r.Srclines) > 0 {
		fmt.Fprint(t.w, " srcline")
	}
	fmt.Fprintln(t.w)

	top := target.MaxTotal()
	for _, key := range keys {
		e := target.Elements[key]
		t.p.Fprintf(t.w, "%-*s : %-10d %-12d |%s|", keyWidth, key, e.Count, e.Value(),
			output.Stars(e.Total, top, starsWidth))
		if t.r.Offcpu {
			fmt.Fprintf(t.w, " %-12d %-10d", bucketValue(sched, key), bucketValue(oncpu, key))
		}
		if line, ok := t.r.Srclines[key]; ok {
			fmt.Fprintf(t.w, " %s", line)
		}
		fmt.Fprintln(t.w)
	}
}

// schedColumns returns the average time each child spent scheduled out,
// and the percent of duration each child spent on cpu.
func schedColumns(c *latency.LatencyChild, duration uint64) (*stat.Bucket, *stat.Bucket) {
	sched := c.Sched.Clone()
	sched.Name = "sched_time"
	sched.SetCountFrom(c.Target)

	oncpu := stat.NewBucket("cpu_pct(%)")
	oncpu.AddBucket(c.Target)
	oncpu.SubBucket(c.Sched)
	oncpu.SetCount(1)
	oncpu.SetScale(max(duration/100, 1))

	return sched, oncpu
}

func bucketValue(b *stat.Bucket, key string) uint64 {
	if e, ok := b.Get(key); ok {
		return e.Value()
	}
	return 0
}

func (t *textPrinter) status() {
	s := t.r.Status
	t.p.Fprintf(t.w, "actions: %d, trace time: %d ns, missed time: %d ns, lost data: %d, inconsistencies: %d\n",
		t.r.Actions, s.TraceTime, s.MissedTime, s.LostMarkers, s.Inconsistencies)
	if s.AncestorCalls > 0 || s.AncestorReturns > 0 {
		t.p.Fprintf(t.w, "ancestor calls: %d, ancestor returns: %d\n", s.AncestorCalls, s.AncestorReturns)
	}
}
