package report

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"golang.org/x/exp/slices"

	"github.com/maxgio92/funclat/pkg/latency"
	"github.com/maxgio92/funclat/pkg/stat"
)

const (
	XlsxLatencySheetName  = "Latency"
	XlsxChildrenSheetName = "Children"
	XlsxTimelineSheetName = "Timeline"

	allCallers = "*"
)

func cellName(col int, row int) (name string) {
	columnName, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return
	}
	name, err = excelize.JoinCellName(columnName, row)
	if err != nil {
		return
	}
	return
}

type sheet struct {
	f      *excelize.File
	name   string
	row    int
	header int
}

func (s *sheet) writeRow(values ...any) {
	for i, v := range values {
		_ = s.f.SetCellValue(s.name, cellName(i+1, s.row), v)
	}
	s.row++
}

func (s *sheet) writeHeader(values ...any) {
	s.writeRow(values...)
	_ = s.f.SetCellStyle(s.name, cellName(1, s.row-1), cellName(len(values), s.row-1), s.header)
}

// WriteXlsx writes the report as a workbook: the latency distributions by
// caller, the children by caller, and the timeline when there is one.
func (r *LatencyReport) WriteXlsx(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
	})
	if err := f.SetSheetName("Sheet1", XlsxLatencySheetName); err != nil {
		return errors.Wrap(err, "failed to create latency sheet")
	}
	lat := &sheet{f: f, name: XlsxLatencySheetName, row: 1, header: headerStyle}
	r.writeLatencySheet(lat)

	if _, err := f.NewSheet(XlsxChildrenSheetName); err != nil {
		return errors.Wrap(err, "failed to create children sheet")
	}
	children := &sheet{f: f, name: XlsxChildrenSheetName, row: 1, header: headerStyle}
	r.writeChildrenSheet(children)

	if len(r.Timeline) > 0 {
		if _, err := f.NewSheet(XlsxTimelineSheetName); err != nil {
			return errors.Wrap(err, "failed to create timeline sheet")
		}
		timeline := &sheet{f: f, name: XlsxTimelineSheetName, row: 1, header: headerStyle}
		r.writeTimelineSheet(timeline)
	}

	_ = f.SetColWidth(XlsxLatencySheetName, "A", "A", 25)
	_ = f.SetColWidth(XlsxChildrenSheetName, "A", "B", 25)
	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "failed to write xlsx report")
	}

	return nil
}

func (r *LatencyReport) writeLatencySheet(s *sheet) {
	s.writeHeader("caller", "low(ns)", "high(ns)", "cnt", "sched")
	write := func(caller string, l *latency.Latency) {
		last := max(len(l.Target.Slots), len(l.Sched.Slots))
		for i := 0; i < last; i++ {
			lo, hi := stat.SlotRange(i)
			s.writeRow(caller, lo, hi, slotCount(&l.Target, i), slotCount(&l.Sched, i))
		}
	}
	write(allCallers, &r.Stat.Latency)
	for _, name := range r.Stat.CallerNames() {
		if name != latency.UnknownCaller {
			write(name, &r.Stat.Callers[name].Latency)
		}
	}
}

func (r *LatencyReport) writeChildrenSheet(s *sheet) {
	header := []any{"caller", "function", "cnt", "avg(ns)", "total(ns)"}
	if r.Offcpu {
		header = append(header, "sched_time", "cpu_pct(%)")
	}
	s.writeHeader(append(header, "srcline")...)

	write := func(caller string, c *latency.LatencyChild) {
		var sched, oncpu *stat.Bucket
		if r.Offcpu {
			sched, oncpu = schedColumns(c, r.Duration)
		}
		for _, key := range c.Target.Keys() {
			e := c.Target.Elements[key]
			row := []any{caller, key, e.Count, e.Value(), e.Total}
			if r.Offcpu {
				row = append(row, bucketValue(sched, key), bucketValue(oncpu, key))
			}
			s.writeRow(append(row, r.Srclines[key])...)
		}
	}
	write(allCallers, &r.Stat.Children)
	for _, name := range r.Stat.CallerNames() {
		write(name, &r.Stat.Callers[name].Children)
	}
}

func (r *LatencyReport) writeTimelineSheet(s *sheet) {
	s.writeHeader("tid", "x(us)", "y(us)")
	tids := make([]int, 0, len(r.Timeline))
	for tid := range r.Timeline {
		tids = append(tids, tid)
	}
	slices.Sort(tids)
	for _, tid := range tids {
		for _, pt := range r.Timeline[tid] {
			s.writeRow(tid, pt.X, pt.Y)
		}
	}
}
