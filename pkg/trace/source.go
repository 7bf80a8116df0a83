package trace

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

type Format int

const (
	FormatText Format = iota
	FormatCompact
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatCompact:
		return "compact"
	}
	return "unknown"
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return FormatText, nil
	case "compact", "binary":
		return FormatCompact, nil
	}
	return FormatText, errors.Wrapf(ErrUnknownFormat, "%q", s)
}

// SnappySuffix marks trace sources compressed with the snappy framing
// format. They are always decoded whole.
const SnappySuffix = ".sz"

// minLinesPerJob is the number of lines below which a source is not worth
// splitting, per worker.
const minLinesPerJob = 100

// estimatedLineSize is the average size of a perf script branch line.
const estimatedLineSize = 120

// Source is a half-open byte range [Start, End) of a trace file. An End
// of zero means up to the end of the file.
type Source struct {
	Path  string
	Start int64
	End   int64
}

func (s Source) Whole() bool {
	return s.Start == 0 && s.End == 0
}

func (s Source) Snappy() bool {
	return strings.HasSuffix(s.Path, SnappySuffix)
}

func (s Source) validate() error {
	if s.Path == "" {
		return ErrSourcePathEmpty
	}
	if s.Start < 0 || s.End < 0 || (s.End != 0 && s.End < s.Start) {
		return errors.Wrapf(ErrSourceRange, "[%d,%d)", s.Start, s.End)
	}
	if s.Snappy() && !s.Whole() {
		return errors.Wrap(ErrSourceRange, "snappy sources cannot be split")
	}

	return nil
}

// Plan assigns the trace files to parse jobs. Several files are chunks
// already split by the collector and get one job each, like compact and
// snappy sources. A single large text file is split into workers
// line-aligned byte ranges.
func Plan(paths []string, format Format, workers int) ([]Source, error) {
	if len(paths) == 0 {
		return nil, ErrNoSources
	}
	if len(paths) > 1 || format == FormatCompact || workers <= 1 {
		return wholeSources(paths), nil
	}

	src := Source{Path: paths[0]}
	if src.Snappy() {
		return wholeSources(paths), nil
	}
	info, err := os.Stat(src.Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat trace source")
	}
	size := info.Size()
	if size/estimatedLineSize <= int64(minLinesPerJob*workers) {
		return wholeSources(paths), nil
	}

	step := size/int64(workers) + 1
	sources := make([]Source, 0, workers)
	for i := int64(0); i < int64(workers); i++ {
		start := i * step
		end := min((i+1)*step, size)
		if start >= end {
			break
		}
		sources = append(sources, Source{Path: src.Path, Start: start, End: end})
	}

	return sources, nil
}

func wholeSources(paths []string) []Source {
	sources := make([]Source, len(paths))
	for i, path := range paths {
		sources[i] = Source{Path: path}
	}
	return sources
}
