package trace

import (
	"bufio"
	"io"
	"math"
	"os"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/maxgio92/funclat/pkg/action"
	"github.com/maxgio92/funclat/pkg/compact"
	"github.com/maxgio92/funclat/pkg/symtable"
)

const readBufferSize = 1 << 20

// ParseJob decodes one trace source into per-thread action sets. It owns
// the symbol table its actions point into, so the sets stay valid until
// Release.
type ParseJob struct {
	symbols   *symtable.Table
	threads   map[int]*action.ActionSet
	startTime uint64
	actions   uint64
	err       error

	*ParseJobOptions
}

func NewParseJob(opts ...ParseJobOption) *ParseJob {
	job := &ParseJob{
		ParseJobOptions: &ParseJobOptions{
			logger: log.Nop(),
		},
		symbols:   symtable.NewTable(),
		threads:   make(map[int]*action.ActionSet),
		startTime: math.MaxUint64,
	}
	for _, opt := range opts {
		opt(job)
	}

	return job
}

// Execute decodes the source. The outcome is reported by Err.
func (j *ParseJob) Execute() {
	start := time.Now()
	j.err = j.run()
	if j.err != nil {
		j.logger.Error().Err(j.err).Int("job", j.id).Str("source", j.source.Path).Msg("failed to decode trace")
		return
	}
	j.logger.Debug().
		Int("job", j.id).
		Str("source", j.source.Path).
		Int64("start", j.source.Start).
		Int64("end", j.source.End).
		Int("threads", len(j.threads)).
		Uint64("actions", j.actions).
		Dur("elapsed", time.Since(start)).
		Msg("trace chunk decoded")
}

func (j *ParseJob) run() error {
	if err := j.source.validate(); err != nil {
		return err
	}
	if j.filter == nil {
		return ErrFilterNil
	}

	f, err := os.Open(j.source.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open trace source")
	}
	defer f.Close()

	var r io.Reader = f
	if j.source.Snappy() {
		r = snappy.NewReader(f)
	}

	switch j.format {
	case FormatText:
		err = j.decodeText(f, r)
	case FormatCompact:
		err = j.decodeCompact(r)
	default:
		err = errors.Wrapf(ErrUnknownFormat, "%d", j.format)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to decode %s", j.source.Path)
	}

	for _, set := range j.threads {
		set.Sort(j.outOfOrder)
	}

	return nil
}

// decodeText decodes the lines starting inside the byte range of the job.
// A line that starts before the range belongs to the previous job.
func (j *ParseJob) decodeText(f *os.File, r io.Reader) error {
	var pos int64
	skip := !j.source.Snappy() && j.source.Start > 0
	if skip {
		pos = j.source.Start - 1
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return errors.Wrap(err, "failed to seek trace source")
		}
	}
	br := bufio.NewReaderSize(r, readBufferSize)

	if skip {
		skipped, err := br.ReadString('\n')
		pos += int64(len(skipped))
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to read trace source")
		}
	}

	for j.source.End == 0 || pos < j.source.End {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			if derr := j.decodeLine(line); derr != nil {
				return errors.Wrapf(derr, "at offset %d", pos)
			}
			pos += int64(len(line))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to read trace source")
		}
	}

	return nil
}

func (j *ParseJob) decodeLine(line string) error {
	if !j.filter.Mentions(line) {
		return nil
	}
	a, ok, err := action.ParseLine(line, j.symbols)
	if err != nil {
		return err
	}
	if ok {
		j.add(a)
	}

	return nil
}

func (j *ParseJob) decodeCompact(r io.Reader) error {
	return compact.NewReader(r).ForEach(func(rec *compact.Record) error {
		switch rec.Tag {
		case compact.TagSymbol:
			s := rec.Symbol
			if _, err := j.symbols.Register(s.ID, s.Address, s.Offset, s.Name); err != nil {
				return err
			}
		case compact.TagBranch:
			a, err := j.branchAction(&rec.Branch)
			if err != nil {
				return err
			}
			j.add(a)
		case compact.TagError:
			if rec.Error.Code != compact.LostDataCode {
				return nil
			}
			j.add(action.NewError(int(rec.Error.Tid), rec.Error.TS))
		}
		return nil
	})
}

func (j *ParseJob) branchAction(b *compact.Branch) (action.Action, error) {
	a := action.Action{
		Kind: action.Kind(b.Kind),
		TS:   b.TS,
		Tid:  int(b.Tid),
	}
	if !a.Kind.Valid() {
		return a, errors.Wrapf(action.ErrUnknownKind, "kind %d", b.Kind)
	}
	var err error
	if a.From, err = j.symbols.Get(b.FromID); err != nil {
		return a, err
	}
	if a.To, err = j.symbols.Get(b.ToID); err != nil {
		return a, err
	}

	return a, nil
}

func (j *ParseJob) add(a action.Action) {
	if !j.filter.Tag(&a) {
		return
	}
	if a.IsError && j.verbose {
		j.logger.Debug().Int("tid", a.Tid).Uint64("ts", a.TS).Msg("thread lost trace data")
	}

	set, ok := j.threads[a.Tid]
	if !ok {
		set = action.NewActionSet(a.Tid)
		j.threads[a.Tid] = set
	}
	set.Add(a)
	j.startTime = min(j.startTime, a.TS)
	j.actions++
}

func (j *ParseJob) ID() int {
	return j.id
}

func (j *ParseJob) Err() error {
	return j.err
}

// Threads returns the decoded action sets by thread id.
func (j *ParseJob) Threads() map[int]*action.ActionSet {
	return j.threads
}

func (j *ParseJob) Thread(tid int) (*action.ActionSet, bool) {
	set, ok := j.threads[tid]
	return set, ok
}

// StartTime returns the earliest decoded timestamp, or MaxUint64 when the
// job decoded nothing.
func (j *ParseJob) StartTime() uint64 {
	return j.startTime
}

// Actions returns the number of kept actions.
func (j *ParseJob) Actions() uint64 {
	return j.actions
}

// Release drops the decoded actions and the symbols they point to.
func (j *ParseJob) Release() {
	j.threads = nil
	j.symbols = nil
}
