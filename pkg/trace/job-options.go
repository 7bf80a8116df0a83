package trace

import (
	log "github.com/rs/zerolog"

	"github.com/maxgio92/funclat/pkg/action"
)

type ParseJobOptions struct {
	id         int
	source     Source
	format     Format
	filter     *action.Filter
	outOfOrder bool
	verbose    bool

	logger log.Logger
}

type ParseJobOption func(*ParseJob)

func WithJobID(id int) ParseJobOption {
	return func(j *ParseJob) {
		j.id = id
	}
}

func WithJobSource(source Source) ParseJobOption {
	return func(j *ParseJob) {
		j.source = source
	}
}

func WithJobFormat(format Format) ParseJobOption {
	return func(j *ParseJob) {
		j.format = format
	}
}

func WithJobFilter(filter *action.Filter) ParseJobOption {
	return func(j *ParseJob) {
		j.filter = filter
	}
}

// WithJobOutOfOrder makes the job sort the normal actions of every thread
// by timestamp, for trace modes that capture records out of order.
func WithJobOutOfOrder(outOfOrder bool) ParseJobOption {
	return func(j *ParseJob) {
		j.outOfOrder = outOfOrder
	}
}

func WithJobVerbose(verbose bool) ParseJobOption {
	return func(j *ParseJob) {
		j.verbose = verbose
	}
}

func WithJobLogger(logger log.Logger) ParseJobOption {
	return func(j *ParseJob) {
		j.logger = logger
	}
}
