package worker

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
)

var (
	ErrPoolSize       = errors.New("pool size must be positive")
	ErrPoolNotRunning = errors.New("pool is not running")
)

// Job is a unit of work. Results are left in the job itself and read by
// the caller after WaitAllIdle.
type Job interface {
	Execute()
}

// JobFunc adapts a function to the Job interface.
type JobFunc func()

func (f JobFunc) Execute() {
	f()
}

// Releaser frees the memory held by a finished job.
type Releaser interface {
	Release()
}

// ReleaseJob releases another job's results on a worker.
type ReleaseJob struct {
	Target Releaser
}

func (j *ReleaseJob) Execute() {
	if j.Target != nil {
		j.Target.Release()
	}
}

type PoolOptions struct {
	logger log.Logger
}

type PoolOption func(*Pool)

func WithPoolLogger(logger log.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// Pool is a fixed set of workers, each with its own FIFO queue. A job is
// queued on the worker selected by its routing key: jobs sharing a key run
// in submission order, and nothing is stolen between workers.
type Pool struct {
	mu      sync.Mutex
	workers []*worker
	*PoolOptions
}

func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		PoolOptions: &PoolOptions{
			logger: log.Nop(),
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start launches n workers. Starting a running pool is a no-op.
func (p *Pool) Start(n int) error {
	if n <= 0 {
		return errors.Wrapf(ErrPoolSize, "got %d", n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workers != nil {
		return nil
	}

	p.logger.Debug().Int("workers", n).Msg("starting parallel workers")
	p.workers = make([]*worker, n)
	for i := range p.workers {
		p.workers[i] = newWorker()
		go p.workers[i].run()
	}

	return nil
}

// Size returns the number of running workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.workers)
}

// AddJob queues job on worker key mod Size.
func (p *Pool) AddJob(job Job, key uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.workers) == 0 {
		return ErrPoolNotRunning
	}
	p.workers[key%uint64(len(p.workers))].add(job)

	return nil
}

// WaitAllIdle blocks until every worker has an empty queue and no job in
// progress.
func (p *Pool) WaitAllIdle() {
	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()

	for _, w := range workers {
		w.waitIdle()
	}
}

// Stop lets the workers drain their queues, then terminates them.
func (p *Pool) Stop() {
	p.mu.Lock()
	workers := p.workers
	p.workers = nil
	p.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}
	if len(workers) > 0 {
		p.logger.Debug().Int("workers", len(workers)).Msg("parallel workers stopped")
	}
}

type worker struct {
	mu       sync.Mutex
	cond     *sync.Cond
	jobs     []Job
	busy     bool
	stopping bool
	done     chan struct{}
}

func newWorker() *worker {
	w := &worker{done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)

	return w
}

func (w *worker) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.jobs) == 0 && !w.stopping {
			w.busy = false
			w.cond.Broadcast()
			w.cond.Wait()
		}
		if len(w.jobs) == 0 {
			w.busy = false
			w.cond.Broadcast()
			w.mu.Unlock()
			return
		}
		job := w.jobs[0]
		w.jobs[0] = nil
		w.jobs = w.jobs[1:]
		w.busy = true
		w.mu.Unlock()

		job.Execute()
	}
}

func (w *worker) add(job Job) {
	w.mu.Lock()
	w.jobs = append(w.jobs, job)
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (w *worker) waitIdle() {
	w.mu.Lock()
	for len(w.jobs) > 0 || w.busy {
		w.cond.Wait()
	}
	w.mu.Unlock()
}

func (w *worker) stop() {
	w.mu.Lock()
	w.stopping = true
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
}
