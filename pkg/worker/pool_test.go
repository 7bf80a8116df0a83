package worker_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/funclat/pkg/worker"
)

func TestPoolStartValidation(t *testing.T) {
	p := worker.NewPool()
	require.ErrorIs(t, p.Start(0), worker.ErrPoolSize)
	require.ErrorIs(t, p.AddJob(worker.JobFunc(func() {}), 0), worker.ErrPoolNotRunning)
}

func TestPoolRunsAllJobs(t *testing.T) {
	p := worker.NewPool()
	require.NoError(t, p.Start(4))
	defer p.Stop()
	require.Equal(t, 4, p.Size())

	var n atomic.Int64
	for i := 0; i < 1000; i++ {
		require.NoError(t, p.AddJob(worker.JobFunc(func() { n.Add(1) }), uint64(i)))
	}
	p.WaitAllIdle()
	require.Equal(t, int64(1000), n.Load())

	// The pool is reusable after a barrier.
	for i := 0; i < 10; i++ {
		require.NoError(t, p.AddJob(worker.JobFunc(func() { n.Add(1) }), uint64(i)))
	}
	p.WaitAllIdle()
	require.Equal(t, int64(1010), n.Load())
}

func TestPoolKeyOrdering(t *testing.T) {
	p := worker.NewPool()
	require.NoError(t, p.Start(3))
	defer p.Stop()

	var mu sync.Mutex
	seen := make(map[uint64][]int)
	for i := 0; i < 300; i++ {
		key := uint64(i % 3)
		i := i
		require.NoError(t, p.AddJob(worker.JobFunc(func() {
			mu.Lock()
			seen[key] = append(seen[key], i)
			mu.Unlock()
		}), key))
	}
	p.WaitAllIdle()

	for key, order := range seen {
		require.Len(t, order, 100)
		for j := 1; j < len(order); j++ {
			require.Less(t, order[j-1], order[j], "worker %d ran jobs out of order", key)
		}
	}
}

type releasable struct {
	released bool
}

func (r *releasable) Release() {
	r.released = true
}

func TestPoolStopDrainsQueue(t *testing.T) {
	p := worker.NewPool()
	require.NoError(t, p.Start(1))

	r := &releasable{}
	block := make(chan struct{})
	require.NoError(t, p.AddJob(worker.JobFunc(func() { <-block }), 0))
	require.NoError(t, p.AddJob(&worker.ReleaseJob{Target: r}, 0))
	close(block)

	p.Stop()
	require.True(t, r.released)
	require.Zero(t, p.Size())
}
