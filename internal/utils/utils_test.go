package utils_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/funclat/internal/utils"
)

func TestHash(t *testing.T) {
	require.NotEqual(t, utils.Hash("foo"), utils.Hash("bar"),
		"Hash should differ for different inputs",
	)

	require.Equal(
		t, utils.Hash("baz"), utils.Hash("baz"),
		"Hash should be deterministic for the same input",
	)

	require.Equal(t, utils.Hash("4242"), utils.HashInt(4242))
}

func TestRWMutex(t *testing.T) {
	m := utils.NewRWMutex(make(map[string]int))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, unlock := m.Lock()
			v["count"]++
			unlock.Unlock()

			v, runlock := m.RLock()
			_ = v["count"]
			runlock.RUnlock()
		}(i)
	}
	wg.Wait()

	v, runlock := m.RLock()
	defer runlock.RUnlock()
	require.Equal(t, 16, v["count"])
}
