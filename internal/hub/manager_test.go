package hub

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingManager(d Dialer) (*Manager, *int32) {
	var built int32
	m := NewManager(Options{Dialer: d})
	m.build = func(o Options) *Adapter {
		atomic.AddInt32(&built, 1)
		return newAdapter(o)
	}
	return m, &built
}

func TestManager_ConstructsOnceUnderConcurrency(t *testing.T) {
	m, built := countingManager(&fakeDialer{})
	t.Cleanup(func() { _ = m.Close() })

	const callers = 64
	got := make([]*Adapter, callers)
	var start, wg sync.WaitGroup
	start.Add(1)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start.Wait()
			got[i] = m.Adapter()
		}(i)
	}
	start.Done()
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(built))
	for _, a := range got {
		require.Same(t, got[0], a)
	}
	assert.Same(t, got[0].Gateway(), m.Gateway())
}

func TestManager_ResetBuildsFreshAdapter(t *testing.T) {
	d := &fakeDialer{}
	m, built := countingManager(d)
	t.Cleanup(func() { _ = m.Close() })

	first := m.Adapter()
	connectAndWait(t, first)

	require.NoError(t, m.Reset())
	assert.False(t, first.IsConnected())
	assert.True(t, d.last().isClosed())

	second := m.Adapter()
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), atomic.LoadInt32(built))
	require.NoError(t, m.Reset())
	require.NoError(t, m.Reset())
}

func TestManager_CloseWithoutAdapter(t *testing.T) {
	m := NewManager(Options{})
	assert.NoError(t, m.Close())
}
