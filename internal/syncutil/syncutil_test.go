package syncutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerGroup_Limit(t *testing.T) {
	const limit = 3
	g := NewWorkerGroup(limit)

	var running, peak atomic.Int32
	for range 20 {
		err := g.Go(context.Background(), func() {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		})
		require.NoError(t, err)
	}
	g.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Equal(t, int32(0), running.Load())
}

func TestWorkerGroup_CanceledContext(t *testing.T) {
	g := NewWorkerGroup(1)
	release := make(chan struct{})
	require.NoError(t, g.Go(context.Background(), func() { <-release }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := g.Go(ctx, func() { ran = true })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	g.Wait()
	assert.False(t, ran)
}

func TestKeyedMutex_TryLock(t *testing.T) {
	var k KeyedMutex

	unlock, ok := k.TryLock("user")
	require.True(t, ok)

	_, ok = k.TryLock("user")
	assert.False(t, ok, "held key must be reported busy")

	unlockOther, ok := k.TryLock("other")
	require.True(t, ok, "keys are independent")
	unlockOther()

	unlock()
	unlock()

	unlock, ok = k.TryLock("user")
	require.True(t, ok, "released key must be free again")
	unlock()
	assert.Empty(t, k.held)
}

func TestKeyedMutex_ExclusiveUnderContention(t *testing.T) {
	var k KeyedMutex
	var inside, peak, acquired atomic.Int32

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, ok := k.TryLock("user")
			if !ok {
				return
			}
			acquired.Add(1)
			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.GreaterOrEqual(t, acquired.Load(), int32(1))
}
