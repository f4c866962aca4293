// Package syncutil holds the concurrency primitives the dispatcher uses.
package syncutil

import (
	"context"
	"sync"
)

// WorkerGroup runs functions in goroutines, at most limit at a time.
type WorkerGroup struct {
	wg    sync.WaitGroup
	slots chan struct{}
}

// NewWorkerGroup returns a group that runs at most limit functions at once.
// A limit below one is treated as one.
func NewWorkerGroup(limit int) *WorkerGroup {
	return &WorkerGroup{slots: make(chan struct{}, max(limit, 1))}
}

// Go waits for a free slot and runs fn in a new goroutine. It returns
// ctx.Err() without running fn if ctx ends first.
func (g *WorkerGroup) Go(ctx context.Context, fn func()) error {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	g.wg.Add(1)
	go func() {
		defer func() {
			<-g.slots
			g.wg.Done()
		}()
		fn()
	}()
	return nil
}

// Wait blocks until every started function has returned.
func (g *WorkerGroup) Wait() {
	g.wg.Wait()
}

// KeyedMutex is a set of non-blocking locks addressed by key. Callers never
// wait: a held key is reported busy, so a stalled holder cannot pin the
// goroutines of other callers. Released keys are dropped from the map.
type KeyedMutex struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// TryLock acquires key if nobody holds it. On success it returns the
// function releasing it.
func (k *KeyedMutex) TryLock(key string) (unlock func(), ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, busy := k.held[key]; busy {
		return nil, false
	}
	if k.held == nil {
		k.held = make(map[string]struct{})
	}
	k.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			delete(k.held, key)
			k.mu.Unlock()
		})
	}, true
}
