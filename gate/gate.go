// Package gate provides the binary semaphore that serializes every operation
// on the simulator state.
package gate

import "context"

// Gate is a binary semaphore held by one operation at a time. Waiting for it
// can be abandoned through a context, and releasing a free gate panics with
// an error that can be recovered.
type Gate struct {
	token chan struct{}
}

// New creates an open gate.
func New() *Gate {
	return &Gate{token: make(chan struct{}, 1)}
}

// Acquire blocks until the gate is free and takes it.
func (g *Gate) Acquire() {
	g.token <- struct{}{}
}

// AcquireContext takes the gate like Acquire, unless ctx ends first.
func (g *Gate) AcquireContext(ctx context.Context) error {
	select {
	case g.token <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the gate. Releasing a free gate is a programming error.
func (g *Gate) Release() {
	select {
	case <-g.token:
	default:
		panic("releasing a gate that is not held")
	}
}

// Do runs f while holding the gate. The gate is released even if f panics.
func (g *Gate) Do(f func()) {
	g.Acquire()
	defer g.Release()

	f()
}
