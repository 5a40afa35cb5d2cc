package vectorstore

import (
	"context"
	"fmt"
	"time"
)

// Pool defaults.
const (
	DefaultPoolSize       = 10
	DefaultAcquireTimeout = 5 * time.Second
)

// slotPool bounds concurrent store operations. Weaviate clients are
// stateless HTTP wrappers, so the pool manages permission slots rather
// than connections.
//
// Thread Safety: safe for concurrent use.
type slotPool struct {
	slots          chan struct{}
	acquireTimeout time.Duration
}

// newSlotPool creates a pool with the given capacity and acquire timeout.
// Non-positive values select the defaults.
func newSlotPool(size int, acquireTimeout time.Duration) *slotPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	p := &slotPool{
		slots:          make(chan struct{}, size),
		acquireTimeout: acquireTimeout,
	}
	for i := 0; i < size; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// acquire blocks until a slot is free, the timeout elapses, or the context
// is canceled.
func (p *slotPool) acquire(ctx context.Context) error {
	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case <-p.slots:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrPoolTimeout, p.acquireTimeout)
	case <-ctx.Done():
		return fmt.Errorf("acquire canceled: %w", ctx.Err())
	}
}

// release returns a slot to the pool.
func (p *slotPool) release() {
	select {
	case p.slots <- struct{}{}:
	default:
		// Releasing more slots than acquired is a programming error;
		// dropping the extra keeps capacity bounded.
	}
}
