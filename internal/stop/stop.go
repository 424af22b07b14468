package stop

import (
	"context"
	"sync"
)

// Request asks a background loop to exit. The loop calls NotifyDone once it has released everything it holds,
// and may use Ctx to bound its own cleanup.
type Request struct {
	ctx        context.Context
	done       chan struct{}
	notifyOnce sync.Once
}

func NewRequest(ctx context.Context) *Request {
	return &Request{
		ctx:  ctx,
		done: make(chan struct{}),
	}
}

func (r *Request) Ctx() context.Context {
	return r.ctx
}

// NotifyDone never blocks and can be called more than once.
func (r *Request) NotifyDone() {
	r.notifyOnce.Do(func() { close(r.done) })
}

// AwaitDone returns nil once NotifyDone has been called, or the context error if it expires first.
func (r *Request) AwaitDone() error {
	select {
	case <-r.done:
		return nil
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}

// Chan is read by the loop to be stopped.
type Chan chan *Request

func NewChan() Chan {
	return make(Chan)
}

// Send hands a new request to the loop reading c, then waits for the loop to acknowledge it.
// Both steps are bounded by ctx.
func (c Chan) Send(ctx context.Context) error {
	req := NewRequest(ctx)
	select {
	case c <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	return req.AwaitDone()
}
