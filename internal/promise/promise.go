// Package promise is a small settle-once future used for asynchronous member
// data. A Promise is resolved or rejected exactly once; callbacks registered
// with Then fire once, after settlement, in registration order.
package promise

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"
)

// ErrAlreadySettled is returned when a settled promise is settled again.
var ErrAlreadySettled = errors.New("promise already settled")

// Promise is a settle-once container for a cty value.
type Promise struct {
	id   string
	done chan struct{}

	mu        sync.Mutex
	settled   bool
	value     cty.Value
	err       error
	callbacks []func(cty.Value, error)
}

// New returns an unsettled promise.
func New() *Promise {
	return &Promise{
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
}

// Go runs fn on a new goroutine and settles the returned promise with its
// outcome.
func Go(ctx context.Context, fn func(context.Context) (cty.Value, error)) *Promise {
	p := New()
	go func() {
		v, err := fn(ctx)
		if err != nil {
			_ = p.Reject(err)
			return
		}
		_ = p.Resolve(v)
	}()
	return p
}

// ID identifies the promise. Pending data remembers the id so a stale
// completion can be recognized and dropped.
func (p *Promise) ID() string { return p.id }

// Resolve settles the promise with a value.
func (p *Promise) Resolve(v cty.Value) error {
	return p.settle(v, nil)
}

// Reject settles the promise with an error.
func (p *Promise) Reject(err error) error {
	if err == nil {
		err = errors.New("promise rejected")
	}
	return p.settle(cty.NilVal, err)
}

func (p *Promise) settle(v cty.Value, err error) error {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return ErrAlreadySettled
	}
	p.settled = true
	p.value = v
	p.err = err
	callbacks := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
	return nil
}

// Then registers cb. If the promise has already settled cb runs immediately
// on the calling goroutine.
func (p *Promise) Then(cb func(cty.Value, error)) {
	p.mu.Lock()
	if !p.settled {
		p.callbacks = append(p.callbacks, cb)
		p.mu.Unlock()
		return
	}
	v, err := p.value, p.err
	p.mu.Unlock()
	cb(v, err)
}

// Done is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} { return p.done }

// Result blocks until the promise settles or ctx ends.
func (p *Promise) Result(ctx context.Context) (cty.Value, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.value, p.err
	case <-ctx.Done():
		return cty.NilVal, ctx.Err()
	}
}
