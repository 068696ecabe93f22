package bpush

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Resetter is implemented by pooled instances that clear their per-request state themselves. The pool
// calls Reset on release, before the instance becomes available to other borrowers.
type Resetter interface {
	Reset()
}

// PoolStats is a snapshot of a pool's counters.
type PoolStats struct {
	Created int
	Idle    int
	Lent    int
}

// Pool lends reusable instances to many concurrent borrowers. It never blocks: when no idle instance is
// available a new one is constructed, so the pool grows to the peak number of concurrent borrowers. A
// borrowed instance belongs to its borrower until it is released.
type Pool[T comparable] struct {
	newFn func() T

	mu      sync.Mutex
	idle    []T
	lent    map[T]struct{}
	created int
}

// NewPool inits a pool that constructs instances with newFn.
func NewPool[T comparable](newFn func() T) *Pool[T] {
	return &Pool[T]{
		newFn: newFn,
		lent:  make(map[T]struct{}),
	}
}

// Borrow returns an idle instance or a new one. A panicking factory is reported as an error.
func (p *Pool[T]) Borrow() (v T, err error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		v = p.idle[n-1]
		var zero T
		p.idle[n-1] = zero
		p.idle = p.idle[:n-1]
		p.lent[v] = struct{}{}
		p.mu.Unlock()

		return v, nil
	}
	p.mu.Unlock()

	if v, err = p.construct(); err != nil {
		return v, err
	}

	p.mu.Lock()
	p.created++
	p.lent[v] = struct{}{}
	p.mu.Unlock()

	return v, nil
}

func (p *Pool[T]) construct() (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("bpush: pool factory panicked: %v", r)
		}
	}()

	v = p.newFn()

	var zero T
	if v == zero {
		return v, errors.New("bpush: pool factory returned a zero instance")
	}

	return v, nil
}

// Release hands a borrowed instance back. Instances that implement [Resetter] are reset first.
func (p *Pool[T]) Release(v T) (err error) {
	p.mu.Lock()
	if _, ok := p.lent[v]; !ok {
		p.mu.Unlock()
		return ErrNotBorrowed
	}
	delete(p.lent, v)
	p.mu.Unlock()

	// an instance whose reset panics is dropped rather than handed to the next borrower
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("bpush: reset of pooled instance panicked: %v", r)
		}
	}()

	if rs, ok := any(v).(Resetter); ok {
		rs.Reset()
	}

	p.mu.Lock()
	p.idle = append(p.idle, v)
	p.mu.Unlock()

	return nil
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool[T]) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{Created: p.created, Idle: len(p.idle), Lent: len(p.lent)}
}
