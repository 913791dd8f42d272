// Package provider hands out resources whose lifetime is controlled by someone
// else, typically a preview window owned by the UI. Consumers wait a bounded
// time for the resource to appear; owners wait a bounded time for consumers to
// let go before tearing it down.
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/logging"
	"github.com/lanikai/alohacam/internal/media"
)

var log = logging.DefaultLogger.WithTag("provider")

const (
	DefaultCreateTimeout = 10 * time.Second
	DefaultRemoveTimeout = 10 * time.Second
)

type Provider[T any] struct {
	// Name used in logs and errors.
	Name string

	CreateTimeout time.Duration
	RemoveTimeout time.Duration

	// OnRequest asks the owner to create the resource. It is called by Obtain
	// when nothing is available and must not block.
	OnRequest func()

	// OnRelease tells the owner the consumer is done with the resource.
	OnRelease func(T)

	mu      sync.Mutex
	obj     T
	present bool
	inUse   bool

	// Closed and replaced on every state change.
	changed chan struct{}
}

func New[T any](name string) *Provider[T] {
	return &Provider[T]{
		Name:          name,
		CreateTimeout: DefaultCreateTimeout,
		RemoveTimeout: DefaultRemoveTimeout,
	}
}

// Must hold p.mu.
func (p *Provider[T]) signal() {
	if p.changed != nil {
		close(p.changed)
	}
	p.changed = make(chan struct{})
}

// Must hold p.mu.
func (p *Provider[T]) watch() <-chan struct{} {
	if p.changed == nil {
		p.changed = make(chan struct{})
	}
	return p.changed
}

// Obtain returns the resource, asking the owner to create it if necessary and
// waiting up to CreateTimeout. The caller must Release it when done.
func (p *Provider[T]) Obtain(ctx context.Context) (T, error) {
	p.mu.Lock()
	if p.present {
		p.inUse = true
		obj := p.obj
		p.mu.Unlock()
		return obj, nil
	}
	changed := p.watch()
	p.mu.Unlock()

	if p.OnRequest != nil {
		p.OnRequest()
	}

	timer := time.NewTimer(p.CreateTimeout)
	defer timer.Stop()
	for {
		select {
		case <-changed:
		case <-timer.C:
			var zero T
			log.Warn("%s not created after %v", p.Name, p.CreateTimeout)
			return zero, errors.Wrapf(media.ErrPipelineStall,
				"%s not created within %v", p.Name, p.CreateTimeout)
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}

		p.mu.Lock()
		if p.present {
			p.inUse = true
			obj := p.obj
			p.mu.Unlock()
			return obj, nil
		}
		changed = p.watch()
		p.mu.Unlock()
	}
}

// TryObtain returns the resource if it exists, without waiting.
func (p *Provider[T]) TryObtain() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present {
		var zero T
		return zero, false
	}
	p.inUse = true
	return p.obj, true
}

// Created publishes a new resource and wakes up waiting consumers.
func (p *Provider[T]) Created(obj T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.obj = obj
	p.present = true
	p.signal()
	log.Debug("%s created", p.Name)
}

// Destroyed withdraws the resource. Consumers still holding it should stop
// using it as soon as possible.
func (p *Provider[T]) Destroyed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	p.obj = zero
	p.present = false
	p.signal()
	log.Debug("%s destroyed", p.Name)
}

// Release marks the consumer as done with the resource.
func (p *Provider[T]) Release(obj T) {
	p.mu.Lock()
	wasInUse := p.inUse
	p.inUse = false
	p.signal()
	p.mu.Unlock()

	if wasInUse && p.OnRelease != nil {
		p.OnRelease(obj)
	}
}

// InUse reports whether a consumer holds the resource.
func (p *Provider[T]) InUse() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// WaitForRelease blocks the owner until the consumer has released the
// resource, for at most RemoveTimeout.
func (p *Provider[T]) WaitForRelease(ctx context.Context) error {
	timer := time.NewTimer(p.RemoveTimeout)
	defer timer.Stop()
	for {
		p.mu.Lock()
		if !p.inUse {
			p.mu.Unlock()
			return nil
		}
		changed := p.watch()
		p.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			log.Warn("%s still in use after %v", p.Name, p.RemoveTimeout)
			return errors.Wrapf(media.ErrPipelineStall,
				"%s not released within %v", p.Name, p.RemoveTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
