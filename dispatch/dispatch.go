// Package dispatch delivers new bars to the registered chart subscriptions
// using exactly one update strategy for the lifetime of the process.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/yitech/barfeed/registry"
)

var (
	// ErrNotReady is returned for subscription changes before Start succeeded.
	ErrNotReady = errors.New("dispatch: not started")
	// ErrAlreadyStarted is returned by every Start call after the first
	// successful one.
	ErrAlreadyStarted = errors.New("dispatch: already started")
	// ErrStopped is returned by Start and Subscribe after Stop.
	ErrStopped = errors.New("dispatch: stopped")
)

// Mode identifies the update strategy.
type Mode int

const (
	ModePolling Mode = iota + 1
	ModeStreaming
)

func (m Mode) String() string {
	switch m {
	case ModePolling:
		return "polling"
	case ModeStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Strategy is one way of producing bar updates. The two implementations are
// *Polling and *Streaming.
type Strategy interface {
	Mode() Mode

	// Start begins producing updates. It is called once.
	Start(ctx context.Context) error

	// Attach prepares the strategy for sub before it enters the registry.
	Attach(ctx context.Context, sub *registry.Subscription) error

	// Detach releases whatever Attach acquired for sub.
	Detach(sub *registry.Subscription)

	// Stop halts update production.
	Stop()
}

type state int

const (
	uninitialized state = iota
	ready
	stopped
)

// Dispatcher couples the registry with the chosen strategy.
type Dispatcher struct {
	reg      *registry.Registry
	strategy Strategy

	mu    sync.Mutex
	state state
}

func New(reg *registry.Registry, strategy Strategy) *Dispatcher {
	return &Dispatcher{reg: reg, strategy: strategy}
}

// Mode returns the strategy's mode.
func (d *Dispatcher) Mode() Mode { return d.strategy.Mode() }

// Start moves the dispatcher to Ready. A failed start leaves it
// Uninitialized so the caller may try again.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case ready:
		return ErrAlreadyStarted
	case stopped:
		return ErrStopped
	}
	if err := d.strategy.Start(ctx); err != nil {
		return err
	}
	d.state = ready
	return nil
}

// Ready reports whether Start has succeeded and Stop has not been called.
func (d *Dispatcher) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == ready
}

// Subscribe attaches sub to the strategy and registers it. A previous
// subscription with the same key is replaced and detached.
func (d *Dispatcher) Subscribe(ctx context.Context, sub *registry.Subscription) error {
	d.mu.Lock()
	st := d.state
	d.mu.Unlock()
	switch st {
	case uninitialized:
		return ErrNotReady
	case stopped:
		return ErrStopped
	}
	if err := d.strategy.Attach(ctx, sub); err != nil {
		return err
	}
	if replaced := d.reg.Add(sub); replaced != nil {
		d.strategy.Detach(replaced)
	}
	return nil
}

// Unsubscribe removes the subscription with key and reports whether one
// was found.
func (d *Dispatcher) Unsubscribe(key string) bool {
	sub := d.reg.RemoveByKey(key)
	if sub == nil {
		return false
	}
	d.strategy.Detach(sub)
	return true
}

// Stop halts the strategy and neuters every subscription.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == ready {
		d.strategy.Stop()
	}
	d.state = stopped
	d.reg.Clear()
}
