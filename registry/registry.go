// Package registry keeps the active chart subscriptions.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/yitech/barfeed/model/bar"
)

// Subscription is one host request for ongoing bar updates.
type Subscription struct {
	Key        string
	Instrument bar.Instrument
	Resolution string
	// Channel is the streaming channel the subscription listens on. It is
	// empty in polling mode.
	Channel string

	handler bar.Handler
	removed atomic.Bool
}

func NewSubscription(key string, instrument bar.Instrument, res string, handler bar.Handler) *Subscription {
	return &Subscription{
		Key:        key,
		Instrument: instrument,
		Resolution: res,
		handler:    handler,
	}
}

// Deliver hands b to the subscriber unless the subscription was removed.
// It reports whether the handler ran.
func (s *Subscription) Deliver(b bar.Bar) bool {
	if s.removed.Load() {
		return false
	}
	s.handler(b)
	return true
}

// Removed reports whether the subscription left the registry.
func (s *Subscription) Removed() bool { return s.removed.Load() }

// Registry is an insertion-ordered table of subscriptions. It is safe for
// concurrent use.
type Registry struct {
	mu   sync.Mutex
	subs []*Subscription
}

func New() *Registry {
	return &Registry{}
}

// Add appends sub. When an entry with the same key exists it is replaced in
// place, marked removed, and returned.
func (r *Registry) Add(sub *Subscription) (replaced *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.Key == sub.Key {
			s.removed.Store(true)
			r.subs[i] = sub
			return s
		}
	}
	r.subs = append(r.subs, sub)
	return nil
}

// RemoveByKey removes the first entry whose key equals key and returns it.
// Removing an absent key is a no-op and returns nil.
func (r *Registry) RemoveByKey(key string) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.Key == key {
			s.removed.Store(true)
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return s
		}
	}
	return nil
}

// ForEach calls visit for every subscription in insertion order. It iterates
// over a snapshot, so visit may call back into the registry.
func (r *Registry) ForEach(visit func(*Subscription)) {
	for _, s := range r.Snapshot() {
		visit(s)
	}
}

// Snapshot returns the current subscriptions in insertion order.
func (r *Registry) Snapshot() []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Subscription, len(r.subs))
	copy(out, r.subs)
	return out
}

// Len returns the number of subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Clear removes every subscription and returns them.
func (r *Registry) Clear() []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.subs
	for _, s := range out {
		s.removed.Store(true)
	}
	r.subs = nil
	return out
}
