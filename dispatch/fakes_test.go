package dispatch

import (
	"context"
	"sync"

	"github.com/yitech/barfeed/adapter"
	"github.com/yitech/barfeed/model/bar"
	"github.com/yitech/barfeed/registry"
)

type fakeStreamer struct {
	mu           sync.Mutex
	connected    int
	connectErr   error
	subscribeErr error
	subscribed   []string
	unsubscribed []string
	handlers     map[string]adapter.EventHandler
	closed       bool
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{handlers: make(map[string]adapter.EventHandler)}
}

func (f *fakeStreamer) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected++
	return f.connectErr
}

func (f *fakeStreamer) Subscribe(ch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed = append(f.subscribed, ch)
	return nil
}

func (f *fakeStreamer) Unsubscribe(ch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, ch)
	return nil
}

func (f *fakeStreamer) On(eventType string, h adapter.EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[eventType] = h
}

func (f *fakeStreamer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStreamer) emit(ev *adapter.StreamEvent) {
	f.mu.Lock()
	h := f.handlers[ev.EventType]
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// recorder collects delivered bars per subscription key.
type recorder struct {
	mu   sync.Mutex
	bars map[string][]bar.Bar
}

func newRecorder() *recorder {
	return &recorder{bars: make(map[string][]bar.Bar)}
}

func (r *recorder) sub(key, ticker, res string) *registry.Subscription {
	return registry.NewSubscription(key, bar.Instrument{Ticker: ticker}, res, func(b bar.Bar) {
		r.mu.Lock()
		r.bars[key] = append(r.bars[key], b)
		r.mu.Unlock()
	})
}

func (r *recorder) get(key string) []bar.Bar {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bar.Bar, len(r.bars[key]))
	copy(out, r.bars[key])
	return out
}
