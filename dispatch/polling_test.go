package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yitech/barfeed/model/bar"
	"github.com/yitech/barfeed/registry"
)

type fetchCall struct {
	ticker   string
	from, to int64
}

type fakeSource struct {
	mu    sync.Mutex
	calls []fetchCall
	bars  map[string][]bar.Bar
	errs  map[string]error
	// block holds fetches for a ticker until the channel is closed.
	block map[string]chan struct{}
	done  chan string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		bars:  make(map[string][]bar.Bar),
		errs:  make(map[string]error),
		block: make(map[string]chan struct{}),
		done:  make(chan string, 16),
	}
}

func (f *fakeSource) Fetch(ctx context.Context, inst bar.Instrument, _ string, from, to int64) ([]bar.Bar, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{ticker: inst.Ticker, from: from, to: to})
	block := f.block[inst.Ticker]
	bars, err := f.bars[inst.Ticker], f.errs[inst.Ticker]
	f.mu.Unlock()

	defer func() {
		select {
		case f.done <- inst.Ticker:
		default:
		}
	}()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return bars, err
}

func (f *fakeSource) callsSnapshot() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fetchCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func waitDone(t *testing.T, src *fakeSource, ticker string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-src.done:
			if got == ticker {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for fetch of %s", ticker)
		}
	}
}

func waitBars(t *testing.T, rec *recorder, key string, n int) []bar.Bar {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := rec.get(key); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d bars on %s, got %d", n, key, len(rec.get(key)))
	return nil
}

func TestPollIndependentFetchesSameWindow(t *testing.T) {
	src := newFakeSource()
	src.bars["X:BTCUSD"] = []bar.Bar{{Time: 1}, {Time: 2}}
	src.bars["X:ETHUSD"] = []bar.Bar{{Time: 3}}
	release := make(chan struct{})
	src.block["X:BTCUSD"] = release

	reg := registry.New()
	rec := newRecorder()
	reg.Add(rec.sub("btc", "X:BTCUSD", "1D"))
	reg.Add(rec.sub("eth", "X:ETHUSD", "1D"))

	p := NewPolling(src, reg, PollingConfig{}, nil)
	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }

	p.Poll(context.Background())

	// The ETH fetch completes while BTC is still held.
	got := waitBars(t, rec, "eth", 1)
	if got[0].Time != 3 {
		t.Errorf("Expected ETH bar, got %+v", got[0])
	}
	if len(rec.get("btc")) != 0 {
		t.Error("Expected BTC to still be pending")
	}

	close(release)
	btc := waitBars(t, rec, "btc", 2)
	if btc[0].Time != 1 || btc[1].Time != 2 {
		t.Errorf("Expected BTC bars in provider order, got %+v", btc)
	}

	calls := src.callsSnapshot()
	if len(calls) != 2 {
		t.Fatalf("Expected 2 fetches, got %d", len(calls))
	}
	for _, c := range calls {
		if c.to != now.Unix() || c.from != now.Unix()-120 {
			t.Errorf("Expected window [%d,%d], got [%d,%d] for %s", now.Unix()-120, now.Unix(), c.from, c.to, c.ticker)
		}
	}
}

func TestPollEmptyResultNoCallback(t *testing.T) {
	src := newFakeSource()
	reg := registry.New()
	rec := newRecorder()
	reg.Add(rec.sub("btc", "X:BTCUSD", "1D"))

	p := NewPolling(src, reg, PollingConfig{}, nil)
	p.Poll(context.Background())
	waitDone(t, src, "X:BTCUSD")
	p.wg.Wait()

	if n := len(rec.get("btc")); n != 0 {
		t.Errorf("Expected no callback for an empty result, got %d", n)
	}
}

func TestPollFailureIsolated(t *testing.T) {
	src := newFakeSource()
	src.errs["X:BTCUSD"] = errors.New("boom")
	src.bars["X:ETHUSD"] = []bar.Bar{{Time: 9}}

	reg := registry.New()
	rec := newRecorder()
	reg.Add(rec.sub("btc", "X:BTCUSD", "1D"))
	reg.Add(rec.sub("eth", "X:ETHUSD", "1D"))

	p := NewPolling(src, reg, PollingConfig{}, nil)
	p.Poll(context.Background())
	p.wg.Wait()

	if len(rec.get("btc")) != 0 {
		t.Error("Expected no bars for the failed subscription")
	}
	if len(rec.get("eth")) != 1 {
		t.Error("Expected the healthy subscription to receive its bar")
	}
}

func TestPollUnsubscribeNeutersInFlightDelivery(t *testing.T) {
	src := newFakeSource()
	src.bars["X:BTCUSD"] = []bar.Bar{{Time: 1}}
	release := make(chan struct{})
	src.block["X:BTCUSD"] = release

	reg := registry.New()
	rec := newRecorder()
	reg.Add(rec.sub("btc", "X:BTCUSD", "1D"))

	p := NewPolling(src, reg, PollingConfig{}, nil)
	p.Poll(context.Background())
	reg.RemoveByKey("btc")
	close(release)
	p.wg.Wait()

	if len(rec.get("btc")) != 0 {
		t.Error("Expected no delivery after unsubscribe")
	}
}

func TestPollingTickerFires(t *testing.T) {
	src := newFakeSource()
	src.bars["X:BTCUSD"] = []bar.Bar{{Time: 1}}
	reg := registry.New()
	rec := newRecorder()
	reg.Add(rec.sub("btc", "X:BTCUSD", "1D"))

	p := NewPolling(src, reg, PollingConfig{Interval: 10 * time.Millisecond}, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitBars(t, rec, "btc", 2)
	p.Stop()

	after := len(src.callsSnapshot())
	time.Sleep(30 * time.Millisecond)
	if len(src.callsSnapshot()) != after {
		t.Error("Expected no fetches after Stop")
	}
}

func TestPollingDefaults(t *testing.T) {
	p := NewPolling(nil, registry.New(), PollingConfig{}, nil)
	if p.cfg.Interval != 15*time.Second {
		t.Errorf("Expected 15s interval, got %v", p.cfg.Interval)
	}
	if p.cfg.Window != 120*time.Second {
		t.Errorf("Expected 120s window, got %v", p.cfg.Window)
	}
	if p.Mode() != ModePolling {
		t.Errorf("Expected polling mode, got %v", p.Mode())
	}
}
