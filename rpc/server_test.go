package rpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/yitech/barfeed/adapter"
	"github.com/yitech/barfeed/datafeed"
	"github.com/yitech/barfeed/fetcher"
	"github.com/yitech/barfeed/model/bar"
	"github.com/yitech/barfeed/resolution"
)

type fakeFeed struct {
	mu       sync.Mutex
	bars     []bar.Bar
	barsErr  error
	handlers map[string]bar.Handler
	removed  []string
	subbed   chan string
	gotRange [2]int64
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{handlers: make(map[string]bar.Handler), subbed: make(chan string, 1)}
}

func (f *fakeFeed) Ready(context.Context) (datafeed.Configuration, error) {
	return datafeed.Configuration{
		SupportedResolutions: []string{"1", "1D"},
		Exchanges:            []datafeed.Exchange{{Name: "All Exchanges"}},
		SymbolTypes:          []datafeed.SymbolType{{Name: "Crypto", Value: "crypto"}},
	}, nil
}

func (f *fakeFeed) SearchSymbols(_ context.Context, input, _, _ string) ([]bar.SymbolInfo, error) {
	if input == "slow" {
		return nil, datafeed.ErrSearchSuperseded
	}
	return []bar.SymbolInfo{{Symbol: "X:BTCUSD", Ticker: "X:BTCUSD", Type: "crypto"}}, nil
}

func (f *fakeFeed) ResolveSymbol(_ context.Context, id string) (bar.Instrument, error) {
	return bar.Instrument{Ticker: id, Name: id, Session: "24x7", PriceScale: 100, HasIntraday: true, SupportedResolutions: []string{"1D"}}, nil
}

func (f *fakeFeed) GetBars(_ context.Context, _ bar.Instrument, res string, from, to int64) ([]bar.Bar, datafeed.Meta, error) {
	f.mu.Lock()
	f.gotRange = [2]int64{from, to}
	f.mu.Unlock()
	if res == "1W" {
		return nil, datafeed.Meta{}, &resolution.UnsupportedResolutionError{Resolution: res, Supported: true}
	}
	if f.barsErr != nil {
		return nil, datafeed.Meta{}, f.barsErr
	}
	return f.bars, datafeed.Meta{NoData: len(f.bars) == 0}, nil
}

func (f *fakeFeed) SubscribeBars(_ context.Context, _ bar.Instrument, _, key string, h bar.Handler) error {
	f.mu.Lock()
	f.handlers[key] = h
	f.mu.Unlock()
	f.subbed <- key
	return nil
}

func (f *fakeFeed) UnsubscribeBars(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, key)
	f.removed = append(f.removed, key)
}

func (f *fakeFeed) emit(key string, b bar.Bar) {
	f.mu.Lock()
	h := f.handlers[key]
	f.mu.Unlock()
	h(b)
}

func dial(t *testing.T, feed Feed) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryLoggingInterceptor(nil)))
	RegisterDatafeedServer(srv, NewServer(feed, nil))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestReadyRoundTrip(t *testing.T) {
	c := dial(t, newFakeFeed())
	cfg, err := c.Ready(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.SupportedResolutions) != 2 || cfg.SupportedResolutions[1] != "1D" {
		t.Errorf("unexpected resolutions %v", cfg.SupportedResolutions)
	}
	if len(cfg.SymbolTypes) != 1 || cfg.SymbolTypes[0].Value != "crypto" {
		t.Errorf("unexpected symbol types %v", cfg.SymbolTypes)
	}
}

func TestGetBarsRoundTrip(t *testing.T) {
	feed := newFakeFeed()
	feed.bars = []bar.Bar{
		{Time: 1_700_000_000_000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Time: 1_700_000_060_000, Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 20},
	}
	c := dial(t, feed)

	bars, meta, err := c.GetBars(context.Background(), "X:BTCUSD", "1", 1_700_000_000, 1_700_000_120)
	if err != nil {
		t.Fatal(err)
	}
	if meta.NoData {
		t.Error("Expected NoData=false")
	}
	if len(bars) != 2 || bars[0] != feed.bars[0] || bars[1] != feed.bars[1] {
		t.Errorf("unexpected bars %+v", bars)
	}
	feed.mu.Lock()
	gotRange := feed.gotRange
	feed.mu.Unlock()
	if gotRange != [2]int64{1_700_000_000, 1_700_000_120} {
		t.Errorf("unexpected range %v", gotRange)
	}
}

func TestGetBarsNoData(t *testing.T) {
	c := dial(t, newFakeFeed())
	bars, meta, err := c.GetBars(context.Background(), "X:BTCUSD", "1D", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !meta.NoData || len(bars) != 0 {
		t.Errorf("Expected NoData, got %v / %d bars", meta, len(bars))
	}
}

func TestErrorCodes(t *testing.T) {
	feed := newFakeFeed()
	feed.barsErr = &fetcher.FetchError{Ticker: "X:BTCUSD", Resolution: "1D", Cause: errors.New("timeout")}
	c := dial(t, feed)

	_, _, err := c.GetBars(context.Background(), "X:BTCUSD", "1W", 0, 10)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("Expected InvalidArgument, got %v", err)
	}
	_, _, err = c.GetBars(context.Background(), "X:BTCUSD", "1D", 0, 10)
	if status.Code(err) != codes.Unavailable {
		t.Errorf("Expected Unavailable, got %v", err)
	}
	_, err = c.SearchSymbols(context.Background(), "slow", "", "")
	if status.Code(err) != codes.Canceled {
		t.Errorf("Expected Canceled, got %v", err)
	}
	_, err = c.ResolveSymbol(context.Background(), "")
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("Expected InvalidArgument for an empty ticker, got %v", err)
	}
}

func TestToStatusMalformed(t *testing.T) {
	err := toStatus(&adapter.MalformedResponseError{Op: "search", Cause: errors.New("bad")})
	if status.Code(err) != codes.Internal {
		t.Errorf("Expected Internal, got %v", err)
	}
}

func TestToStatusClosed(t *testing.T) {
	if err := toStatus(datafeed.ErrClosed); status.Code(err) != codes.Unavailable {
		t.Errorf("Expected Unavailable, got %v", err)
	}
}

func TestSearchAndResolveRoundTrip(t *testing.T) {
	c := dial(t, newFakeFeed())

	res, err := c.SearchSymbols(context.Background(), "btc", "", "crypto")
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Ticker != "X:BTCUSD" || res[0].Type != "crypto" {
		t.Errorf("unexpected search result %+v", res)
	}

	inst, err := c.ResolveSymbol(context.Background(), "X:ETHUSD")
	if err != nil {
		t.Fatal(err)
	}
	if inst.Ticker != "X:ETHUSD" || inst.Session != "24x7" || inst.PriceScale != 100 || !inst.HasIntraday {
		t.Errorf("unexpected instrument %+v", inst)
	}
	if len(inst.SupportedResolutions) != 1 || inst.SupportedResolutions[0] != "1D" {
		t.Errorf("unexpected resolutions %v", inst.SupportedResolutions)
	}
}

func TestSubscribeBarsStream(t *testing.T) {
	feed := newFakeFeed()
	c := dial(t, feed)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.SubscribeBars(ctx, "X:ETHUSD", "1D")
	if err != nil {
		t.Fatal(err)
	}

	var key string
	select {
	case key = <-feed.subbed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the subscription")
	}
	got, err := stream.Key()
	if err != nil {
		t.Fatal(err)
	}
	if got != key {
		t.Errorf("Expected header key %q, got %q", key, got)
	}

	want := bar.Bar{Time: 86_400_000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3}
	feed.emit(key, want)
	b, err := stream.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if b != want {
		t.Errorf("Expected %+v, got %+v", want, b)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for {
		feed.mu.Lock()
		n := len(feed.removed)
		feed.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected the subscription to be removed when the stream ends")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
