package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/yitech/barfeed/registry"
	"github.com/yitech/barfeed/symbol"
)

func TestDispatcherStartOnce(t *testing.T) {
	fs := newFakeStreamer()
	reg := registry.New()
	d := New(reg, NewStreaming(fs, reg, symbol.DefaultTranslator, "", nil))

	if d.Ready() {
		t.Fatal("Expected dispatcher to start uninitialized")
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Ready() {
		t.Fatal("Expected dispatcher to be ready")
	}
	if err := d.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}
	if fs.connected != 1 {
		t.Errorf("Expected exactly one connect, got %d", fs.connected)
	}
	if d.Mode() != ModeStreaming {
		t.Errorf("Expected streaming mode, got %v", d.Mode())
	}
}

func TestDispatcherFailedStartCanRetry(t *testing.T) {
	fs := newFakeStreamer()
	fs.connectErr = errors.New("dial refused")
	reg := registry.New()
	d := New(reg, NewStreaming(fs, reg, symbol.DefaultTranslator, "", nil))

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("Expected start error")
	}
	if d.Ready() {
		t.Fatal("Expected dispatcher to stay uninitialized")
	}
	fs.connectErr = nil
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
}

func TestDispatcherSubscribeBeforeStart(t *testing.T) {
	reg := registry.New()
	d := New(reg, NewPolling(nil, reg, PollingConfig{}, nil))
	rec := newRecorder()

	err := d.Subscribe(context.Background(), rec.sub("k", "X:BTCUSD", "1D"))
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("Expected ErrNotReady, got %v", err)
	}
	if reg.Len() != 0 {
		t.Error("Expected no registry entry before start")
	}
}

func TestDispatcherUnsubscribeDetaches(t *testing.T) {
	fs := newFakeStreamer()
	reg := registry.New()
	d := New(reg, NewStreaming(fs, reg, symbol.DefaultTranslator, "", nil))
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec := newRecorder()
	if err := d.Subscribe(context.Background(), rec.sub("k", "X:BTCUSD", "1D")); err != nil {
		t.Fatal(err)
	}

	if !d.Unsubscribe("k") {
		t.Fatal("Expected Unsubscribe to find k")
	}
	if d.Unsubscribe("k") {
		t.Error("Expected second Unsubscribe to be a no-op")
	}
	if len(fs.unsubscribed) != 1 || fs.unsubscribed[0] != "XA.BTC-USD" {
		t.Errorf("Expected channel unsubscribe for XA.BTC-USD, got %v", fs.unsubscribed)
	}
}

func TestDispatcherDuplicateKeyReleasesOldChannel(t *testing.T) {
	fs := newFakeStreamer()
	reg := registry.New()
	d := New(reg, NewStreaming(fs, reg, symbol.DefaultTranslator, "", nil))
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec := newRecorder()
	ctx := context.Background()
	if err := d.Subscribe(ctx, rec.sub("k", "X:BTCUSD", "1D")); err != nil {
		t.Fatal(err)
	}
	if err := d.Subscribe(ctx, rec.sub("k", "X:ETHUSD", "1D")); err != nil {
		t.Fatal(err)
	}

	if reg.Len() != 1 {
		t.Fatalf("Expected one registry entry, got %d", reg.Len())
	}
	if len(fs.unsubscribed) != 1 || fs.unsubscribed[0] != "XA.BTC-USD" {
		t.Errorf("Expected the replaced channel to be released, got %v", fs.unsubscribed)
	}
}

func TestDispatcherStopNeutersSubscriptions(t *testing.T) {
	fs := newFakeStreamer()
	reg := registry.New()
	d := New(reg, NewStreaming(fs, reg, symbol.DefaultTranslator, "", nil))
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec := newRecorder()
	sub := rec.sub("k", "X:BTCUSD", "1D")
	if err := d.Subscribe(context.Background(), sub); err != nil {
		t.Fatal(err)
	}

	d.Stop()
	if !fs.closed {
		t.Error("Expected streamer to be closed")
	}
	if !sub.Removed() {
		t.Error("Expected subscription to be neutered")
	}
	if d.Ready() {
		t.Error("Expected dispatcher not to be ready after Stop")
	}
	if err := d.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped from Start after Stop, got %v", err)
	}
	if err := d.Subscribe(context.Background(), rec.sub("k2", "X:BTCUSD", "1D")); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped from Subscribe after Stop, got %v", err)
	}
}

func TestModeString(t *testing.T) {
	if ModePolling.String() != "polling" || ModeStreaming.String() != "streaming" {
		t.Errorf("unexpected mode names %q %q", ModePolling, ModeStreaming)
	}
	if Mode(0).String() != "unknown" {
		t.Errorf("Expected unknown for zero mode, got %q", Mode(0))
	}
}
