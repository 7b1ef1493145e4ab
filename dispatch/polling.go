package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/yitech/barfeed/logging"
	"github.com/yitech/barfeed/model/bar"
	"github.com/yitech/barfeed/registry"
)

const (
	DefaultPollInterval = 15 * time.Second
	DefaultPollWindow   = 120 * time.Second
	DefaultFetchTimeout = 30 * time.Second
)

// BarSource answers range queries in Unix seconds.
type BarSource interface {
	Fetch(ctx context.Context, instrument bar.Instrument, res string, from, to int64) ([]bar.Bar, error)
}

// PollingConfig tunes the polling strategy. Zero values take the defaults.
type PollingConfig struct {
	Interval     time.Duration
	Window       time.Duration
	FetchTimeout time.Duration
}

// Polling re-queries the trailing window for every subscription on a fixed
// interval. Fetches run independently of each other and of the ticker, so a
// slow fetch can overlap the next tick's fetch for the same subscription;
// the subscriber may then see the same bar more than once.
type Polling struct {
	source BarSource
	reg    *registry.Registry
	cfg    PollingConfig
	logger *slog.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPolling(source BarSource, reg *registry.Registry, cfg PollingConfig, logger *slog.Logger) *Polling {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultPollWindow
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &Polling{
		source: source,
		reg:    reg,
		cfg:    cfg,
		logger: logging.OrDefault(logger),
		now:    time.Now,
	}
}

func (p *Polling) Mode() Mode { return ModePolling }

// Start launches the ticker loop.
func (p *Polling) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.run(ctx)
	p.logger.Info("polling started", "interval", p.cfg.Interval, "window", p.cfg.Window)
	return nil
}

func (p *Polling) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one tick: every registered subscription gets its own fetch of
// the window ending now. It returns without waiting for the fetches.
func (p *Polling) Poll(ctx context.Context) {
	to := p.now()
	from := to.Add(-p.cfg.Window)
	p.reg.ForEach(func(sub *registry.Subscription) {
		p.wg.Add(1)
		go p.pollOne(ctx, sub, from.Unix(), to.Unix())
	})
}

func (p *Polling) pollOne(ctx context.Context, sub *registry.Subscription, from, to int64) {
	defer p.wg.Done()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	bars, err := p.source.Fetch(ctx, sub.Instrument, sub.Resolution, from, to)
	if err != nil {
		if !errors.Is(ctx.Err(), context.Canceled) {
			p.logger.Warn("poll fetch failed", "key", sub.Key, "ticker", sub.Instrument.Ticker, "error", err)
		}
		return
	}
	for _, b := range bars {
		if !sub.Deliver(b) {
			return
		}
	}
}

// Attach is a no-op: polling reads the registry on every tick.
func (p *Polling) Attach(context.Context, *registry.Subscription) error { return nil }

// Detach is a no-op; removed subscriptions are neutered by the registry.
func (p *Polling) Detach(*registry.Subscription) {}

// Stop cancels the ticker and in-flight fetches and waits for them.
func (p *Polling) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("polling stopped")
}
