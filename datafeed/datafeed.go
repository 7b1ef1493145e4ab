// Package datafeed is the host-facing facade: it composes the fetcher, the
// subscription registry and the update dispatcher behind the charting
// library's datafeed contract.
package datafeed

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/yitech/barfeed/adapter"
	"github.com/yitech/barfeed/dispatch"
	"github.com/yitech/barfeed/fetcher"
	"github.com/yitech/barfeed/logging"
	"github.com/yitech/barfeed/model/bar"
	"github.com/yitech/barfeed/registry"
	"github.com/yitech/barfeed/resolution"
	"github.com/yitech/barfeed/symbol"
)

// ErrClosed is returned by Ready and SubscribeBars once the feed is closed.
var ErrClosed = errors.New("datafeed: closed")

// DefaultStreamingResolutions is the subscription policy: only daily charts
// receive live updates.
var DefaultStreamingResolutions = []string{"1D"}

// Options configures a Feed. Zero values take the defaults.
type Options struct {
	// Realtime selects the streaming strategy; otherwise the feed polls.
	Realtime bool
	// StreamingResolutions lists the resolutions SubscribeBars accepts.
	StreamingResolutions []string
	SearchDebounce       time.Duration
	Polling              dispatch.PollingConfig
	ChannelType          string
	Translator           *symbol.Translator
}

// Deps are the provider collaborators. Streamer is only needed when
// Options.Realtime is set.
type Deps struct {
	Aggregates adapter.AggregatesClient
	Symbols    adapter.SymbolClient
	Streamer   adapter.Streamer
}

// Exchange is one entry of the exchange filter offered to the host.
type Exchange struct {
	Value string
	Name  string
	Desc  string
}

// SymbolType is one entry of the symbol type filter offered to the host.
type SymbolType struct {
	Name  string
	Value string
}

// Configuration is returned by Ready.
type Configuration struct {
	SupportedResolutions   []string
	Exchanges              []Exchange
	SymbolTypes            []SymbolType
	SupportsMarks          bool
	SupportsTimescaleMarks bool
	SupportsTime           bool
}

// Meta accompanies a GetBars result.
type Meta struct {
	NoData bool
}

// Feed implements the datafeed operations for one provider.
type Feed struct {
	fetcher    *fetcher.Fetcher
	symbols    adapter.SymbolClient
	reg        *registry.Registry
	dispatcher *dispatch.Dispatcher
	search     *debouncer
	allowed    []string
	logger     *slog.Logger

	// life scopes the update strategy to the Feed rather than to the
	// request that happened to call Ready first.
	life   context.Context
	cancel context.CancelFunc
}

func New(deps Deps, opts Options, logger *slog.Logger) *Feed {
	logger = logging.OrDefault(logger)
	if opts.StreamingResolutions == nil {
		opts.StreamingResolutions = DefaultStreamingResolutions
	}
	if opts.SearchDebounce <= 0 {
		opts.SearchDebounce = DefaultSearchDebounce
	}
	translator := symbol.DefaultTranslator
	if opts.Translator != nil {
		translator = *opts.Translator
	}

	reg := registry.New()
	f := fetcher.New(deps.Aggregates, logger)

	var strategy dispatch.Strategy
	if opts.Realtime {
		strategy = dispatch.NewStreaming(deps.Streamer, reg, translator, opts.ChannelType, logger)
	} else {
		strategy = dispatch.NewPolling(f, reg, opts.Polling, logger)
	}

	life, cancel := context.WithCancel(context.Background())
	return &Feed{
		fetcher:    f,
		symbols:    deps.Symbols,
		reg:        reg,
		dispatcher: dispatch.New(reg, strategy),
		search:     newDebouncer(opts.SearchDebounce),
		allowed:    slices.Clone(opts.StreamingResolutions),
		logger:     logger,
		life:       life,
		cancel:     cancel,
	}
}

// Mode reports the update strategy chosen at construction.
func (f *Feed) Mode() dispatch.Mode { return f.dispatcher.Mode() }

// Ready starts the update strategy on the first call and returns the host
// configuration. Later calls only return the configuration.
func (f *Feed) Ready(ctx context.Context) (Configuration, error) {
	if err := ctx.Err(); err != nil {
		return Configuration{}, err
	}
	err := f.dispatcher.Start(f.life)
	if errors.Is(err, dispatch.ErrStopped) {
		return Configuration{}, ErrClosed
	}
	if err != nil && !errors.Is(err, dispatch.ErrAlreadyStarted) {
		f.logger.Error("update strategy failed to start", "mode", f.Mode().String(), "error", err)
		return Configuration{}, err
	}
	if err == nil {
		f.logger.Info("datafeed ready", "mode", f.Mode().String())
	}
	return configuration(), nil
}

// OnReady runs Ready on its own goroutine and reports through cb. cb never
// runs before OnReady returns.
func (f *Feed) OnReady(cb func(Configuration, error)) {
	go func() {
		cfg, err := f.Ready(context.Background())
		cb(cfg, err)
	}()
}

func configuration() Configuration {
	return Configuration{
		SupportedResolutions: resolution.Supported(),
		Exchanges: []Exchange{
			{Value: "", Name: "All Exchanges", Desc: ""},
		},
		SymbolTypes: []SymbolType{
			{Name: "All types", Value: ""},
			{Name: "Crypto", Value: "crypto"},
			{Name: "Stocks", Value: "stocks"},
			{Name: "Forex", Value: "fx"},
		},
	}
}

// ResolveSymbol looks up id and completes it with the static host metadata.
func (f *Feed) ResolveSymbol(ctx context.Context, id string) (bar.Instrument, error) {
	inst, err := f.symbols.Resolve(ctx, id)
	if err != nil {
		f.logger.Warn("resolve failed", "symbol", id, "error", err)
		return bar.Instrument{}, err
	}
	if inst.Ticker == "" {
		inst.Ticker = id
	}
	if inst.Name == "" {
		inst.Name = inst.Ticker
	}
	inst.Session = "24x7"
	inst.Timezone = "Etc/UTC"
	inst.MinMov = 1
	inst.PriceScale = 100
	inst.HasIntraday = true
	inst.HasDaily = true
	inst.HasWeeklyAndMonthly = true
	inst.SupportedResolutions = resolution.Supported()
	inst.VolumePrecision = 1
	if f.Mode() == dispatch.ModeStreaming {
		inst.DataStatus = "streaming"
	} else {
		inst.DataStatus = "delayed_streaming"
	}
	return inst, nil
}

// GetBars returns the bars of instrument between from and to (Unix seconds).
// Meta.NoData is set for an empty, successful result. Errors are either
// *resolution.UnsupportedResolutionError or *fetcher.FetchError.
func (f *Feed) GetBars(ctx context.Context, instrument bar.Instrument, res string, from, to int64) ([]bar.Bar, Meta, error) {
	bars, err := f.fetcher.Fetch(ctx, instrument, res, from, to)
	if err != nil {
		f.logger.Warn("get bars failed", "ticker", instrument.Ticker, "resolution", res, "error", err)
		return nil, Meta{}, err
	}
	return bars, Meta{NoData: len(bars) == 0}, nil
}

// SubscribeBars registers handler for live updates under key. Resolutions
// outside the streaming policy are dropped without an error and without a
// registry entry.
func (f *Feed) SubscribeBars(ctx context.Context, instrument bar.Instrument, res, key string, handler bar.Handler) error {
	if !slices.Contains(f.allowed, res) {
		f.logger.Debug("subscription dropped by resolution policy", "key", key, "ticker", instrument.Ticker, "resolution", res)
		return nil
	}
	sub := registry.NewSubscription(key, instrument, res, handler)
	if err := f.dispatcher.Subscribe(ctx, sub); err != nil {
		if errors.Is(err, dispatch.ErrStopped) {
			err = ErrClosed
		}
		f.logger.Warn("subscribe failed", "key", key, "ticker", instrument.Ticker, "error", err)
		return err
	}
	f.logger.Debug("subscribed", "key", key, "ticker", instrument.Ticker, "channel", sub.Channel)
	return nil
}

// UnsubscribeBars removes the subscription registered under key. Unknown
// keys are ignored.
func (f *Feed) UnsubscribeBars(key string) {
	if f.dispatcher.Unsubscribe(key) {
		f.logger.Debug("unsubscribed", "key", key)
	}
}

// Close stops updates and neuters every subscription.
func (f *Feed) Close() {
	f.cancel()
	f.dispatcher.Stop()
	f.search.stop()
}
