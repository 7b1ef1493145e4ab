// Package fetcher turns historical aggregate queries into host bars.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yitech/barfeed/adapter"
	"github.com/yitech/barfeed/logging"
	"github.com/yitech/barfeed/model/bar"
	"github.com/yitech/barfeed/resolution"
	"github.com/yitech/barfeed/trace"
)

// FetchError wraps a transport or provider failure for one range query.
type FetchError struct {
	Ticker     string
	Resolution string
	Cause      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetcher [%s/%s]: %v", e.Ticker, e.Resolution, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Fetcher issues one aggregates query per call. It never retries.
type Fetcher struct {
	client adapter.AggregatesClient
	logger *slog.Logger
}

func New(client adapter.AggregatesClient, logger *slog.Logger) *Fetcher {
	return &Fetcher{client: client, logger: logging.OrDefault(logger)}
}

// Fetch returns the bars of instrument between from and to (Unix seconds) in
// provider order. Unmappable resolutions fail with
// *resolution.UnsupportedResolutionError before any request is made; every
// other failure is a *FetchError. An empty slice with a nil error means the
// range holds no data.
func (f *Fetcher) Fetch(ctx context.Context, instrument bar.Instrument, res string, from, to int64) ([]bar.Bar, error) {
	spec, err := resolution.Map(res)
	if err != nil {
		return nil, err
	}

	ctx, span := trace.StartSpan(ctx, "fetcher.Fetch",
		attribute.String("ticker", instrument.Ticker),
		attribute.String("resolution", res),
		attribute.Int64("from", from),
		attribute.Int64("to", to),
	)

	req := adapter.AggregatesRequest{
		Ticker: instrument.Ticker,
		Spec:   spec,
		From:   from * 1000,
		To:     to * 1000,
	}
	aggs, err := f.client.Aggregates(ctx, req)
	if err != nil {
		ferr := &FetchError{Ticker: instrument.Ticker, Resolution: res, Cause: err}
		trace.End(span, ferr)
		return nil, ferr
	}

	bars := make([]bar.Bar, 0, len(aggs))
	for _, a := range aggs {
		bars = append(bars, bar.Bar{
			Time:   a.T,
			Open:   a.O,
			High:   a.H,
			Low:    a.L,
			Close:  a.C,
			Volume: a.V,
		})
	}

	span.SetAttributes(attribute.Int("bars", len(bars)))
	trace.End(span, nil)
	f.logger.Debug("fetched bars",
		"ticker", instrument.Ticker, "spec", spec.String(), "from", from, "to", to, "bars", len(bars))
	return bars, nil
}
