package adapter

import (
	"context"
	"fmt"

	"github.com/yitech/barfeed/model/bar"
	"github.com/yitech/barfeed/resolution"
)

// Aggregate is one historical OHLCV record as returned by the provider.
// T is the bar start in Unix milliseconds.
type Aggregate struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

// AggregatesRequest describes a single historical range query.
// From and To are Unix milliseconds.
type AggregatesRequest struct {
	Ticker string
	Spec   resolution.Spec
	From   int64
	To     int64
}

// AggregatesClient issues historical aggregate queries.
type AggregatesClient interface {
	// Aggregates returns the records for req in provider order. An empty
	// slice with a nil error means the range holds no data.
	Aggregates(ctx context.Context, req AggregatesRequest) ([]Aggregate, error)
}

// SearchRequest carries the symbol search parameters sent by the host.
type SearchRequest struct {
	Query    string
	Exchange string
	Type     string
}

// SymbolClient looks up symbol metadata.
type SymbolClient interface {
	Search(ctx context.Context, req SearchRequest) ([]bar.SymbolInfo, error)
	Resolve(ctx context.Context, ticker string) (bar.Instrument, error)
}

// StreamEvent is one push-stream aggregate event. Crypto channels carry the
// symbol in Pair, equity channels in Sym. Start and End are Unix milliseconds.
type StreamEvent struct {
	EventType string  `json:"ev"`
	Pair      string  `json:"pair"`
	Sym       string  `json:"sym"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	Start     int64   `json:"s"`
	End       int64   `json:"e"`
}

// Symbol returns the stream symbol the event belongs to.
func (e *StreamEvent) Symbol() string {
	if e.Pair != "" {
		return e.Pair
	}
	return e.Sym
}

// Bar converts the event into a host bar.
func (e *StreamEvent) Bar() bar.Bar {
	return bar.Bar{
		Time:   e.Start,
		Open:   e.Open,
		High:   e.High,
		Low:    e.Low,
		Close:  e.Close,
		Volume: e.Volume,
	}
}

// EventHandler receives stream events registered through Streamer.On.
type EventHandler func(*StreamEvent)

// Streamer is the contract for the push-based market-data connection.
type Streamer interface {
	// Connect opens the connection and performs authentication. It returns
	// once the read loop is running in the background.
	Connect(ctx context.Context) error

	// Subscribe asks the feed to push events for channel.
	Subscribe(channel string) error

	// Unsubscribe stops pushes for channel.
	Unsubscribe(channel string) error

	// On registers handler for every event whose type equals eventType.
	On(eventType string, handler EventHandler)

	// Close shuts down the connection and releases all resources.
	Close() error
}

// MalformedResponseError reports a provider payload with an unexpected shape.
type MalformedResponseError struct {
	Op    string
	Cause error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Cause)
}

func (e *MalformedResponseError) Unwrap() error { return e.Cause }

// APIError reports a non-success HTTP status or provider status field.
type APIError struct {
	Op         string
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: api error %s: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: unexpected status %s", e.Op, e.Status)
}
