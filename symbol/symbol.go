// Package symbol converts chart tickers into streaming channel names.
package symbol

import "fmt"

// Translator turns a provider ticker such as "X:BTCUSD" into the symbol the
// streaming feed expects ("BTC-USD") by dropping a fixed-length prefix and
// suffix and appending Quote.
type Translator struct {
	PrefixLen int
	SuffixLen int
	Quote     string
}

// DefaultTranslator matches Polygon crypto tickers.
var DefaultTranslator = Translator{PrefixLen: 2, SuffixLen: 3, Quote: "-USD"}

// TickerTooShortError is returned when a ticker has nothing left once the
// prefix and suffix are removed.
type TickerTooShortError struct {
	Ticker string
	MinLen int
}

func (e *TickerTooShortError) Error() string {
	return fmt.Sprintf("symbol: ticker %q is shorter than %d characters", e.Ticker, e.MinLen)
}

// StreamSymbol returns the streaming symbol for ticker.
func (t Translator) StreamSymbol(ticker string) (string, error) {
	if len(ticker) <= t.PrefixLen+t.SuffixLen {
		return "", &TickerTooShortError{Ticker: ticker, MinLen: t.PrefixLen + t.SuffixLen + 1}
	}
	return ticker[t.PrefixLen:len(ticker)-t.SuffixLen] + t.Quote, nil
}

// Channel returns the channel name for ticker, e.g. "XA.BTC-USD".
func (t Translator) Channel(channelType, ticker string) (string, error) {
	s, err := t.StreamSymbol(ticker)
	if err != nil {
		return "", err
	}
	return ChannelName(channelType, s), nil
}

// ChannelName joins an event type and a stream symbol.
func ChannelName(channelType, streamSymbol string) string {
	return channelType + "." + streamSymbol
}
