package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yitech/barfeed/adapter"
	"github.com/yitech/barfeed/logging"
	"github.com/yitech/barfeed/registry"
	"github.com/yitech/barfeed/symbol"
)

// DefaultChannelType is the per-minute crypto aggregate event type.
const DefaultChannelType = "XA"

// Streaming routes push events to the subscriptions listening on the
// event's channel. Channels are reference counted: the first subscriber
// subscribes the channel on the streamer, the last one to leave
// unsubscribes it. A lost connection is not retried here.
type Streaming struct {
	streamer    adapter.Streamer
	reg         *registry.Registry
	translator  symbol.Translator
	channelType string
	logger      *slog.Logger

	mu   sync.Mutex
	refs map[string]int
}

func NewStreaming(streamer adapter.Streamer, reg *registry.Registry, translator symbol.Translator, channelType string, logger *slog.Logger) *Streaming {
	if channelType == "" {
		channelType = DefaultChannelType
	}
	return &Streaming{
		streamer:    streamer,
		reg:         reg,
		translator:  translator,
		channelType: channelType,
		logger:      logging.OrDefault(logger),
		refs:        make(map[string]int),
	}
}

func (s *Streaming) Mode() Mode { return ModeStreaming }

// Start registers the event handler and opens the connection.
func (s *Streaming) Start(ctx context.Context) error {
	s.streamer.On(s.channelType, s.handleEvent)
	if err := s.streamer.Connect(ctx); err != nil {
		return fmt.Errorf("dispatch: connect streamer: %w", err)
	}
	s.logger.Info("streaming started", "channel_type", s.channelType)
	return nil
}

// Attach computes sub's channel and subscribes it when sub is the first
// listener.
func (s *Streaming) Attach(_ context.Context, sub *registry.Subscription) error {
	ch, err := s.translator.Channel(s.channelType, sub.Instrument.Ticker)
	if err != nil {
		return err
	}
	sub.Channel = ch

	// mu covers the streamer call as well, so a subscribe never overtakes
	// the unsubscribe of the previous last listener on the same channel.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs[ch] > 0 {
		s.refs[ch]++
		return nil
	}
	if err := s.streamer.Subscribe(ch); err != nil {
		return fmt.Errorf("dispatch: subscribe %s: %w", ch, err)
	}
	s.refs[ch] = 1
	s.logger.Debug("channel subscribed", "channel", ch)
	return nil
}

// Detach unsubscribes sub's channel once nobody listens to it.
func (s *Streaming) Detach(sub *registry.Subscription) {
	if sub.Channel == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.refs[sub.Channel]
	if !ok {
		return
	}
	if n > 1 {
		s.refs[sub.Channel] = n - 1
		return
	}
	delete(s.refs, sub.Channel)
	if err := s.streamer.Unsubscribe(sub.Channel); err != nil {
		s.logger.Warn("channel unsubscribe failed", "channel", sub.Channel, "error", err)
		return
	}
	s.logger.Debug("channel unsubscribed", "channel", sub.Channel)
}

func (s *Streaming) handleEvent(ev *adapter.StreamEvent) {
	ch := symbol.ChannelName(ev.EventType, ev.Symbol())
	b := ev.Bar()
	s.reg.ForEach(func(sub *registry.Subscription) {
		if sub.Channel == ch {
			sub.Deliver(b)
		}
	})
}

// Stop closes the streamer.
func (s *Streaming) Stop() {
	if err := s.streamer.Close(); err != nil {
		s.logger.Warn("streamer close failed", "error", err)
	}
	s.logger.Info("streaming stopped")
}
