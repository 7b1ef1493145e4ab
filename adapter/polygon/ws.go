package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yitech/barfeed/adapter"
	"github.com/yitech/barfeed/logging"
)

const (
	maxBackoff   = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var errAuthFailed = errors.New("authentication failed")

// Stream is the Polygon WebSocket streamer. It authenticates with the API
// key, keeps the set of subscribed channels, and replays that set after
// every reconnect.
type Stream struct {
	url    string
	apiKey string
	logger *slog.Logger
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	channels map[string]struct{}
	handlers map[string][]adapter.EventHandler
	cancel   context.CancelFunc
	done     chan struct{}

	writeMu sync.Mutex
}

var _ adapter.Streamer = (*Stream)(nil)

func newStream(url, apiKey string, logger *slog.Logger) *Stream {
	return &Stream{
		url:      url,
		apiKey:   apiKey,
		logger:   logging.OrDefault(logger),
		dialer:   websocket.DefaultDialer,
		channels: make(map[string]struct{}),
		handlers: make(map[string][]adapter.EventHandler),
	}
}

// On registers handler for events of eventType.
func (s *Stream) On(eventType string, handler adapter.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[eventType] = append(s.handlers[eventType], handler)
}

// Connect starts the connection loop in the background. The loop
// reconnects with exponential backoff until Close is called.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("polygon ws: already connected")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		backoff := time.Second
		for {
			if ctx.Err() != nil {
				return
			}
			if err := s.connectAndRead(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("polygon ws disconnected", "url", s.url, "error", err, "retry_in", backoff)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				if backoff < maxBackoff {
					backoff *= 2
				}
			} else {
				backoff = time.Second
			}
		}
	}()
	return nil
}

// Subscribe records channel and, when connected, sends the subscribe action.
func (s *Stream) Subscribe(channel string) error {
	s.mu.Lock()
	s.channels[channel] = struct{}{}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return s.send(conn, "subscribe", channel)
}

// Unsubscribe forgets channel and, when connected, sends the unsubscribe action.
func (s *Stream) Unsubscribe(channel string) error {
	s.mu.Lock()
	delete(s.channels, channel)
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return s.send(conn, "unsubscribe", channel)
}

// Close stops the connection loop and waits for it to exit.
func (s *Stream) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// connectAndRead maintains a single WebSocket session until the context is
// cancelled or an error occurs.
func (s *Stream) connectAndRead(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-sessionDone:
		}
	}()

	if err := s.send(conn, "auth", s.apiKey); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	channels := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		channels = append(channels, ch)
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	if len(channels) > 0 {
		sort.Strings(channels)
		if err := s.send(conn, "subscribe", strings.Join(channels, ",")); err != nil {
			return fmt.Errorf("resubscribe: %w", err)
		}
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := s.handleMessage(msg); err != nil {
			return err
		}
	}
}

// wsMessage is one element of a Polygon frame. Frames are JSON arrays that
// mix status messages and data events.
type wsMessage struct {
	adapter.StreamEvent
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Stream) handleMessage(msg []byte) error {
	var batch []wsMessage
	if err := json.Unmarshal(msg, &batch); err != nil {
		s.logger.Warn("polygon ws: parse error", "error", err)
		return nil
	}

	for i := range batch {
		m := &batch[i]
		if m.EventType == "status" {
			s.logger.Debug("polygon ws status", "status", m.Status, "message", m.Message)
			if m.Status == "auth_failed" {
				return fmt.Errorf("%w: %s", errAuthFailed, m.Message)
			}
			continue
		}

		s.mu.Lock()
		hs := append([]adapter.EventHandler(nil), s.handlers[m.EventType]...)
		s.mu.Unlock()

		ev := m.StreamEvent
		for _, h := range hs {
			h(&ev)
		}
	}
	return nil
}

func (s *Stream) send(conn *websocket.Conn, action, params string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(map[string]string{"action": action, "params": params})
}
