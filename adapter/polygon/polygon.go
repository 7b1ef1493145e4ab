package polygon

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yitech/barfeed/adapter"
	"github.com/yitech/barfeed/logging"
)

const (
	DefaultBaseURL = "https://api.polygon.io"
	DefaultWSURL   = "wss://socket.polygon.io/crypto"
)

// Config holds the provider endpoints and credentials.
type Config struct {
	APIKey      string
	BaseURL     string
	WSURL       string
	HTTPTimeout time.Duration
}

// Client is the Polygon REST adapter. It serves historical aggregates,
// symbol search and symbol resolution.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ adapter.AggregatesClient = (*Client)(nil)
	_ adapter.SymbolClient     = (*Client)(nil)
)

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     logging.OrDefault(logger),
	}
}

// NewStreamer returns the WebSocket streamer for cfg.
func NewStreamer(cfg Config, logger *slog.Logger) *Stream {
	url := cfg.WSURL
	if url == "" {
		url = DefaultWSURL
	}
	return newStream(url, cfg.APIKey, logger)
}
