package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yitech/barfeed/adapter"
	"github.com/yitech/barfeed/datafeed"
	"github.com/yitech/barfeed/dispatch"
	"github.com/yitech/barfeed/fetcher"
	"github.com/yitech/barfeed/logging"
	"github.com/yitech/barfeed/model/bar"
	"github.com/yitech/barfeed/resolution"
	"github.com/yitech/barfeed/symbol"
)

// KeyHeader carries the subscriber key of a SubscribeBars stream.
const KeyHeader = "x-barfeed-key"

// DefaultStreamBuffer is the number of bars queued per stream before new
// ones are dropped.
const DefaultStreamBuffer = 64

// Feed is the part of datafeed.Feed served over gRPC.
type Feed interface {
	Ready(ctx context.Context) (datafeed.Configuration, error)
	SearchSymbols(ctx context.Context, input, exchange, symbolType string) ([]bar.SymbolInfo, error)
	ResolveSymbol(ctx context.Context, id string) (bar.Instrument, error)
	GetBars(ctx context.Context, instrument bar.Instrument, res string, from, to int64) ([]bar.Bar, datafeed.Meta, error)
	SubscribeBars(ctx context.Context, instrument bar.Instrument, res, key string, handler bar.Handler) error
	UnsubscribeBars(key string)
}

var _ Feed = (*datafeed.Feed)(nil)

// Server implements DatafeedServer on top of a Feed.
type Server struct {
	feed   Feed
	buffer int
	logger *slog.Logger
}

var _ DatafeedServer = (*Server)(nil)

func NewServer(feed Feed, logger *slog.Logger) *Server {
	return &Server{feed: feed, buffer: DefaultStreamBuffer, logger: logging.OrDefault(logger)}
}

func (s *Server) Ready(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	cfg, err := s.feed.Ready(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return configurationToStruct(cfg), nil
}

func (s *Server) SearchSymbols(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.feed.SearchSymbols(ctx, str(req, "query"), str(req, "exchange"), str(req, "type"))
	if err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"symbols": symbolInfosToList(res),
	}}, nil
}

func (s *Server) ResolveSymbol(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ticker := str(req, "ticker")
	if ticker == "" {
		return nil, status.Error(codes.InvalidArgument, "ticker is required")
	}
	inst, err := s.feed.ResolveSymbol(ctx, ticker)
	if err != nil {
		return nil, toStatus(err)
	}
	return instrumentToStruct(inst), nil
}

func (s *Server) GetBars(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ticker := str(req, "ticker")
	if ticker == "" {
		return nil, status.Error(codes.InvalidArgument, "ticker is required")
	}
	bars, meta, err := s.feed.GetBars(ctx, bar.Instrument{Ticker: ticker}, str(req, "resolution"), int64(num(req, "from")), int64(num(req, "to")))
	if err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"bars":    barsToList(bars),
		"no_data": structpb.NewBoolValue(meta.NoData),
	}}, nil
}

// SubscribeBars streams live bars until the client goes away. Each stream
// is one subscriber, keyed by a fresh UUID sent back in the KeyHeader.
func (s *Server) SubscribeBars(req *structpb.Struct, stream BarStreamServer) error {
	ctx := stream.Context()
	ticker, res := str(req, "ticker"), str(req, "resolution")
	if ticker == "" {
		return status.Error(codes.InvalidArgument, "ticker is required")
	}

	key := uuid.NewString()
	logger := s.logger.With("key", key, "ticker", ticker, "resolution", res)

	bars := make(chan bar.Bar, s.buffer)
	handler := func(b bar.Bar) {
		select {
		case bars <- b:
		default:
			logger.Warn("stream buffer full, dropping bar", "time", b.Time)
		}
	}
	if err := s.feed.SubscribeBars(ctx, bar.Instrument{Ticker: ticker}, res, key, handler); err != nil {
		return toStatus(err)
	}
	defer s.feed.UnsubscribeBars(key)

	if err := stream.SendHeader(metadata.Pairs(KeyHeader, key)); err != nil {
		return err
	}
	logger.Info("new subscription")

	for {
		select {
		case <-ctx.Done():
			logger.Info("client disconnected")
			return nil
		case b := <-bars:
			if err := stream.Send(barToStruct(b)); err != nil {
				return err
			}
		}
	}
}

// toStatus maps feed errors onto gRPC status codes.
func toStatus(err error) error {
	var (
		ure *resolution.UnsupportedResolutionError
		tts *symbol.TickerTooShortError
		fe  *fetcher.FetchError
		mre *adapter.MalformedResponseError
		ae  *adapter.APIError
	)
	switch {
	case errors.As(err, &ure), errors.As(err, &tts):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, datafeed.ErrSearchSuperseded), errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, datafeed.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, dispatch.ErrNotReady):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &mre):
		return status.Error(codes.Internal, err.Error())
	case errors.As(err, &fe), errors.As(err, &ae):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}

// UnaryLoggingInterceptor logs every unary call with its duration and code.
func UnaryLoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	logger = logging.OrDefault(logger)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "rpc", "method", info.FullMethod, "code", status.Code(err).String(), "duration", time.Since(start))
		return resp, err
	}
}
