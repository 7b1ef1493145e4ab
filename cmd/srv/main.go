package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/yitech/barfeed/adapter/polygon"
	"github.com/yitech/barfeed/config"
	"github.com/yitech/barfeed/datafeed"
	"github.com/yitech/barfeed/dispatch"
	"github.com/yitech/barfeed/logging"
	"github.com/yitech/barfeed/rpc"
	"github.com/yitech/barfeed/symbol"
	"github.com/yitech/barfeed/trace"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.Log)
	if err := trace.Init(cfg.Tracing); err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}

	feed := newFeed(cfg, logger)

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.Listen, "error", err)
		os.Exit(1)
	}

	s := grpc.NewServer(grpc.UnaryInterceptor(rpc.UnaryLoggingInterceptor(logger)))
	rpc.RegisterDatafeedServer(s, rpc.NewServer(feed, logger))

	// Start the update strategy eagerly so the first subscriber does not
	// pay for the connection.
	feed.OnReady(func(_ datafeed.Configuration, err error) {
		if err != nil {
			logger.Error("datafeed failed to become ready", "error", err)
		}
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		s.GracefulStop()
	}()

	logger.Info("gRPC server listening", "addr", cfg.Listen, "mode", feed.Mode().String())
	if err := s.Serve(lis); err != nil {
		logger.Error("failed to serve", "error", err)
	}

	feed.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := trace.Shutdown(ctx); err != nil {
		logger.Warn("trace shutdown", "error", err)
	}
}

func newFeed(cfg *config.Config, logger *slog.Logger) *datafeed.Feed {
	pcfg := polygon.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.RESTBaseURL,
		WSURL:       cfg.WSURL,
		HTTPTimeout: cfg.HTTPTimeout,
	}
	client := polygon.New(pcfg, logger)

	deps := datafeed.Deps{Aggregates: client, Symbols: client}
	if cfg.Realtime {
		deps.Streamer = polygon.NewStreamer(pcfg, logger)
	}

	return datafeed.New(deps, datafeed.Options{
		Realtime:             cfg.Realtime,
		StreamingResolutions: cfg.StreamingResolutions,
		SearchDebounce:       cfg.SearchDebounce,
		ChannelType:          cfg.ChannelType,
		Polling: dispatch.PollingConfig{
			Interval:     cfg.PollInterval,
			Window:       cfg.PollWindow,
			FetchTimeout: cfg.FetchTimeout,
		},
		Translator: &symbol.Translator{
			PrefixLen: cfg.Symbol.PrefixLen,
			SuffixLen: cfg.Symbol.SuffixLen,
			Quote:     cfg.Symbol.Quote,
		},
	}, logger)
}
