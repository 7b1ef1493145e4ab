package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/yitech/barfeed/resolution"
	"github.com/yitech/barfeed/rpc"
)

func main() {
	_ = godotenv.Load()

	addr := getEnv("SERVER_ADDR", "localhost:50051")
	ticker := getEnv("TICKER", "X:BTCUSD")
	res := getEnv("RESOLUTION", "1D")
	nBars := getEnvInt("N_BARS", 48)

	spec, err := resolution.Map(res)
	if err != nil {
		log.Fatalf("invalid RESOLUTION: %v", err)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}
	defer conn.Close()

	client := rpc.NewClient(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	history := func() tea.Msg {
		to := time.Now()
		from := to.Add(-time.Duration(nBars) * spec.Duration())
		bars, meta, err := client.GetBars(ctx, ticker, res, from.Unix(), to.Unix())
		return historyMsg{bars: bars, noData: meta.NoData, err: err}
	}

	updates := make(chan tea.Msg, 128)
	go func() {
		for ctx.Err() == nil {
			if err := streamBars(ctx, client, ticker, res, updates); err != nil && ctx.Err() == nil {
				updates <- statusMsg{err: err}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
		}
	}()

	p := tea.NewProgram(
		newModel(ticker, res, nBars, history, updates),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		log.Fatalf("tui error: %v", err)
	}
}

func streamBars(ctx context.Context, client *rpc.Client, ticker, res string, out chan<- tea.Msg) error {
	stream, err := client.SubscribeBars(ctx, ticker, res)
	if err != nil {
		return err
	}
	for {
		b, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case out <- barMsg{b}:
		case <-ctx.Done():
			return nil
		}
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
