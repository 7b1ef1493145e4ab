package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yitech/barfeed/datafeed"
	"github.com/yitech/barfeed/model/bar"
)

// Client calls the barfeed.Datafeed service and decodes its replies.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]*structpb.Value) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, &structpb.Struct{Fields: fields}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Ready(ctx context.Context) (datafeed.Configuration, error) {
	out, err := c.invoke(ctx, readyMethod, nil)
	if err != nil {
		return datafeed.Configuration{}, err
	}
	return configurationFromStruct(out), nil
}

func (c *Client) SearchSymbols(ctx context.Context, query, exchange, symbolType string) ([]bar.SymbolInfo, error) {
	out, err := c.invoke(ctx, searchSymbolsMethod, map[string]*structpb.Value{
		"query":    structpb.NewStringValue(query),
		"exchange": structpb.NewStringValue(exchange),
		"type":     structpb.NewStringValue(symbolType),
	})
	if err != nil {
		return nil, err
	}
	return symbolInfosFromList(out, "symbols"), nil
}

func (c *Client) ResolveSymbol(ctx context.Context, ticker string) (bar.Instrument, error) {
	out, err := c.invoke(ctx, resolveSymbolMethod, map[string]*structpb.Value{
		"ticker": structpb.NewStringValue(ticker),
	})
	if err != nil {
		return bar.Instrument{}, err
	}
	return instrumentFromStruct(out), nil
}

// GetBars fetches the bars of ticker between from and to (Unix seconds).
func (c *Client) GetBars(ctx context.Context, ticker, res string, from, to int64) ([]bar.Bar, datafeed.Meta, error) {
	out, err := c.invoke(ctx, getBarsMethod, map[string]*structpb.Value{
		"ticker":     structpb.NewStringValue(ticker),
		"resolution": structpb.NewStringValue(res),
		"from":       structpb.NewNumberValue(float64(from)),
		"to":         structpb.NewNumberValue(float64(to)),
	})
	if err != nil {
		return nil, datafeed.Meta{}, err
	}
	return barsFromList(out, "bars"), datafeed.Meta{NoData: boolean(out, "no_data")}, nil
}

// BarStream is the client side of a SubscribeBars stream.
type BarStream struct {
	stream grpc.ClientStream
}

// SubscribeBars opens a live bar stream. Cancel ctx to unsubscribe.
func (c *Client) SubscribeBars(ctx context.Context, ticker, res string) (*BarStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], subscribeBarsMethod)
	if err != nil {
		return nil, err
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"ticker":     structpb.NewStringValue(ticker),
		"resolution": structpb.NewStringValue(res),
	}}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &BarStream{stream: stream}, nil
}

// Key returns the subscriber key assigned by the server. It blocks until
// the server has sent its header.
func (s *BarStream) Key() (string, error) {
	md, err := s.stream.Header()
	if err != nil {
		return "", err
	}
	if v := md.Get(KeyHeader); len(v) > 0 {
		return v[0], nil
	}
	return "", nil
}

// Recv blocks for the next bar. It returns io.EOF when the server ends
// the stream.
func (s *BarStream) Recv() (bar.Bar, error) {
	out := new(structpb.Struct)
	if err := s.stream.RecvMsg(out); err != nil {
		return bar.Bar{}, err
	}
	return barFromStruct(out), nil
}
