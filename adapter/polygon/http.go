package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yitech/barfeed/adapter"
	"github.com/yitech/barfeed/model/bar"
	"github.com/yitech/barfeed/trace"
)

const (
	aggsPath    = "/v2/aggs/ticker/%s/range/%d/%s/%d/%d"
	tickersPath = "/v3/reference/tickers"
	maxLimit    = 50000
	searchLimit = 30
)

// Aggregates issues a single range query. Polygon already returns records
// ascending by time, so no paging or reordering happens here.
func (c *Client) Aggregates(ctx context.Context, req adapter.AggregatesRequest) ([]adapter.Aggregate, error) {
	path := fmt.Sprintf(aggsPath, url.PathEscape(req.Ticker), req.Spec.Multiplier, req.Spec.Unit, req.From, req.To)

	q := url.Values{}
	q.Set("adjusted", "true")
	q.Set("sort", "asc")
	q.Set("limit", strconv.Itoa(maxLimit))

	var envelope struct {
		Status       string              `json:"status"`
		ResultsCount int                 `json:"resultsCount"`
		Results      []adapter.Aggregate `json:"results"`
		Error        string              `json:"error"`
		Message      string              `json:"message"`
	}
	if err := c.getJSON(ctx, "polygon: aggregates", path, q, &envelope); err != nil {
		return nil, err
	}
	if !okStatus(envelope.Status) {
		return nil, &adapter.APIError{
			Op:         "polygon: aggregates",
			StatusCode: http.StatusOK,
			Status:     envelope.Status,
			Message:    firstNonEmpty(envelope.Error, envelope.Message),
		}
	}
	return envelope.Results, nil
}

// tickerResult is one entry of the reference tickers endpoints.
type tickerResult struct {
	Ticker          string `json:"ticker"`
	Name            string `json:"name"`
	Market          string `json:"market"`
	Locale          string `json:"locale"`
	PrimaryExchange string `json:"primary_exchange"`
	Type            string `json:"type"`
	CurrencyName    string `json:"currency_name"`
}

func (r tickerResult) exchange() string {
	return firstNonEmpty(r.PrimaryExchange, r.Market)
}

// Search runs a reference ticker search. A response without a results array
// and without an OK status is reported as malformed, not as zero hits.
func (c *Client) Search(ctx context.Context, req adapter.SearchRequest) ([]bar.SymbolInfo, error) {
	ctx, span := trace.StartSpan(ctx, "polygon.Search", attribute.String("query", req.Query))

	q := url.Values{}
	q.Set("search", req.Query)
	q.Set("active", "true")
	q.Set("limit", strconv.Itoa(searchLimit))
	if req.Type != "" {
		q.Set("market", req.Type)
	}
	if req.Exchange != "" {
		q.Set("exchange", req.Exchange)
	}

	var envelope struct {
		Status  string          `json:"status"`
		Results *[]tickerResult `json:"results"`
	}
	if err := c.getJSON(ctx, "polygon: search", tickersPath, q, &envelope); err != nil {
		trace.End(span, err)
		return nil, err
	}
	if envelope.Results == nil {
		if envelope.Status == "OK" {
			trace.End(span, nil)
			return []bar.SymbolInfo{}, nil
		}
		err := &adapter.MalformedResponseError{
			Op:    "polygon: search",
			Cause: fmt.Errorf("missing results (status %q)", envelope.Status),
		}
		trace.End(span, err)
		return nil, err
	}

	out := make([]bar.SymbolInfo, 0, len(*envelope.Results))
	for _, r := range *envelope.Results {
		out = append(out, bar.SymbolInfo{
			Symbol:      r.Ticker,
			FullName:    r.Ticker,
			Description: r.Name,
			Exchange:    r.exchange(),
			Ticker:      r.Ticker,
			Type:        r.Market,
		})
	}
	trace.End(span, nil)
	return out, nil
}

// Resolve fetches the reference details of ticker. Only provider fields are
// filled; host metadata is added by the caller.
func (c *Client) Resolve(ctx context.Context, ticker string) (bar.Instrument, error) {
	ctx, span := trace.StartSpan(ctx, "polygon.Resolve", attribute.String("ticker", ticker))

	var envelope struct {
		Status  string        `json:"status"`
		Results *tickerResult `json:"results"`
	}
	err := c.getJSON(ctx, "polygon: resolve", tickersPath+"/"+url.PathEscape(ticker), url.Values{}, &envelope)
	if err == nil && envelope.Results == nil {
		err = &adapter.MalformedResponseError{
			Op:    "polygon: resolve",
			Cause: fmt.Errorf("missing results for %s (status %q)", ticker, envelope.Status),
		}
	}
	if err != nil {
		trace.End(span, err)
		return bar.Instrument{}, err
	}

	r := envelope.Results
	trace.End(span, nil)
	return bar.Instrument{
		Name:        r.Ticker,
		Ticker:      r.Ticker,
		Description: r.Name,
		Type:        r.Market,
		Exchange:    r.exchange(),
	}, nil
}

// getJSON performs an authenticated GET and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("%s: parse url: %w", op, err)
	}
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http get: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var apiErr struct {
			Status  string `json:"status"`
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		msg := string(body)
		if json.Unmarshal(body, &apiErr) == nil {
			msg = firstNonEmpty(apiErr.Error, apiErr.Message, msg)
		}
		return &adapter.APIError{Op: op, StatusCode: resp.StatusCode, Status: resp.Status, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &adapter.MalformedResponseError{Op: op, Cause: err}
	}
	return nil
}

func okStatus(s string) bool {
	return s == "OK" || s == "DELAYED"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
