package datafeed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yitech/barfeed/adapter"
	"github.com/yitech/barfeed/model/bar"
)

// DefaultSearchDebounce is the quiet period before a search is sent.
const DefaultSearchDebounce = 250 * time.Millisecond

// ErrSearchSuperseded is returned by a search replaced by a newer one.
var ErrSearchSuperseded = errors.New("datafeed: search superseded")

// debouncer coalesces calls on the trailing edge: each call waits for the
// quiet period, and a newer call cancels the older one whether it is still
// waiting or already running.
type debouncer struct {
	wait time.Duration

	mu     sync.Mutex
	cancel context.CancelCauseFunc
}

func newDebouncer(wait time.Duration) *debouncer {
	return &debouncer{wait: wait}
}

func (d *debouncer) do(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel(ErrSearchSuperseded)
	}
	d.cancel = cancel
	d.mu.Unlock()

	t := time.NewTimer(d.wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return context.Cause(ctx)
	}

	if err := fn(ctx); err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, ErrSearchSuperseded) {
			return cause
		}
		return err
	}
	return nil
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel(context.Canceled)
		d.cancel = nil
	}
}

// SearchSymbols runs a debounced symbol search. Only the latest call within
// the debounce window reaches the provider; earlier ones return
// ErrSearchSuperseded. Malformed provider responses come back as
// *adapter.MalformedResponseError.
func (f *Feed) SearchSymbols(ctx context.Context, input, exchange, symbolType string) ([]bar.SymbolInfo, error) {
	var out []bar.SymbolInfo
	err := f.search.do(ctx, func(ctx context.Context) error {
		res, err := f.symbols.Search(ctx, adapter.SearchRequest{
			Query:    input,
			Exchange: exchange,
			Type:     symbolType,
		})
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		var mre *adapter.MalformedResponseError
		if errors.As(err, &mre) {
			f.logger.Error("symbol search returned a malformed response", "query", input, "error", err)
		} else if !errors.Is(err, ErrSearchSuperseded) {
			f.logger.Warn("symbol search failed", "query", input, "error", err)
		}
		return nil, err
	}
	return out, nil
}
