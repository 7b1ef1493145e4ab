package symbol

import (
	"errors"
	"testing"
)

func TestStreamSymbol(t *testing.T) {
	cases := map[string]string{
		"X:BTCUSD":  "BTC-USD",
		"X:ETHUSD":  "ETH-USD",
		"X:DOGEUSD": "DOGE-USD",
	}
	for in, want := range cases {
		got, err := DefaultTranslator.StreamSymbol(in)
		if err != nil {
			t.Fatalf("StreamSymbol(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("StreamSymbol(%q) = %q, want %q", in, got, want)
		}
		again, _ := DefaultTranslator.StreamSymbol(in)
		if again != got {
			t.Errorf("StreamSymbol(%q) not deterministic: %q then %q", in, got, again)
		}
	}
}

func TestStreamSymbolCustomParams(t *testing.T) {
	tr := Translator{PrefixLen: 0, SuffixLen: 4, Quote: "/USDT"}
	got, err := tr.StreamSymbol("SOLUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if got != "SOL/USDT" {
		t.Errorf("got %q, want SOL/USDT", got)
	}
}

func TestStreamSymbolTooShort(t *testing.T) {
	for _, in := range []string{"", "X:", "X:USD", "AB"} {
		_, err := DefaultTranslator.StreamSymbol(in)
		var tse *TickerTooShortError
		if !errors.As(err, &tse) {
			t.Errorf("StreamSymbol(%q): expected TickerTooShortError, got %v", in, err)
		}
	}
}

func TestChannel(t *testing.T) {
	got, err := DefaultTranslator.Channel("XA", "X:ETHUSD")
	if err != nil {
		t.Fatal(err)
	}
	if got != "XA.ETH-USD" {
		t.Errorf("Channel = %q, want XA.ETH-USD", got)
	}
}
