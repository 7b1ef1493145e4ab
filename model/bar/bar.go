package bar

// Bar is the host-facing representation of an OHLCV bar.
// Time is the bar start in Unix milliseconds; every provider timestamp is
// normalized to this unit before a Bar leaves the adapter layer.
type Bar struct {
	Time   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Handler receives bar updates for a single chart subscription.
type Handler func(Bar)

// Instrument describes a resolved symbol as the charting host knows it.
// It is produced once by symbol resolution and never mutated afterwards.
type Instrument struct {
	Name                 string
	Ticker               string
	Description          string
	Type                 string
	Exchange             string
	Session              string
	Timezone             string
	MinMov               int
	PriceScale           int
	HasIntraday          bool
	HasDaily             bool
	HasWeeklyAndMonthly  bool
	SupportedResolutions []string
	VolumePrecision      int
	DataStatus           string
}

// SymbolInfo is a single symbol search hit.
type SymbolInfo struct {
	Symbol      string
	FullName    string
	Description string
	Exchange    string
	Ticker      string
	Type        string
}
