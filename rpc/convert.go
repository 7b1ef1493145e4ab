package rpc

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yitech/barfeed/datafeed"
	"github.com/yitech/barfeed/model/bar"
)

func barToStruct(b bar.Bar) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"time":   structpb.NewNumberValue(float64(b.Time)),
		"open":   structpb.NewNumberValue(b.Open),
		"high":   structpb.NewNumberValue(b.High),
		"low":    structpb.NewNumberValue(b.Low),
		"close":  structpb.NewNumberValue(b.Close),
		"volume": structpb.NewNumberValue(b.Volume),
	}}
}

func barFromStruct(s *structpb.Struct) bar.Bar {
	return bar.Bar{
		Time:   int64(num(s, "time")),
		Open:   num(s, "open"),
		High:   num(s, "high"),
		Low:    num(s, "low"),
		Close:  num(s, "close"),
		Volume: num(s, "volume"),
	}
}

func barsToList(bars []bar.Bar) *structpb.Value {
	vals := make([]*structpb.Value, len(bars))
	for i, b := range bars {
		vals[i] = structpb.NewStructValue(barToStruct(b))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func barsFromList(s *structpb.Struct, key string) []bar.Bar {
	vals := list(s, key)
	out := make([]bar.Bar, 0, len(vals))
	for _, v := range vals {
		out = append(out, barFromStruct(v.GetStructValue()))
	}
	return out
}

func instrumentToStruct(in bar.Instrument) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"name":                   structpb.NewStringValue(in.Name),
		"ticker":                 structpb.NewStringValue(in.Ticker),
		"description":            structpb.NewStringValue(in.Description),
		"type":                   structpb.NewStringValue(in.Type),
		"exchange":               structpb.NewStringValue(in.Exchange),
		"session":                structpb.NewStringValue(in.Session),
		"timezone":               structpb.NewStringValue(in.Timezone),
		"minmov":                 structpb.NewNumberValue(float64(in.MinMov)),
		"pricescale":             structpb.NewNumberValue(float64(in.PriceScale)),
		"has_intraday":           structpb.NewBoolValue(in.HasIntraday),
		"has_daily":              structpb.NewBoolValue(in.HasDaily),
		"has_weekly_and_monthly": structpb.NewBoolValue(in.HasWeeklyAndMonthly),
		"supported_resolutions":  stringsToList(in.SupportedResolutions),
		"volume_precision":       structpb.NewNumberValue(float64(in.VolumePrecision)),
		"data_status":            structpb.NewStringValue(in.DataStatus),
	}}
}

func instrumentFromStruct(s *structpb.Struct) bar.Instrument {
	return bar.Instrument{
		Name:                 str(s, "name"),
		Ticker:               str(s, "ticker"),
		Description:          str(s, "description"),
		Type:                 str(s, "type"),
		Exchange:             str(s, "exchange"),
		Session:              str(s, "session"),
		Timezone:             str(s, "timezone"),
		MinMov:               int(num(s, "minmov")),
		PriceScale:           int(num(s, "pricescale")),
		HasIntraday:          boolean(s, "has_intraday"),
		HasDaily:             boolean(s, "has_daily"),
		HasWeeklyAndMonthly:  boolean(s, "has_weekly_and_monthly"),
		SupportedResolutions: stringsFromList(s, "supported_resolutions"),
		VolumePrecision:      int(num(s, "volume_precision")),
		DataStatus:           str(s, "data_status"),
	}
}

func symbolInfosToList(infos []bar.SymbolInfo) *structpb.Value {
	vals := make([]*structpb.Value, len(infos))
	for i, si := range infos {
		vals[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"symbol":      structpb.NewStringValue(si.Symbol),
			"full_name":   structpb.NewStringValue(si.FullName),
			"description": structpb.NewStringValue(si.Description),
			"exchange":    structpb.NewStringValue(si.Exchange),
			"ticker":      structpb.NewStringValue(si.Ticker),
			"type":        structpb.NewStringValue(si.Type),
		}})
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func symbolInfosFromList(s *structpb.Struct, key string) []bar.SymbolInfo {
	vals := list(s, key)
	out := make([]bar.SymbolInfo, 0, len(vals))
	for _, v := range vals {
		si := v.GetStructValue()
		out = append(out, bar.SymbolInfo{
			Symbol:      str(si, "symbol"),
			FullName:    str(si, "full_name"),
			Description: str(si, "description"),
			Exchange:    str(si, "exchange"),
			Ticker:      str(si, "ticker"),
			Type:        str(si, "type"),
		})
	}
	return out
}

func configurationToStruct(c datafeed.Configuration) *structpb.Struct {
	exchanges := make([]*structpb.Value, len(c.Exchanges))
	for i, e := range c.Exchanges {
		exchanges[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"value": structpb.NewStringValue(e.Value),
			"name":  structpb.NewStringValue(e.Name),
			"desc":  structpb.NewStringValue(e.Desc),
		}})
	}
	types := make([]*structpb.Value, len(c.SymbolTypes))
	for i, t := range c.SymbolTypes {
		types[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"name":  structpb.NewStringValue(t.Name),
			"value": structpb.NewStringValue(t.Value),
		}})
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"supported_resolutions":    stringsToList(c.SupportedResolutions),
		"exchanges":                structpb.NewListValue(&structpb.ListValue{Values: exchanges}),
		"symbols_types":            structpb.NewListValue(&structpb.ListValue{Values: types}),
		"supports_marks":           structpb.NewBoolValue(c.SupportsMarks),
		"supports_timescale_marks": structpb.NewBoolValue(c.SupportsTimescaleMarks),
		"supports_time":            structpb.NewBoolValue(c.SupportsTime),
	}}
}

func configurationFromStruct(s *structpb.Struct) datafeed.Configuration {
	c := datafeed.Configuration{
		SupportedResolutions:   stringsFromList(s, "supported_resolutions"),
		SupportsMarks:          boolean(s, "supports_marks"),
		SupportsTimescaleMarks: boolean(s, "supports_timescale_marks"),
		SupportsTime:           boolean(s, "supports_time"),
	}
	for _, v := range list(s, "exchanges") {
		e := v.GetStructValue()
		c.Exchanges = append(c.Exchanges, datafeed.Exchange{Value: str(e, "value"), Name: str(e, "name"), Desc: str(e, "desc")})
	}
	for _, v := range list(s, "symbols_types") {
		t := v.GetStructValue()
		c.SymbolTypes = append(c.SymbolTypes, datafeed.SymbolType{Name: str(t, "name"), Value: str(t, "value")})
	}
	return c
}

func stringsToList(ss []string) *structpb.Value {
	vals := make([]*structpb.Value, len(ss))
	for i, s := range ss {
		vals[i] = structpb.NewStringValue(s)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func stringsFromList(s *structpb.Struct, key string) []string {
	vals := list(s, key)
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.GetStringValue())
	}
	return out
}

// Missing fields read as zero values, like unset proto3 fields.

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func num(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func boolean(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func list(s *structpb.Struct, key string) []*structpb.Value {
	return s.GetFields()[key].GetListValue().GetValues()
}
