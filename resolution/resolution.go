// Package resolution maps chart resolution tokens onto provider aggregation
// parameters.
package resolution

import (
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Unit is the provider's aggregation time unit.
type Unit string

const (
	Minute Unit = "minute"
	Hour   Unit = "hour"
	Day    Unit = "day"
)

// Spec is the (multiplier, unit) pair sent with an aggregates query.
type Spec struct {
	Multiplier int
	Unit       Unit
}

func (s Spec) String() string {
	return strconv.Itoa(s.Multiplier) + "/" + string(s.Unit)
}

// Duration is the length of one bar.
func (s Spec) Duration() time.Duration {
	var unit time.Duration
	switch s.Unit {
	case Minute:
		unit = time.Minute
	case Hour:
		unit = time.Hour
	case Day:
		unit = 24 * time.Hour
	}
	return time.Duration(s.Multiplier) * unit
}

// supported lists every resolution the chart host may request, in the order
// it is advertised.
var supported = []string{
	"1", "3", "5", "15", "30", "45",
	"60", "120", "180", "240",
	"D", "1D",
	"W", "1W",
	"M", "1M",
	"12M",
}

var (
	minutes = []string{"1", "3", "5", "15", "30", "45"}
	hours   = []string{"60", "120", "180", "240"}
)

// UnsupportedResolutionError is returned by Map for tokens it cannot turn
// into a Spec. Supported is true for week/month/year tokens: the host may
// chart them, but they have no aggregation mapping.
type UnsupportedResolutionError struct {
	Resolution string
	Supported  bool
}

func (e *UnsupportedResolutionError) Error() string {
	if e.Supported {
		return fmt.Sprintf("resolution: %q has no aggregation mapping", e.Resolution)
	}
	return fmt.Sprintf("resolution: unsupported resolution %q", e.Resolution)
}

// Supported returns a copy of the supported resolution set.
func Supported() []string {
	return slices.Clone(supported)
}

// IsSupported reports whether r belongs to the supported set.
func IsSupported(r string) bool {
	return slices.Contains(supported, r)
}

// Map converts a chart resolution into an aggregation Spec. First match wins:
// daily tokens, then minute multiples, then hour multiples.
func Map(r string) (Spec, error) {
	switch {
	case r == "D" || r == "1D":
		return Spec{Multiplier: 1, Unit: Day}, nil
	case slices.Contains(minutes, r):
		n, _ := strconv.Atoi(r)
		return Spec{Multiplier: n, Unit: Minute}, nil
	case slices.Contains(hours, r):
		n, _ := strconv.Atoi(r)
		return Spec{Multiplier: n / 60, Unit: Hour}, nil
	}
	return Spec{}, &UnsupportedResolutionError{Resolution: r, Supported: IsSupported(r)}
}
