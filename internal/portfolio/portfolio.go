// Package portfolio is the aggregation engine behind the holdings, positions
// and heatmap views.
//
// Every function here is pure: it takes a slice of model.Record snapshots and
// returns freshly derived values. Nothing is cached and no input is mutated,
// so callers may recompute on every state change. Zero denominators are
// defined behavior and yield 0, never NaN or Inf.
package portfolio

import (
	"errors"
	"math"
)

var (
	// ErrInvalidFilterKind is returned for a filter key outside the closed set.
	ErrInvalidFilterKind = errors.New("invalid filter kind")
	// ErrQuantityOutOfRange is returned when a pledge quantity is not in (0, held].
	ErrQuantityOutOfRange = errors.New("quantity out of range")
	// ErrInvalidPledgeMode is returned for a mode other than pledge or payback.
	ErrInvalidPledgeMode = errors.New("invalid pledge mode")
	// ErrInvalidRate is returned for a haircut outside [0,100] or negative rates/days.
	ErrInvalidRate = errors.New("invalid rate")
)

// finite maps NaN and ±Inf to 0.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// percentOf returns num/den*100, or 0 when den is 0.
func percentOf(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return finite(num / den * 100)
}
