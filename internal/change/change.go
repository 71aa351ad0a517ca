// Package change classifies price moves between two observations of the same asset.
package change

import (
	"github.com/shopspring/decimal"
)

// Class describes how a new observation relates to the stored one.
type Class int

const (
	Unchanged Class = iota
	RisingAlert
	FallingAlert
)

// String implements fmt.Stringer.
func (c Class) String() string {
	switch c {
	case RisingAlert:
		return "up"
	case FallingAlert:
		return "down"
	default:
		return "unchanged"
	}
}

// IsAlert reports whether the class should be notified.
func (c Class) IsAlert() bool {
	return c == RisingAlert || c == FallingAlert
}

// ThresholdPct is the symmetric, inclusive alert boundary in percent.
var ThresholdPct = decimal.NewFromInt(10)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of evaluating one asset in one cycle.
type Result struct {
	Asset    string
	Previous *decimal.Decimal
	Current  decimal.Decimal
	Percent  *decimal.Decimal
	Class    Class

	// InvalidPrevious is set when a stored price was zero or negative and was ignored.
	InvalidPrevious bool
}

// Evaluate compares current against the price stored for asset in record.
// An asset without a usable stored price never alerts.
func Evaluate(asset string, current decimal.Decimal, record map[string]decimal.Decimal) Result {
	res := Result{Asset: asset, Current: current, Class: Unchanged}

	previous, ok := record[asset]
	if !ok {
		return res
	}
	if !previous.IsPositive() {
		res.InvalidPrevious = true
		return res
	}

	prev := previous
	pct := current.Sub(previous).Div(previous).Mul(hundred)
	res.Previous = &prev
	res.Percent = &pct

	switch {
	case pct.GreaterThanOrEqual(ThresholdPct):
		res.Class = RisingAlert
	case pct.LessThanOrEqual(ThresholdPct.Neg()):
		res.Class = FallingAlert
	}
	return res
}
