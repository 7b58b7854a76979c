package risk

import (
	"errors"
	"math"

	"github.com/evdnx/stratcore/types"
	"github.com/shopspring/decimal"
)

// ErrMartingaleUnbounded is returned when scaling is requested without a
// step cap.
var ErrMartingaleUnbounded = errors.New("martingale scaling needs a positive step cap")

// Rounding describes the broker's quantity constraints.
type Rounding struct {
	Precision int     // decimal places kept
	Step      float64 // increment, <= 0 disables step flooring
	MinQty    float64 // anything smaller rounds to zero
}

// Round floors qty to the step size and precision and drops it below
// MinQty. The sign is preserved.
func Round(qty float64, r Rounding) float64 {
	if qty == 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 0
	}
	d := decimal.NewFromFloat(math.Abs(qty))
	if r.Step > 0 {
		step := decimal.NewFromFloat(r.Step)
		d = d.Div(step).Floor().Mul(step)
	}
	if r.Precision >= 0 {
		d = d.RoundFloor(int32(r.Precision))
	}
	out := d.InexactFloat64()
	if out < r.MinQty || out == 0 {
		return 0
	}
	return math.Copysign(out, qty)
}

// CalcQty sizes a position so that hitting the stop loses maxRisk of
// equity. stopDist is in price units.
func CalcQty(equity, maxRisk, stopDist float64, r Rounding) float64 {
	if equity <= 0 || maxRisk <= 0 || stopDist <= 0 {
		return 0
	}
	// Dollar risk per trade over stop distance in dollars
	qty := decimal.NewFromFloat(equity).
		Mul(decimal.NewFromFloat(maxRisk)).
		Div(decimal.NewFromFloat(stopDist)).
		InexactFloat64()
	return Round(qty, r)
}

// OrderVolume converts an action into a signed order volume against the
// current net position. Entries against an opposite position net it in
// one order (base + |position|); exits close exactly |position|; entries
// in the direction already held are refused.
func OrderVolume(action types.Action, position, base float64) float64 {
	base = math.Abs(base)
	switch action {
	case types.EnterLong:
		if position > 0 {
			return 0
		}
		return base - position
	case types.EnterShort:
		if position < 0 {
			return 0
		}
		return -(base + position)
	case types.ExitLong:
		if position > 0 {
			return -position
		}
	case types.ExitShort:
		if position < 0 {
			return -position
		}
	}
	return 0
}

// OrderFor turns a signed volume into an order at the reference price.
// A zero volume yields ok == false.
func OrderFor(symbol string, volume, price float64, comment string) (types.Order, bool) {
	if volume == 0 {
		return types.Order{}, false
	}
	side := types.Buy
	if volume < 0 {
		side = types.Sell
	}
	return types.Order{
		Symbol:  symbol,
		Side:    side,
		Type:    types.Market,
		Qty:     math.Abs(volume),
		Price:   price,
		Comment: comment,
	}, true
}
