package types

import "time"

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderType selects how the dispatcher should work the order.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
	Stop   OrderType = "STOP"
)

type Order struct {
	Symbol string
	Side   Side
	Type   OrderType
	Qty    float64
	Price  float64 // reference price for market orders, trigger/limit price otherwise
	// meta
	Comment string
}

// Signed returns the quantity with the sign of the side (buy > 0).
func (o Order) Signed() float64 {
	if o.Side == Sell {
		return -o.Qty
	}
	return o.Qty
}

// Bar is a single OHLCV candle. Only finished bars drive decisions.
type Bar struct {
	Symbol    string
	OpenTime  time.Time
	CloseTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Finished  bool
}

// Action is the outcome of a per-bar signal evaluation.
type Action int

const (
	Hold Action = iota
	EnterLong
	EnterShort
	ExitLong
	ExitShort
)

func (a Action) String() string {
	switch a {
	case EnterLong:
		return "enter_long"
	case EnterShort:
		return "enter_short"
	case ExitLong:
		return "exit_long"
	case ExitShort:
		return "exit_short"
	default:
		return "hold"
	}
}

// Direction of an open position.
type Direction int

const (
	Flat  Direction = 0
	Long  Direction = 1
	Short Direction = -1
)

// DirectionOf maps a signed position to its direction.
func DirectionOf(qty float64) Direction {
	switch {
	case qty > 0:
		return Long
	case qty < 0:
		return Short
	default:
		return Flat
	}
}

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}
