package executor

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/evdnx/stratcore/types"
)

var (
	// ErrRejected is returned for orders the dispatcher refuses outright.
	ErrRejected = errors.New("order rejected")
	// ErrInsufficientCash is returned when a buy cannot be paid for.
	ErrInsufficientCash = errors.New("insufficient cash")
)

// OrderSink accepts sized orders.
type OrderSink interface {
	Submit(o types.Order) error
}

// PositionView exposes the signed net position and average entry price.
type PositionView interface {
	Position(symbol string) (qty float64, avgPrice float64)
}

// EquityView exposes the portfolio value used for risk sizing and weights.
type EquityView interface {
	Equity() float64
}

// Executor is the full dispatcher seam: the core reads positions and
// equity and submits orders, it never mutates positions itself.
type Executor interface {
	OrderSink
	PositionView
	EquityView
}

const epsilon = 1e-9

type position struct {
	qty float64
	avg float64
}

// PaperExecutor is an in-memory dispatcher: perfect fills at the order
// price, no slippage, positions net through zero in a single order.
type PaperExecutor struct {
	mu          sync.RWMutex
	cash        float64
	realizedPnL float64
	positions   map[string]position
	marks       map[string]float64
}

func NewPaperExecutor(startEquity float64) *PaperExecutor {
	return &PaperExecutor{
		cash:      startEquity,
		positions: make(map[string]position),
		marks:     make(map[string]float64),
	}
}

func (p *PaperExecutor) Submit(o types.Order) error {
	if o.Qty == 0 {
		return nil
	}
	if o.Qty < 0 || math.IsNaN(o.Qty) || math.IsInf(o.Qty, 0) {
		return fmt.Errorf("%w: bad quantity %v", ErrRejected, o.Qty)
	}
	if o.Price <= 0 || math.IsNaN(o.Price) || math.IsInf(o.Price, 0) {
		return fmt.Errorf("%w: bad price %v", ErrRejected, o.Price)
	}
	if o.Side != types.Buy && o.Side != types.Sell {
		return fmt.Errorf("%w: unknown side %q", ErrRejected, o.Side)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.positions[o.Symbol]
	delta := o.Signed()
	cost := o.Price * delta

	// Only the part of a buy that adds long exposure needs free cash.
	if delta > 0 {
		opening := delta - math.Max(0, -pos.qty)
		if opening > 0 && opening*o.Price > p.cash+epsilon {
			return fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, opening*o.Price, p.cash)
		}
	}

	newQty := pos.qty + delta
	switch {
	case math.Abs(newQty) <= epsilon:
		p.realizedPnL += (o.Price - pos.avg) * pos.qty
		newQty = 0
		pos.avg = 0
	case pos.qty == 0 || math.Signbit(pos.qty) == math.Signbit(delta):
		// opening or adding: volume-weighted average
		pos.avg = (pos.avg*pos.qty + o.Price*delta) / newQty
	case math.Signbit(pos.qty) != math.Signbit(newQty):
		// flipped through zero: old leg realised, new leg at fill price
		p.realizedPnL += (o.Price - pos.avg) * pos.qty
		pos.avg = o.Price
	default:
		// reducing
		p.realizedPnL += (o.Price - pos.avg) * -delta
	}
	pos.qty = newQty
	p.cash -= cost
	p.marks[o.Symbol] = o.Price
	if pos.qty == 0 {
		delete(p.positions, o.Symbol)
	} else {
		p.positions[o.Symbol] = pos
	}
	return nil
}

// Mark records the latest price used to value an open position.
func (p *PaperExecutor) Mark(symbol string, price float64) {
	if price <= 0 {
		return
	}
	p.mu.Lock()
	p.marks[symbol] = price
	p.mu.Unlock()
}

// Equity is cash plus every open position marked to its latest price.
func (p *PaperExecutor) Equity() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	eq := p.cash
	for sym, pos := range p.positions {
		eq += pos.qty * p.marks[sym]
	}
	return eq
}

// Cash returns the uninvested balance.
func (p *PaperExecutor) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// RealizedPnL returns total closed-trade profit and loss.
func (p *PaperExecutor) RealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realizedPnL
}

func (p *PaperExecutor) Position(sym string) (float64, float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos := p.positions[sym]
	return pos.qty, pos.avg
}

// Symbols lists every instrument with a non-zero position.
func (p *PaperExecutor) Symbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.positions))
	for sym := range p.positions {
		out = append(out, sym)
	}
	return out
}
