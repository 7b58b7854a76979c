// Package protect tracks stop-loss, take-profit, trailing and time stops
// for one open position.
package protect

import (
	"math"

	"github.com/evdnx/stratcore/config"
	"github.com/evdnx/stratcore/types"
)

// Phase of the protective state machine.
type Phase int

const (
	Inactive Phase = iota
	Armed
	Trailing
)

func (p Phase) String() string {
	switch p {
	case Armed:
		return "armed"
	case Trailing:
		return "trailing"
	default:
		return "inactive"
	}
}

// Exit reasons.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
	ReasonTrailing   = "trailing_stop"
	ReasonTime       = "time_stop"
)

// Levels are the absolute price levels of the open position. Distances
// are normalised once, when the position is armed.
type Levels struct {
	Direction  types.Direction
	Entry      float64
	Stop       float64 // 0 = no fixed stop
	Take       float64 // 0 = no target
	Activation float64 // favourable excursion that starts trailing, price units
	TrailDist  float64 // 0 = no trailing
	TrailStop  float64 // valid once trailing
	Anchor     float64 // best price seen since entry
	BarsHeld   int
}

// Exit is a forced close request.
type Exit struct {
	Reason string
	Price  float64
}

// Manager is the per-position protective state machine.
type Manager struct {
	cfg    config.Protection
	phase  Phase
	levels Levels

	// snapshot taken before the last forced exit, for Rollback
	prevPhase  Phase
	prevLevels Levels
	canRestore bool
}

func NewManager(cfg config.Protection) *Manager {
	return &Manager{cfg: cfg}
}

func (m *Manager) Phase() Phase   { return m.phase }
func (m *Manager) Levels() Levels { return m.levels }

// Active reports whether a position is being protected.
func (m *Manager) Active() bool { return m.phase != Inactive }

// Arm computes the levels for a position opened at entry. atr is the
// volatility reading at the time of entry; ATR-based distances resolve
// to zero (disabled) when it is not positive.
func (m *Manager) Arm(dir types.Direction, entry, atr float64) {
	m.canRestore = false
	if dir == types.Flat || entry <= 0 || math.IsNaN(entry) || math.IsInf(entry, 0) {
		m.Disarm()
		return
	}
	if math.IsNaN(atr) || math.IsInf(atr, 0) || atr < 0 {
		atr = 0
	}
	sign := float64(dir)
	lv := Levels{Direction: dir, Entry: entry, Anchor: entry}
	if d := m.cfg.StopLoss.Resolve(entry, atr); d > 0 {
		lv.Stop = entry - sign*d
	}
	if d := m.cfg.TakeProfit.Resolve(entry, atr); d > 0 {
		lv.Take = entry + sign*d
	}
	lv.TrailDist = m.cfg.TrailDistance.Resolve(entry, atr)
	lv.Activation = m.cfg.TrailActivation.Resolve(entry, atr)

	m.levels = lv
	m.phase = Armed
	if lv.TrailDist > 0 && lv.Activation <= 0 {
		m.startTrailing()
	}
}

// Disarm drops all levels; the position is flat.
func (m *Manager) Disarm() {
	m.phase = Inactive
	m.levels = Levels{}
}

// Reset clears everything including the rollback snapshot.
func (m *Manager) Reset() {
	m.Disarm()
	m.canRestore = false
}

// Sync aligns the machine with the broker's position: arms on a new
// position or a reversal, disarms when flat. It returns true when it
// (re)armed.
func (m *Manager) Sync(position, avgPrice, atr float64) bool {
	dir := types.DirectionOf(position)
	if dir == types.Flat {
		if m.phase != Inactive {
			m.Disarm()
		}
		return false
	}
	if m.phase == Inactive || dir != m.levels.Direction {
		m.Arm(dir, avgPrice, atr)
		return m.phase != Inactive
	}
	return false
}

func (m *Manager) startTrailing() {
	lv := &m.levels
	lv.TrailStop = lv.Anchor - float64(lv.Direction)*lv.TrailDist
	m.phase = Trailing
}

// effectiveStop combines the fixed and trailing stop, tightest wins.
func (m *Manager) effectiveStop() (float64, string, bool) {
	lv := m.levels
	stop, reason, ok := lv.Stop, ReasonStopLoss, lv.Stop > 0
	if m.phase == Trailing {
		if !ok || (lv.Direction == types.Long && lv.TrailStop > stop) || (lv.Direction == types.Short && lv.TrailStop < stop) {
			stop, reason, ok = lv.TrailStop, ReasonTrailing, true
		}
	}
	return stop, reason, ok
}

// Check evaluates the finished bar against the levels set so far, then
// ratchets the trailing stop with the bar's extreme. When an exit fires
// the machine goes Inactive; a flat or inactive manager never exits.
func (m *Manager) Check(bar types.Bar) (Exit, bool) {
	if m.phase == Inactive {
		return Exit{}, false
	}
	lv := &m.levels
	lv.BarsHeld++

	if stop, reason, ok := m.effectiveStop(); ok {
		if lv.Direction == types.Long && bar.Low <= stop {
			return m.fire(reason, math.Min(stop, bar.Open)), true
		}
		if lv.Direction == types.Short && bar.High >= stop {
			return m.fire(reason, math.Max(stop, bar.Open)), true
		}
	}
	if lv.Take > 0 {
		if lv.Direction == types.Long && bar.High >= lv.Take {
			return m.fire(ReasonTakeProfit, math.Max(lv.Take, bar.Open)), true
		}
		if lv.Direction == types.Short && bar.Low <= lv.Take {
			return m.fire(ReasonTakeProfit, math.Min(lv.Take, bar.Open)), true
		}
	}

	if lv.Direction == types.Long {
		lv.Anchor = math.Max(lv.Anchor, bar.High)
	} else {
		lv.Anchor = math.Min(lv.Anchor, bar.Low)
	}
	if lv.TrailDist > 0 {
		if m.phase == Armed && float64(lv.Direction)*(lv.Anchor-lv.Entry) >= lv.Activation {
			m.startTrailing()
		} else if m.phase == Trailing {
			candidate := lv.Anchor - float64(lv.Direction)*lv.TrailDist
			if lv.Direction == types.Long {
				lv.TrailStop = math.Max(lv.TrailStop, candidate)
			} else {
				lv.TrailStop = math.Min(lv.TrailStop, candidate)
			}
		}
	}

	if m.cfg.MaxBarsInTrade > 0 && lv.BarsHeld >= m.cfg.MaxBarsInTrade {
		return m.fire(ReasonTime, bar.Close), true
	}
	return Exit{}, false
}

func (m *Manager) fire(reason string, price float64) Exit {
	m.prevPhase, m.prevLevels, m.canRestore = m.phase, m.levels, true
	m.Disarm()
	return Exit{Reason: reason, Price: price}
}

// Rollback restores the levels dropped by the last exit, used when the
// closing order was rejected and the position is still open.
func (m *Manager) Rollback() bool {
	if !m.canRestore {
		return false
	}
	m.phase, m.levels, m.canRestore = m.prevPhase, m.prevLevels, false
	return true
}
