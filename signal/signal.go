// Package signal turns indicator readings into per-bar trade actions.
//
// Evaluation is a pure function of the current snapshot, the previous
// bar's State and the current position; the caller keeps the State
// between bars.
package signal

import (
	"math"

	"github.com/evdnx/stratcore/indicator"
	"github.com/evdnx/stratcore/types"
)

// Snapshot is the decision input for one finished bar.
type Snapshot struct {
	Close    float64
	Readings map[string]indicator.Reading
}

// State is the memory carried from one bar to the next.
type State struct {
	Initialized bool
	Prev        Snapshot
	// PrevUsable is false when the previous bar had unformed readings or
	// a bad close; crossovers never compare against such a bar.
	PrevUsable bool
	// Bullish is the previous bar's trend flag as reported by the rule.
	Bullish bool
}

// Conditions are the raw boolean outcomes of a rule for one bar.
type Conditions struct {
	LongEntry  bool
	ShortEntry bool
	LongExit   bool
	ShortExit  bool
	Bullish    bool
}

// Rule computes conditions from the current and previous snapshot.
// hasPrev is false on the first usable bar of a run.
type Rule interface {
	Needs() []string
	Conditions(cur, prev Snapshot, hasPrev bool) Conditions
}

// CrossUp is true when a moves from at-or-below b to strictly above it.
func CrossUp(prevA, prevB, curA, curB float64) bool {
	return prevA <= prevB && curA > curB
}

// CrossDown is true when a moves from at-or-above b to strictly below it.
func CrossDown(prevA, prevB, curA, curB float64) bool {
	return prevA >= prevB && curA < curB
}

// Decide resolves conditions against the current position. Exits of an
// open position win over entries; an opposite entry reverses when
// reverse is set and only exits otherwise. Entries never add to an
// exposure that already points the same way.
func Decide(c Conditions, position float64, reverse bool) types.Action {
	switch {
	case position > 0:
		if c.ShortEntry && reverse {
			return types.EnterShort
		}
		if c.LongExit || c.ShortEntry {
			return types.ExitLong
		}
		return types.Hold
	case position < 0:
		if c.LongEntry && reverse {
			return types.EnterLong
		}
		if c.ShortExit || c.LongEntry {
			return types.ExitShort
		}
		return types.Hold
	}
	switch {
	case c.LongEntry && !c.ShortEntry:
		return types.EnterLong
	case c.ShortEntry && !c.LongEntry:
		return types.EnterShort
	}
	return types.Hold
}

// Evaluator binds a rule to the reversal policy.
type Evaluator struct {
	rule    Rule
	reverse bool
}

func NewEvaluator(rule Rule, reverse bool) *Evaluator {
	return &Evaluator{rule: rule, reverse: reverse}
}

func (e *Evaluator) usable(s Snapshot) bool {
	if math.IsNaN(s.Close) || math.IsInf(s.Close, 0) || s.Close <= 0 {
		return false
	}
	for _, name := range e.rule.Needs() {
		r, ok := s.Readings[name]
		if !ok || !r.Usable() {
			return false
		}
	}
	return true
}

// Evaluate returns the action for this bar and the state for the next
// one. The state is always advanced; malformed input yields Hold.
func (e *Evaluator) Evaluate(cur Snapshot, position float64, st State) (types.Action, State) {
	ok := e.usable(cur)
	next := State{Initialized: true, Prev: cur, PrevUsable: ok, Bullish: st.Bullish}
	if !ok {
		return types.Hold, next
	}
	c := e.rule.Conditions(cur, st.Prev, st.Initialized && st.PrevUsable)
	next.Bullish = c.Bullish
	return Decide(c, position, e.reverse), next
}
