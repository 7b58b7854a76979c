package strategy

import (
	"fmt"
	"math"
	"sync"

	"github.com/evdnx/stratcore/config"
	"github.com/evdnx/stratcore/executor"
	"github.com/evdnx/stratcore/indicator"
	"github.com/evdnx/stratcore/logger"
	"github.com/evdnx/stratcore/rebalance"
	"github.com/evdnx/stratcore/types"
)

// symbolState holds the per-symbol suite and the most recent strength score.
type symbolState struct {
	suite  *indicator.SuiteReader
	window *indicator.Window
	last   types.Bar
	score  float64
	scored bool
}

// Rotation ranks a universe by a composite strength score (RSI, MFI,
// ATSO) and lets the rebalance engine go long the top bucket and short
// the bottom one on schedule.
type Rotation struct {
	mu     sync.RWMutex // protects states
	states map[string]*symbolState
	engine *rebalance.Engine
	log    logger.Logger
}

// NewRotation builds a suite for each universe symbol and the engine
// that consumes their scores.
func NewRotation(cfg config.RebalanceConfig, exec executor.Executor, log logger.Logger) (*Rotation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	rp := &Rotation{states: make(map[string]*symbolState, len(cfg.Universe)), log: log}
	for _, sym := range cfg.Universe {
		suite, err := indicator.NewSuiteReader(indicator.OscillatorFactory(0))
		if err != nil {
			return nil, fmt.Errorf("suite for %s: %w", sym, err)
		}
		rp.states[sym] = &symbolState{suite: suite, window: indicator.NewWindow(16)}
	}
	engine, err := rebalance.NewEngine(cfg, rebalance.ScoreFunc(rp.Score), exec, log)
	if err != nil {
		return nil, err
	}
	rp.engine = engine
	return rp, nil
}

// OnBar must be called for every symbol that receives a new candle. It
// refreshes the symbol's score and forwards the bar to the engine, which
// rebalances when the clock symbol starts a scheduled day.
func (rp *Rotation) OnBar(bar types.Bar) (*rebalance.Result, error) {
	if !bar.Finished {
		return nil, nil
	}
	rp.mu.Lock()
	if state, ok := rp.states[bar.Symbol]; ok {
		rp.update(state, bar)
	}
	rp.mu.Unlock()
	return rp.engine.OnBar(bar)
}

func (rp *Rotation) update(state *symbolState, bar types.Bar) {
	if err := state.window.Update(bar); err != nil {
		rp.log.Warn("rotation_bad_bar",
			logger.String("symbol", bar.Symbol),
			logger.Err(err),
		)
		return
	}
	if err := state.suite.Update(bar); err != nil {
		rp.log.Warn("rotation_suite_add_error",
			logger.String("symbol", bar.Symbol),
			logger.Err(err),
		)
		return
	}
	state.last = bar
	state.score, state.scored = computeStrength(state)
}

// Score reports the latest strength of symbol. Symbols without enough
// history are unscored and therefore left out of the ranking.
func (rp *Rotation) Score(symbol string) (float64, bool) {
	rp.mu.RLock()
	defer rp.mu.RUnlock()
	state, ok := rp.states[symbol]
	if !ok || !state.scored {
		return 0, false
	}
	return state.score, true
}

// Engine exposes the underlying rebalance engine.
func (rp *Rotation) Engine() *rebalance.Engine { return rp.engine }

// Reset drops every symbol's history along with the engine state.
func (rp *Rotation) Reset() {
	rp.mu.Lock()
	for _, st := range rp.states {
		st.suite.Reset()
		st.window.Reset()
		st.last = types.Bar{}
		st.score, st.scored = 0, false
	}
	rp.mu.Unlock()
	rp.engine.Reset()
}

// Oscillator bands used to normalise the composite score.
const (
	rsiUpper, rsiLower = 70.0, 30.0
	mfiUpper, mfiLower = 80.0, 20.0
)

// computeStrength builds a normalized composite score from RSI, MFI and
// ATSO. Until the suite is warm it falls back to a price-action score
// from the bar window; with fewer than two bars there is no score.
func computeStrength(state *symbolState) (float64, bool) {
	rsi, mfi := state.suite.RSI(), state.suite.MFI()
	atso := state.suite.TrendStrength()

	if rsi.Usable() && mfi.Usable() && atso.Usable() {
		rsiNorm := clamp01((rsi.Value() - rsiLower) / (rsiUpper - rsiLower))
		mfiNorm := clamp01((mfi.Value() - mfiLower) / (mfiUpper - mfiLower))
		atsoNorm := clamp01(atso.Value() / 3.0)

		const (
			wRSI  = 0.35
			wMFI  = 0.35
			wATSO = 0.30
		)
		return wRSI*rsiNorm + wMFI*mfiNorm + wATSO*atsoNorm, true
	}

	w := state.window
	if w.Len() < 2 {
		return 0, false
	}
	closePx := w.Last()
	rangePerc := 0.0
	if span := state.last.High - state.last.Low; span > 0 {
		rangePerc = clamp01(span / (closePx * 0.05))
	}
	momentum := clamp01((w.Last() - w.Prev()) / w.Prev() / 0.05)
	trend := float64(w.Trend()+1) / 2
	return 0.5*momentum + 0.3*rangePerc + 0.2*trend, true
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
