package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/evdnx/stratcore/config"
	"github.com/evdnx/stratcore/executor"
	"github.com/evdnx/stratcore/indicator"
	"github.com/evdnx/stratcore/logger"
	"github.com/evdnx/stratcore/metrics"
	"github.com/evdnx/stratcore/protect"
	"github.com/evdnx/stratcore/risk"
	"github.com/evdnx/stratcore/signal"
	"github.com/evdnx/stratcore/types"
)

// Wiring binds a runner to its indicators and decision rule.
type Wiring struct {
	Indicators indicator.Reader
	Rule       signal.Rule
	// Volatility names the reading used for ATR distances and risk
	// sizing. Empty disables ATR-based distances.
	Volatility string
}

// marker is implemented by dispatchers that value positions at the last
// seen price (the paper executor).
type marker interface {
	Mark(symbol string, price float64)
}

// Runner is the bar-driven strategy core. Per finished bar it updates
// the indicators, lets the protective manager force a close, asks the
// evaluator for an action, sizes it against the current position and
// submits the order.
type Runner struct {
	Name   string
	Symbol string

	cfg    config.StrategyConfig
	exec   executor.Executor
	log    logger.Logger
	wiring Wiring
	eval   *signal.Evaluator
	guard  *protect.Manager
	scale  *risk.Martingale
	state  signal.State
	bars   int
}

// NewRunner validates the config and assembles the core.
func NewRunner(cfg config.StrategyConfig, w Wiring,
	exec executor.Executor, log logger.Logger) (*Runner, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if w.Indicators == nil || w.Rule == nil {
		return nil, fmt.Errorf("%w: runner needs indicators and a rule", config.ErrInvalidConfig)
	}
	if exec == nil {
		return nil, fmt.Errorf("%w: runner needs an executor", config.ErrInvalidConfig)
	}
	scale, err := risk.NewMartingale(cfg.Sizing.Martingale.Factor, cfg.Sizing.Martingale.MaxSteps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Signal.Rule
	}
	return &Runner{
		Name:   name,
		Symbol: cfg.Symbol,
		cfg:    cfg,
		exec:   exec,
		log:    log,
		wiring: w,
		eval:   signal.NewEvaluator(w.Rule, cfg.Signal.Reverse),
		guard:  protect.NewManager(cfg.Protection),
		scale:  scale,
	}, nil
}

// OnBar processes one bar. Unfinished bars and bars of other symbols are
// ignored. Bad data degrades to Hold; only order submission failures
// are returned.
func (r *Runner) OnBar(bar types.Bar) error {
	if !bar.Finished || (bar.Symbol != "" && bar.Symbol != r.Symbol) {
		return nil
	}
	r.bars++

	if err := r.wiring.Indicators.Update(bar); err != nil {
		r.log.Warn("indicator_update_error",
			logger.String("symbol", r.Symbol),
			logger.Err(err),
		)
		// the bad bar still becomes the previous snapshot, marked unusable
		pos, _ := r.exec.Position(r.Symbol)
		_, r.state = r.eval.Evaluate(signal.Snapshot{Close: math.NaN()}, pos, r.state)
		return nil
	}
	if m, ok := r.exec.(marker); ok {
		m.Mark(r.Symbol, bar.Close)
	}
	snap := signal.Snapshot{Close: bar.Close, Readings: r.readings()}
	atr := r.volatility(snap)

	pos, avg := r.exec.Position(r.Symbol)
	r.guard.Sync(pos, avg, atr)

	// Protective exits run first so a reversal on the same bar is sized
	// against the flattened position.
	var protectErr error
	if exit, ok := r.guard.Check(bar); ok {
		if err := r.closeAt(pos, avg, exit.Price, exit.Reason); err != nil {
			r.guard.Rollback()
			protectErr = err
		} else {
			metrics.ProtectiveExits.WithLabelValues(r.Name, exit.Reason).Inc()
			r.log.Info("protective_exit",
				logger.String("symbol", r.Symbol),
				logger.String("reason", exit.Reason),
				logger.Float64("price", exit.Price),
			)
			pos, avg = r.exec.Position(r.Symbol)
		}
	}

	prev := r.state
	action, next := r.eval.Evaluate(snap, pos, r.state)
	if protectErr != nil {
		// the exit and this bar's transition are both retried next bar
		r.publish()
		return protectErr
	}
	r.state = next
	if action == types.Hold {
		r.publish()
		return nil
	}

	if err := r.act(action, pos, avg, bar.Close, atr); err != nil {
		// let the next bar see the same transition again
		r.state = prev
		r.publish()
		return err
	}
	r.publish()
	return nil
}

func (r *Runner) readings() map[string]indicator.Reading {
	names := r.wiring.Rule.Needs()
	out := make(map[string]indicator.Reading, len(names)+1)
	for _, name := range names {
		if rd, ok := r.wiring.Indicators.Read(name); ok {
			out[name] = rd
		}
	}
	if v := r.wiring.Volatility; v != "" {
		if rd, ok := r.wiring.Indicators.Read(v); ok {
			out[v] = rd
		}
	}
	return out
}

func (r *Runner) volatility(snap signal.Snapshot) float64 {
	rd, ok := snap.Readings[r.wiring.Volatility]
	if !ok || !rd.Usable() || rd.Value() <= 0 {
		return 0
	}
	return rd.Value()
}

func (r *Runner) rounding() risk.Rounding {
	z := r.cfg.Sizing
	return risk.Rounding{Precision: z.QuantityPrecision, Step: z.StepSize, MinQty: z.MinQty}
}

// baseVolume is the fixed or risk-derived entry size times the
// martingale scale.
func (r *Runner) baseVolume(price, atr float64) float64 {
	z := r.cfg.Sizing
	base := z.BaseVolume
	if base == 0 {
		stopDist := r.cfg.Protection.StopLoss.Resolve(price, atr)
		base = risk.CalcQty(r.exec.Equity(), z.MaxRiskPerTrade, stopDist, r.rounding())
	}
	return risk.Round(base*r.scale.Scale(), r.rounding())
}

func (r *Runner) act(action types.Action, pos, avg, price, atr float64) error {
	var base float64
	if action == types.EnterLong || action == types.EnterShort {
		base = r.baseVolume(price, atr)
	}
	volume := risk.OrderVolume(action, pos, base)
	o, ok := risk.OrderFor(r.Symbol, volume, price, r.Name+" "+action.String())
	if !ok {
		r.log.Info("signal_without_volume",
			logger.String("symbol", r.Symbol),
			logger.String("action", action.String()),
			logger.Float64("position", pos),
		)
		return nil
	}
	if err := r.submit(o, action.String()); err != nil {
		return err
	}
	// any fill that reduced the old position realised a trade
	if pos != 0 && types.DirectionOf(pos) != types.DirectionOf(volume) {
		r.scale.Record((price - avg) * pos)
	}
	newPos, newAvg := r.exec.Position(r.Symbol)
	r.guard.Sync(newPos, newAvg, atr)
	return nil
}

// closeAt flattens pos at price and feeds the result to the martingale.
func (r *Runner) closeAt(pos, avg, price float64, reason string) error {
	o, ok := risk.OrderFor(r.Symbol, -pos, price, r.Name+" "+reason)
	if !ok {
		return nil
	}
	if err := r.submit(o, reason); err != nil {
		return err
	}
	r.scale.Record((price - avg) * pos)
	return nil
}

// submit is a thin wrapper that records metrics and logs.
func (r *Runner) submit(o types.Order, ctx string) error {
	if err := r.exec.Submit(o); err != nil {
		metrics.OrdersRejected.WithLabelValues(r.Name).Inc()
		r.log.Error("order_submit_failed",
			logger.String("symbol", o.Symbol),
			logger.String("side", string(o.Side)),
			logger.Float64("qty", o.Qty),
			logger.String("ctx", ctx),
			logger.Err(err),
		)
		return fmt.Errorf("%s %s: %w", r.Name, ctx, err)
	}
	r.log.Info("order_submitted",
		logger.String("symbol", o.Symbol),
		logger.String("side", string(o.Side)),
		logger.Float64("qty", o.Qty),
		logger.Float64("price", o.Price),
		logger.String("ctx", ctx),
	)
	metrics.OrdersSubmitted.WithLabelValues(r.Name).Inc()
	return nil
}

func (r *Runner) publish() {
	qty, _ := r.exec.Position(r.Symbol)
	open := 0.0
	if qty != 0 {
		open = 1
	}
	metrics.PositionsOpen.WithLabelValues(r.Name).Set(open)
	metrics.EquityGauge.Set(r.exec.Equity())
}

// Reset clears the signal memory, protective levels, martingale scale
// and indicator history. Calling it twice is the same as calling it once.
func (r *Runner) Reset() {
	r.state = signal.State{}
	r.guard.Reset()
	r.scale.Reset()
	r.wiring.Indicators.Reset()
	r.bars = 0
}

// State returns the signal memory carried to the next bar.
func (r *Runner) State() signal.State { return r.state }

// Protection returns the protective phase and levels.
func (r *Runner) Protection() (protect.Phase, protect.Levels) {
	return r.guard.Phase(), r.guard.Levels()
}

// Scale returns the martingale multiplier for the next entry.
func (r *Runner) Scale() float64 { return r.scale.Scale() }

// Bars counts finished bars processed since the last reset.
func (r *Runner) Bars() int { return r.bars }

// IsRejected reports whether err came from the dispatcher refusing an order.
func IsRejected(err error) bool {
	return errors.Is(err, executor.ErrRejected) || errors.Is(err, executor.ErrInsufficientCash)
}
