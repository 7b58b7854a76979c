// Package rebalance implements the calendar-driven cross-sectional
// rebalancer: rank a universe by an external factor score, go long the
// top bucket and short the bottom one, and trade the differences.
package rebalance

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/evdnx/stratcore/config"
	"github.com/evdnx/stratcore/executor"
	"github.com/evdnx/stratcore/logger"
	"github.com/evdnx/stratcore/metrics"
	"github.com/evdnx/stratcore/types"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// ErrMissingPrice marks a leg skipped because no price was seen.
var ErrMissingPrice = errors.New("rebalance: missing price")

// ScoreProvider supplies the factor score. ok == false excludes the
// instrument from the ranking.
type ScoreProvider interface {
	Score(symbol string) (float64, bool)
}

// ScoreFunc adapts a function to ScoreProvider.
type ScoreFunc func(symbol string) (float64, bool)

func (f ScoreFunc) Score(symbol string) (float64, bool) { return f(symbol) }

// Skip records a dropped leg.
type Skip struct {
	Symbol string
	Reason string
}

// Result describes one triggered rebalance.
type Result struct {
	Day     time.Time
	Weights map[string]float64
	Orders  []types.Order
	Skipped []Skip
	// Aborted is set when nothing was traded, e.g. ErrUniverseTooSmall.
	Aborted error
}

// Engine is fed every finished bar of every instrument. Bars of the clock
// instrument drive the calendar; all bars refresh last prices.
type Engine struct {
	cfg      config.RebalanceConfig
	scores   ScoreProvider
	exec     executor.Executor
	log      logger.Logger
	calendar *Calendar

	mu            sync.Mutex // protect prices, weights & the day guard
	prices        map[string]float64
	weights       map[string]float64
	lastProcessed time.Time
}

// NewEngine validates the configuration and fails fast on operator
// mistakes such as an empty universe or a missing score provider.
func NewEngine(cfg config.RebalanceConfig, scores ScoreProvider,
	exec executor.Executor, log logger.Logger) (*Engine, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if scores == nil {
		return nil, fmt.Errorf("%w: rebalance needs a score provider", config.ErrInvalidConfig)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		scores:   scores,
		exec:     exec,
		log:      log,
		calendar: NewCalendar(cfg.Schedule, cfg.QuarterDays),
		prices:   make(map[string]float64),
	}, nil
}

// OnBar records the bar's close and, for the clock instrument, runs the
// calendar. It returns the rebalance result when one was triggered, and
// the combined order errors of that rebalance.
func (e *Engine) OnBar(bar types.Bar) (*Result, error) {
	if !bar.Finished {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if bar.Close > 0 && !math.IsInf(bar.Close, 0) {
		e.prices[bar.Symbol] = bar.Close
	}
	if bar.Symbol != e.cfg.ClockSymbol {
		return nil, nil
	}
	ts := bar.OpenTime
	if ts.IsZero() {
		ts = bar.CloseTime
	}
	day := dateOf(ts)
	if !e.lastProcessed.IsZero() && !day.After(e.lastProcessed) {
		return nil, nil
	}
	e.lastProcessed = day
	if !e.calendar.Observe(day) {
		return nil, nil
	}
	return e.rebalance(day)
}

// Rebalance runs one cycle immediately, bypassing the calendar.
func (e *Engine) Rebalance(day time.Time) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rebalance(dateOf(day))
}

func (e *Engine) rebalance(day time.Time) (*Result, error) {
	res := &Result{Day: day}

	scored := make([]Score, 0, len(e.cfg.Universe))
	for _, sym := range e.cfg.Universe {
		if v, ok := e.scores.Score(sym); ok {
			scored = append(scored, Score{Symbol: sym, Value: v})
		}
	}
	weights, err := Weights(scored, e.cfg.Buckets)
	if err != nil {
		res.Aborted = err
		metrics.Rebalances.WithLabelValues("aborted").Inc()
		e.log.Info("rebalance_aborted",
			logger.Time("day", day),
			logger.Int("scored", len(scored)),
			logger.Err(err),
		)
		return res, nil
	}
	e.weights = weights
	res.Weights = copyWeights(weights)

	legs := e.plan(weights, res)
	var errs error
	for _, o := range legs {
		if err := e.exec.Submit(o); err != nil {
			res.Skipped = append(res.Skipped, Skip{Symbol: o.Symbol, Reason: "rejected"})
			metrics.RebalanceLegsSkipped.WithLabelValues("rejected").Inc()
			e.log.Error("rebalance_submit_error",
				logger.String("symbol", o.Symbol),
				logger.String("side", string(o.Side)),
				logger.Float64("qty", o.Qty),
				logger.Err(err),
			)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", o.Symbol, err))
			continue
		}
		res.Orders = append(res.Orders, o)
	}
	metrics.Rebalances.WithLabelValues("done").Inc()
	e.log.Info("rebalance_done",
		logger.Time("day", day),
		logger.Int("orders", len(res.Orders)),
		logger.Int("skipped", len(res.Skipped)),
	)
	return res, errs
}

// plan diffs target weights against current positions. Sells come first
// so their proceeds fund the buys.
func (e *Engine) plan(weights map[string]float64, res *Result) []types.Order {
	equity := decimal.NewFromFloat(e.exec.Equity())
	minNotional := decimal.NewFromFloat(e.cfg.MinTradeNotional)

	symbols := make([]string, 0, len(e.cfg.Universe))
	seen := make(map[string]struct{})
	for _, sym := range e.cfg.Universe {
		if _, dup := seen[sym]; !dup {
			seen[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	var legs []types.Order
	for _, sym := range symbols {
		qty, _ := e.exec.Position(sym)
		w, targeted := weights[sym]
		if !targeted && qty == 0 {
			continue
		}
		price, ok := e.prices[sym]
		if !ok || price <= 0 {
			res.Skipped = append(res.Skipped, Skip{Symbol: sym, Reason: "missing_price"})
			metrics.RebalanceLegsSkipped.WithLabelValues("missing_price").Inc()
			e.log.Warn("rebalance_leg_skipped",
				logger.String("symbol", sym),
				logger.Err(ErrMissingPrice),
			)
			continue
		}
		px := decimal.NewFromFloat(price)
		current := decimal.NewFromFloat(qty)
		target := decimal.Zero
		if targeted {
			target = decimal.NewFromFloat(w).Mul(equity).Div(px)
		}
		delta := target.Sub(current)
		if delta.IsZero() {
			continue
		}
		if delta.Abs().Mul(px).LessThan(minNotional) {
			res.Skipped = append(res.Skipped, Skip{Symbol: sym, Reason: "min_notional"})
			metrics.RebalanceLegsSkipped.WithLabelValues("min_notional").Inc()
			continue
		}
		side := types.Buy
		if delta.IsNegative() {
			side = types.Sell
		}
		comment := "rebalance"
		if !targeted {
			comment = "rebalance close"
		}
		legs = append(legs, types.Order{
			Symbol:  sym,
			Side:    side,
			Type:    types.Market,
			Qty:     delta.Abs().InexactFloat64(),
			Price:   price,
			Comment: comment,
		})
	}
	sort.SliceStable(legs, func(i, j int) bool {
		return legs[i].Side == types.Sell && legs[j].Side == types.Buy
	})
	return legs
}

// Weights returns the target weights of the last completed rebalance.
func (e *Engine) Weights() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyWeights(e.weights)
}

// LastPrice returns the most recent close seen for symbol.
func (e *Engine) LastPrice(symbol string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.prices[symbol]
	return p, ok
}

// Reset clears weights, prices and the day guard. Safe to call twice.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prices = make(map[string]float64)
	e.weights = nil
	e.lastProcessed = time.Time{}
	e.calendar.Reset()
}

func copyWeights(w map[string]float64) map[string]float64 {
	if w == nil {
		return nil
	}
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
