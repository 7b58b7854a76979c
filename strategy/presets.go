package strategy

import (
	"fmt"

	"github.com/evdnx/stratcore/config"
	"github.com/evdnx/stratcore/executor"
	"github.com/evdnx/stratcore/indicator"
	"github.com/evdnx/stratcore/logger"
	"github.com/evdnx/stratcore/signal"
)

// Reading names used by the config-driven wiring.
const (
	ReadingFast     = "fast"
	ReadingSlow     = "slow"
	ReadingBands    = "bands"
	ReadingATR      = "atr"
	ReadingChannel  = "channel"
	ReadingMomentum = "momentum"
)

const defaultVolatilityLength = 14

// New builds a runner whose indicators and rule follow cfg.Signal.
func New(cfg config.StrategyConfig, exec executor.Executor, log logger.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w, err := NewWiring(cfg.Signal)
	if err != nil {
		return nil, err
	}
	return NewRunner(cfg, w, exec, log)
}

// NewWiring assembles the indicator set and rule for one of the built-in
// signal rules. Every wiring carries a goti ATR reading in price units;
// it is tracked first so a bar goti rejects reaches no other updater.
func NewWiring(s config.Signal) (Wiring, error) {
	volLen := s.VolatilityLength
	if volLen == 0 {
		volLen = defaultVolatilityLength
	}
	atr, err := indicator.NewATR(volLen)
	if err != nil {
		return Wiring{}, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	set := indicator.NewSet().Track(atr).Define(ReadingATR, atr.Reading)

	var rule signal.Rule
	switch s.Rule {
	case "crossover":
		fast, err := indicator.NewSMA(s.FastLength)
		if err != nil {
			return Wiring{}, fmt.Errorf("%w: fast: %v", config.ErrInvalidConfig, err)
		}
		slow, err := indicator.NewSMA(s.SlowLength)
		if err != nil {
			return Wiring{}, fmt.Errorf("%w: slow: %v", config.ErrInvalidConfig, err)
		}
		set.Track(fast).Track(slow).
			Define(ReadingFast, fast.Reading).
			Define(ReadingSlow, slow.Reading)
		rule = signal.Crossover{Fast: ReadingFast, Slow: ReadingSlow}
	case "threshold":
		suite, err := indicator.NewSuiteReader(indicator.OscillatorFactory(0))
		if err != nil {
			return Wiring{}, err
		}
		name := s.Oscillator
		set.Track(suite).Define(name, func() indicator.Reading { return suite.Oscillator(name) })
		rule = signal.Threshold{
			Name:       name,
			Oversold:   s.Oversold,
			Overbought: s.Overbought,
			ExitLevel:  s.ExitLevel,
		}
	case "band":
		bands, err := indicator.NewBands(s.BandLength, s.BandWidth)
		if err != nil {
			return Wiring{}, fmt.Errorf("%w: bands: %v", config.ErrInvalidConfig, err)
		}
		set.Track(bands).Define(ReadingBands, bands.Reading)
		rule = signal.Band{Name: ReadingBands}
	case "breakout":
		n := s.ChannelLength
		// room for the channel and the slope lookback
		win := indicator.NewWindow(max(n+1, 9))
		set.Track(win).
			Define(ReadingChannel, func() indicator.Reading { return win.Channel(n) }).
			Define(ReadingMomentum, func() indicator.Reading {
				return indicator.Scalar(win.Slope(), win.Len() > 2)
			})
		rule = signal.Breakout{Channel: ReadingChannel, Momentum: ReadingMomentum}
	default:
		return Wiring{}, fmt.Errorf("%w: unknown signal rule %q", config.ErrInvalidConfig, s.Rule)
	}
	return Wiring{Indicators: set, Rule: rule, Volatility: ReadingATR}, nil
}

// MeanReversion is an RSI oversold/overbought preset that exits when
// RSI returns to 50 and never reverses in one step.
func MeanReversion(symbol string) config.StrategyConfig {
	cfg := config.Default()
	cfg.Name = "mean_reversion"
	cfg.Symbol = symbol
	cfg.Signal.Rule = "threshold"
	cfg.Signal.Oscillator = "rsi"
	cfg.Signal.Oversold = 30
	cfg.Signal.Overbought = 70
	cfg.Signal.ExitLevel = 50
	cfg.Signal.Reverse = false
	return cfg
}

// MACrossover is a stop-and-reverse moving-average crossover.
func MACrossover(symbol string, fast, slow int) config.StrategyConfig {
	cfg := config.Default()
	cfg.Name = "ma_crossover"
	cfg.Symbol = symbol
	cfg.Signal.Rule = "crossover"
	cfg.Signal.FastLength = fast
	cfg.Signal.SlowLength = slow
	cfg.Signal.Reverse = true
	return cfg
}

// BandReversion fades closes outside n-bar, k-deviation bands with an
// ATR stop and a trailing exit.
func BandReversion(symbol string, n int, k float64) config.StrategyConfig {
	cfg := config.Default()
	cfg.Name = "band_reversion"
	cfg.Symbol = symbol
	cfg.Signal.Rule = "band"
	cfg.Signal.BandLength = n
	cfg.Signal.BandWidth = k
	cfg.Signal.Reverse = false
	cfg.Protection = config.Protection{
		StopLoss:        config.Distance{Kind: config.ATR, Value: 2},
		TrailActivation: config.Distance{Kind: config.ATR, Value: 1},
		TrailDistance:   config.Distance{Kind: config.ATR, Value: 1.5},
	}
	return cfg
}

// BreakoutMomentum trades closes beyond the n-bar channel when the
// short-term slope agrees, reversing on the opposite breakout and
// protecting the position with an ATR trail.
func BreakoutMomentum(symbol string, n int) config.StrategyConfig {
	cfg := config.Default()
	cfg.Name = "breakout_momentum"
	cfg.Symbol = symbol
	cfg.Signal.Rule = "breakout"
	cfg.Signal.ChannelLength = n
	cfg.Signal.Reverse = true
	cfg.Protection = config.Protection{
		StopLoss:      config.Distance{Kind: config.Percent, Value: 0.03},
		TrailDistance: config.Distance{Kind: config.ATR, Value: 2},
	}
	return cfg
}
