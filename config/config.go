// Package config holds every tunable parameter of the strategy core and
// validates it before any trading starts.
package config

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// DistanceKind selects how a protective distance is expressed.
type DistanceKind string

const (
	Absolute DistanceKind = "absolute" // price units
	Percent  DistanceKind = "percent"  // fraction of entry price, 0.02 = 2 %
	ATR      DistanceKind = "atr"      // multiple of the volatility reading
)

// Distance is a stop/target/trailing distance. A zero value disables the
// feature it configures; negative values are rejected by Validate.
type Distance struct {
	Kind  DistanceKind `yaml:"kind"`
	Value float64      `yaml:"value"`
}

// Enabled reports whether the distance configures anything.
func (d Distance) Enabled() bool { return d.Value > 0 }

// Resolve converts the distance to absolute price units at the given
// reference price and volatility.
func (d Distance) Resolve(price, atr float64) float64 {
	if !d.Enabled() {
		return 0
	}
	switch d.Kind {
	case Percent:
		return price * d.Value
	case ATR:
		return atr * d.Value
	default:
		return d.Value
	}
}

// Protection configures the protective exit manager.
type Protection struct {
	StopLoss   Distance `yaml:"stop_loss"`
	TakeProfit Distance `yaml:"take_profit"`
	// TrailActivation is the favorable excursion that switches the manager
	// into trailing mode. Zero with a TrailDistance set means trail at once.
	TrailActivation Distance `yaml:"trail_activation"`
	TrailDistance   Distance `yaml:"trail_distance"`
	// MaxBarsInTrade forces a close after that many bars, 0 = disabled.
	MaxBarsInTrade int `yaml:"max_bars_in_trade"`
}

// Martingale configures the bounded loss-scaling of the base volume.
type Martingale struct {
	Factor   float64 `yaml:"factor"`    // 1 or 0 = disabled
	MaxSteps int     `yaml:"max_steps"` // required when Factor > 1
}

// Enabled reports whether scaling is active.
func (m Martingale) Enabled() bool { return m.Factor > 1 }

// Sizing controls how the base volume is derived.
type Sizing struct {
	// BaseVolume is a fixed order size. When zero the size is derived from
	// MaxRiskPerTrade and the stop distance.
	BaseVolume      float64 `yaml:"base_volume"`
	MaxRiskPerTrade float64 `yaml:"max_risk_per_trade"` // e.g. 0.01 = 1 % of equity

	// QuantityPrecision defines the number of decimal places to round to
	// (e.g. 2 for crypto/futures, 0 for equities).
	QuantityPrecision int `yaml:"quantity_precision"`
	// Minimum order size accepted by the broker (e.g. 0.001 BTC).
	MinQty float64 `yaml:"min_qty"`
	// StepSize – the increment allowed by the exchange (e.g. 0.0001).
	StepSize float64 `yaml:"step_size"`

	Martingale Martingale `yaml:"martingale"`
}

// Signal configures the per-bar rule set.
type Signal struct {
	Rule string `yaml:"rule"` // crossover | threshold | band | breakout

	// crossover: Fast crosses Slow
	FastLength int `yaml:"fast_length"`
	SlowLength int `yaml:"slow_length"`

	// threshold: oscillator against oversold / overbought
	Oscillator string  `yaml:"oscillator"` // rsi | mfi
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
	ExitLevel  float64 `yaml:"exit_level"` // 0 = exit only on the opposite signal

	// band: close against Bollinger-style bands
	BandLength int     `yaml:"band_length"`
	BandWidth  float64 `yaml:"band_width"`

	// breakout: close beyond the previous ChannelLength bars' range
	ChannelLength int `yaml:"channel_length"`

	// VolatilityLength is the goti ATR period used for ATR distances.
	VolatilityLength int `yaml:"volatility_length"`

	// Reverse closes-and-reverses on an opposite entry; otherwise the
	// opposite entry only exits.
	Reverse bool `yaml:"reverse"`
}

// StrategyConfig holds all tunable parameters for a bar-driven strategy.
type StrategyConfig struct {
	Name       string     `yaml:"name"`
	Symbol     string     `yaml:"symbol"`
	Signal     Signal     `yaml:"signal"`
	Sizing     Sizing     `yaml:"sizing"`
	Protection Protection `yaml:"protection"`
}

// RebalanceConfig parameterises the cross-sectional engine.
type RebalanceConfig struct {
	ClockSymbol      string   `yaml:"clock_symbol"`
	Universe         []string `yaml:"universe"`
	Buckets          int      `yaml:"buckets"`
	MinTradeNotional float64  `yaml:"min_trade_notional"`
	Schedule         string   `yaml:"schedule"`     // monthly | quarterly
	QuarterDays      int      `yaml:"quarter_days"` // trading days per quarter start, default 3
}

// App captures process-wide runtime settings.
type App struct {
	LogLevel     string  `yaml:"log_level"`
	MetricsAddr  string  `yaml:"metrics_addr"`
	StartingCash float64 `yaml:"starting_cash"`
}

// Config is the file-level document.
type Config struct {
	App       App              `yaml:"app"`
	Strategy  StrategyConfig   `yaml:"strategy"`
	Rebalance *RebalanceConfig `yaml:"rebalance,omitempty"`
}

// Default returns a moving-average crossover configuration with a 2 %
// stop, 4 % target and no trailing.
func Default() StrategyConfig {
	return StrategyConfig{
		Name:   "sma_cross",
		Symbol: "BTCUSDT",
		Signal: Signal{
			Rule:             "crossover",
			FastLength:       10,
			SlowLength:       30,
			Oscillator:       "rsi",
			Oversold:         30,
			Overbought:       70,
			BandLength:       20,
			BandWidth:        2,
			ChannelLength:    20,
			VolatilityLength: 14,
			Reverse:          true,
		},
		Sizing: Sizing{
			BaseVolume:        1,
			MaxRiskPerTrade:   0.01,
			QuantityPrecision: 2,
			MinQty:            0.001,
			StepSize:          0.0001,
		},
		Protection: Protection{
			StopLoss:   Distance{Kind: Percent, Value: 0.02},
			TakeProfit: Distance{Kind: Percent, Value: 0.04},
		},
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

func validateDistance(name string, d Distance) error {
	switch d.Kind {
	case Absolute, Percent, ATR, "":
	default:
		return invalid("%s: unknown distance kind %q", name, d.Kind)
	}
	if d.Value < 0 {
		return invalid("%s: negative distance %f", name, d.Value)
	}
	if d.Kind == Percent && d.Value >= 1 {
		return invalid("%s: percent distance %f must be below 1", name, d.Value)
	}
	return nil
}

// Validate checks that all fields are within sensible bounds. Every
// violation is reported, combined with multierr.
func (c *StrategyConfig) Validate() error {
	var err error
	if c.Symbol == "" {
		err = multierr.Append(err, invalid("symbol is required"))
	}

	s := c.Signal
	switch s.Rule {
	case "crossover":
		if s.FastLength <= 0 || s.SlowLength <= 0 {
			err = multierr.Append(err, invalid("crossover lengths must be positive"))
		} else if s.FastLength >= s.SlowLength {
			err = multierr.Append(err, invalid("fast length %d must be below slow length %d", s.FastLength, s.SlowLength))
		}
	case "threshold":
		if s.Oscillator != "rsi" && s.Oscillator != "mfi" {
			err = multierr.Append(err, invalid("unknown oscillator %q", s.Oscillator))
		}
		if s.Oversold >= s.Overbought {
			err = multierr.Append(err, invalid("oversold %f must be below overbought %f", s.Oversold, s.Overbought))
		}
	case "band":
		if s.BandLength < 2 {
			err = multierr.Append(err, invalid("band length must be at least 2"))
		}
		if s.BandWidth <= 0 {
			err = multierr.Append(err, invalid("band width must be positive"))
		}
	case "breakout":
		if s.ChannelLength <= 0 {
			err = multierr.Append(err, invalid("channel length must be positive"))
		}
	default:
		err = multierr.Append(err, invalid("unknown signal rule %q", s.Rule))
	}
	if s.VolatilityLength < 0 {
		err = multierr.Append(err, invalid("volatility length cannot be negative"))
	}

	z := c.Sizing
	if z.BaseVolume < 0 {
		err = multierr.Append(err, invalid("base volume cannot be negative"))
	}
	if z.BaseVolume == 0 {
		if z.MaxRiskPerTrade <= 0 || z.MaxRiskPerTrade > 0.5 {
			err = multierr.Append(err, invalid("MaxRiskPerTrade (%f) must be >0 and <=0.5", z.MaxRiskPerTrade))
		}
		if !c.Protection.StopLoss.Enabled() {
			err = multierr.Append(err, invalid("risk based sizing needs a stop loss distance"))
		}
	}
	if z.QuantityPrecision < 0 {
		err = multierr.Append(err, invalid("QuantityPrecision cannot be negative"))
	}
	if z.MinQty < 0 {
		err = multierr.Append(err, invalid("MinQty cannot be negative"))
	}
	if z.StepSize < 0 {
		err = multierr.Append(err, invalid("StepSize cannot be negative"))
	}
	if z.Martingale.Factor < 0 {
		err = multierr.Append(err, invalid("martingale factor cannot be negative"))
	}
	if z.Martingale.Enabled() && z.Martingale.MaxSteps <= 0 {
		err = multierr.Append(err, invalid("martingale factor %f needs a positive max_steps", z.Martingale.Factor))
	}

	p := c.Protection
	for name, d := range map[string]Distance{
		"stop_loss":        p.StopLoss,
		"take_profit":      p.TakeProfit,
		"trail_activation": p.TrailActivation,
		"trail_distance":   p.TrailDistance,
	} {
		err = multierr.Append(err, validateDistance(name, d))
	}
	if p.MaxBarsInTrade < 0 {
		err = multierr.Append(err, invalid("max bars in trade cannot be negative"))
	}
	return err
}

// Validate checks the rebalance parameters.
func (r *RebalanceConfig) Validate() error {
	var err error
	if r.ClockSymbol == "" {
		err = multierr.Append(err, invalid("rebalance clock symbol is required"))
	}
	if len(r.Universe) == 0 {
		err = multierr.Append(err, invalid("rebalance universe is empty"))
	}
	if r.Buckets <= 0 {
		err = multierr.Append(err, invalid("rebalance buckets must be positive"))
	}
	if r.MinTradeNotional < 0 {
		err = multierr.Append(err, invalid("minimum trade notional cannot be negative"))
	}
	switch r.Schedule {
	case "monthly", "":
	case "quarterly":
		if r.QuarterDays < 0 {
			err = multierr.Append(err, invalid("quarter days cannot be negative"))
		}
	default:
		err = multierr.Append(err, invalid("unknown rebalance schedule %q", r.Schedule))
	}
	return err
}

// Load reads a YAML file from disk and hydrates a Config struct on top of
// the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := Config{Strategy: Default(), App: App{LogLevel: "info", StartingCash: 10_000}}
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &cfg, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
