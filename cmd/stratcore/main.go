// Command stratcore replays historical bars through a configured
// strategy against the paper executor.
//
//	stratcore -config config.yaml -csv bars.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/evdnx/stratcore/config"
	"github.com/evdnx/stratcore/executor"
	"github.com/evdnx/stratcore/feed"
	"github.com/evdnx/stratcore/logger"
	"github.com/evdnx/stratcore/metrics"
	"github.com/evdnx/stratcore/strategy"
	"github.com/evdnx/stratcore/types"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code so deferred cleanup always runs.
func run(args []string) int {
	fs := flag.NewFlagSet("stratcore", flag.ContinueOnError)
	cfgPath := fs.String("config", "config.yaml", "Path to the YAML config")
	csvPath := fs.String("csv", "", "Path to a CSV file of bars (time,open,high,low,close,volume[,symbol])")
	interval := fs.Duration("interval", 24*time.Hour, "Bar length, used to derive close times")
	hold := fs.Bool("hold", false, "Keep serving metrics after the replay until interrupted")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -csv is required")
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	log, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}

	if cfg.App.MetricsAddr != "" {
		srv, err := metrics.Serve(cfg.App.MetricsAddr)
		if err != nil {
			log.Error("metrics_serve_failed", logger.Err(err))
			return 1
		}
		defer srv.Close()
		log.Info("metrics_up", logger.String("addr", srv.Addr))
	}

	bars, err := feed.LoadCSV(*csvPath, cfg.Strategy.Symbol, *interval)
	if err != nil {
		log.Error("load_bars_failed", logger.String("path", *csvPath), logger.Err(err))
		return 1
	}

	exec := executor.NewPaperExecutor(cfg.App.StartingCash)
	step, err := newStepper(cfg, exec, log)
	if err != nil {
		log.Error("strategy_init_failed", logger.Err(err))
		return 1
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	failed := 0
	for i, b := range bars {
		if ctx.Err() != nil {
			log.Info("replay_interrupted", logger.Int("bar", i))
			break
		}
		exec.Mark(b.Symbol, b.Close)
		if err := step(b); err != nil {
			failed++
			log.Warn("bar_failed", logger.Int("bar", i), logger.Err(err))
		}
	}
	metrics.EquityGauge.Set(exec.Equity())

	log.Info("replay_done",
		logger.Int("bars", len(bars)),
		logger.Int("failed_bars", failed),
		logger.Float64("equity", exec.Equity()),
		logger.Float64("cash", exec.Cash()),
		logger.Float64("realized_pnl", exec.RealizedPnL()),
		logger.Int("open_positions", len(exec.Symbols())),
	)

	if *hold && cfg.App.MetricsAddr != "" {
		<-ctx.Done()
	}
	return 0
}

// newStepper picks the rotation when a rebalance section is configured
// and the single-symbol runner otherwise.
func newStepper(cfg *config.Config, exec *executor.PaperExecutor,
	log logger.Logger) (func(types.Bar) error, error) {

	if cfg.Rebalance != nil {
		rot, err := strategy.NewRotation(*cfg.Rebalance, exec, log)
		if err != nil {
			return nil, err
		}
		return func(b types.Bar) error {
			_, err := rot.OnBar(b)
			return err
		}, nil
	}
	r, err := strategy.New(cfg.Strategy, exec, log)
	if err != nil {
		return nil, err
	}
	return r.OnBar, nil
}
