package strategy

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/evdnx/stratcore/config"
	"github.com/evdnx/stratcore/testutils"
	"github.com/evdnx/stratcore/types"
)

func tightBar(close float64) types.Bar {
	return types.Bar{
		Symbol: "TEST", Open: close, High: close + 0.1, Low: close - 0.1,
		Close: close, Volume: 1000, Finished: true,
	}
}

func TestMACrossoverPresetEntersOnCrossUp(t *testing.T) {
	exec := testutils.NewMockExecutor(10_000)
	r, err := New(MACrossover("TEST", 2, 4), exec, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, c := range []float64{10, 9, 8, 7, 6, 5, 6} {
		feed(t, r, tightBar(c))
	}
	if n := len(exec.Orders()); n != 0 {
		t.Fatalf("no cross yet, got %d orders", n)
	}
	feed(t, r, tightBar(7))

	orders := exec.Orders()
	if len(orders) != 1 {
		t.Fatalf("expected one entry, got %d", len(orders))
	}
	if orders[0].Side != types.Buy || orders[0].Qty != 1 || orders[0].Price != 7 {
		t.Fatalf("expected BUY 1 @7, got %s %v @%v", orders[0].Side, orders[0].Qty, orders[0].Price)
	}
}

func TestBadBarHoldsAndMarksState(t *testing.T) {
	exec := testutils.NewMockExecutor(10_000)
	r, err := New(MACrossover("TEST", 2, 4), exec, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.OnBar(types.Bar{Symbol: "TEST", Close: math.NaN(), Finished: true}); err != nil {
		t.Fatalf("bad bar must not error: %v", err)
	}
	st := r.State()
	if !st.Initialized || st.PrevUsable {
		t.Fatalf("bad bar should advance state as unusable, got %+v", st)
	}
	if len(exec.Orders()) != 0 {
		t.Fatalf("bad bar must not trade")
	}
}

func TestBandReversionPresetFadesSpike(t *testing.T) {
	exec := testutils.NewMockExecutor(10_000)
	r, err := New(BandReversion("TEST", 5, 1), exec, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, c := range []float64{100, 101, 100, 101, 100} {
		feed(t, r, tightBar(c))
	}
	if n := len(exec.Orders()); n != 0 {
		t.Fatalf("inside the bands, got %d orders", n)
	}
	feed(t, r, tightBar(95))

	orders := exec.Orders()
	if len(orders) != 1 || orders[0].Side != types.Buy || orders[0].Price != 95 {
		t.Fatalf("expected BUY @95 below the lower band, got %+v", orders)
	}
}

func TestMeanReversionPresetBuysWeakness(t *testing.T) {
	exec := testutils.NewMockExecutor(10_000)
	r, err := New(MeanReversion("TEST"), exec, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 40; i++ {
		c := 200 - 1.5*float64(i) + float64(i%2)*2
		feed(t, r, tightBar(c))
	}
	orders := exec.Orders()
	if len(orders) == 0 {
		t.Fatalf("expected an oversold entry")
	}
	if orders[0].Side != types.Buy {
		t.Fatalf("first trade should buy weakness, got %s", orders[0].Side)
	}
}

func TestBreakoutMomentumPreset(t *testing.T) {
	exec := testutils.NewMockExecutor(10_000)
	r, err := New(BreakoutMomentum("TEST", 3), exec, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, c := range []float64{100, 100.5, 100, 100.5} {
		feed(t, r, tightBar(c))
	}
	if n := len(exec.Orders()); n != 0 {
		t.Fatalf("inside the channel, got %d orders", n)
	}
	feed(t, r, tightBar(103))

	orders := exec.Orders()
	if len(orders) != 1 || orders[0].Side != types.Buy || orders[0].Price != 103 {
		t.Fatalf("expected BUY @103 on the breakout, got %+v", orders)
	}
}

func TestNewWiringUnknownRule(t *testing.T) {
	if _, err := NewWiring(config.Signal{Rule: "magic"}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

func rotationDay(d int) time.Time {
	return time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func TestRotationRanksStrongAgainstWeak(t *testing.T) {
	exec := testutils.NewMockExecutor(10_000)
	rot, err := NewRotation(config.RebalanceConfig{
		ClockSymbol: "UP",
		Universe:    []string{"UP", "DOWN"},
		Buckets:     1,
	}, exec, nil)
	if err != nil {
		t.Fatalf("NewRotation: %v", err)
	}

	for i := 0; i <= 31; i++ { // Jan 1 .. Feb 1
		ts := rotationDay(i)
		up := 100 + 1.5*float64(i) - float64(i%2)*2
		down := 200 - 1.5*float64(i) + float64(i%2)*2
		for _, b := range []types.Bar{
			{Symbol: "DOWN", OpenTime: ts, Open: down, High: down + 1, Low: down - 1, Close: down, Volume: 1000, Finished: true},
			{Symbol: "UP", OpenTime: ts, Open: up, High: up + 1, Low: up - 1, Close: up, Volume: 1000, Finished: true},
		} {
			res, err := rot.OnBar(b)
			if err != nil {
				t.Fatalf("day %d: %v", i, err)
			}
			if i == 0 && res != nil && res.Aborted == nil {
				t.Fatalf("first day has no scores yet, expected an aborted run")
			}
		}
	}

	if s, ok := rot.Score("UP"); !ok || s <= 0 {
		t.Fatalf("UP should be scored, got %v %v", s, ok)
	}
	w := rot.Engine().Weights()
	if w["UP"] != 1 || w["DOWN"] != -1 {
		t.Fatalf("expected UP long and DOWN short, got %v", w)
	}
	if q, _ := exec.Position("UP"); q <= 0 {
		t.Fatalf("expected long UP, got %v", q)
	}
	if q, _ := exec.Position("DOWN"); q >= 0 {
		t.Fatalf("expected short DOWN, got %v", q)
	}

	rot.Reset()
	if _, ok := rot.Score("UP"); ok {
		t.Fatalf("reset should drop scores")
	}
}

func TestThresholdWiringATRIsPriceDistance(t *testing.T) {
	s := MeanReversion("TEST").Signal
	s.VolatilityLength = 3
	w, err := NewWiring(s)
	if err != nil {
		t.Fatalf("NewWiring: %v", err)
	}
	wide := func(c float64) types.Bar {
		return types.Bar{
			Symbol: "TEST", Open: c, High: c + 192.5, Low: c - 192.5,
			Close: c, Volume: 1000, Finished: true,
		}
	}
	for i, c := range []float64{1000, 1010, 990} {
		if err := w.Indicators.Update(wide(c)); err != nil {
			t.Fatalf("bar %d: %v", i, err)
		}
		if atr, _ := w.Indicators.Read(ReadingATR); atr.Formed {
			t.Fatalf("bar %d: ATR must wait for length+1 bars, got %v", i, atr.Value())
		}
	}
	if err := w.Indicators.Update(wide(1000)); err != nil {
		t.Fatalf("update: %v", err)
	}
	atr, ok := w.Indicators.Read(ReadingATR)
	if !ok || !atr.Formed {
		t.Fatalf("ATR should be formed, got %+v", atr)
	}
	if math.Abs(atr.Value()-385) > 1e-9 {
		t.Fatalf("ATR = %v, want the 385 bar range", atr.Value())
	}
}
