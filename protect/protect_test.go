package protect

import (
	"math"
	"math/rand"
	"testing"

	"github.com/evdnx/stratcore/config"
	"github.com/evdnx/stratcore/types"
)

func ohlc(o, h, l, c float64) types.Bar {
	return types.Bar{Open: o, High: h, Low: l, Close: c, Finished: true}
}

func pct(v float64) config.Distance { return config.Distance{Kind: config.Percent, Value: v} }

func TestStopLossFiresOnceLong(t *testing.T) {
	m := NewManager(config.Protection{StopLoss: pct(0.02)})
	m.Arm(types.Long, 100, 0)
	if lv := m.Levels(); lv.Stop != 98 {
		t.Fatalf("expected stop 98, got %v", lv.Stop)
	}
	if _, ok := m.Check(ohlc(100, 101, 99, 100)); ok {
		t.Fatal("no exit expected above the stop")
	}
	ex, ok := m.Check(ohlc(99, 99.5, 97, 97.5))
	if !ok || ex.Reason != ReasonStopLoss || ex.Price != 98 {
		t.Fatalf("expected stop at 98, got %+v ok=%v", ex, ok)
	}
	// already flat: never a second forced exit
	for i := 0; i < 3; i++ {
		if _, ok := m.Check(ohlc(90, 91, 80, 85)); ok {
			t.Fatal("double forced exit on a flat position")
		}
	}
	if m.Phase() != Inactive {
		t.Fatalf("expected inactive, got %s", m.Phase())
	}
}

func TestStopGapFillsAtOpen(t *testing.T) {
	m := NewManager(config.Protection{StopLoss: config.Distance{Kind: config.Absolute, Value: 5}})
	m.Arm(types.Long, 100, 0)
	ex, ok := m.Check(ohlc(90, 92, 89, 91))
	if !ok || ex.Price != 90 {
		t.Fatalf("gap through stop should fill at open 90, got %+v", ex)
	}
}

func TestTakeProfitShort(t *testing.T) {
	m := NewManager(config.Protection{TakeProfit: config.Distance{Kind: config.ATR, Value: 2}})
	m.Arm(types.Short, 100, 1.5)
	if lv := m.Levels(); lv.Take != 97 || lv.Stop != 0 {
		t.Fatalf("unexpected levels %+v", lv)
	}
	ex, ok := m.Check(ohlc(99, 99, 96.5, 97))
	if !ok || ex.Reason != ReasonTakeProfit || ex.Price != 97 {
		t.Fatalf("expected take profit at 97, got %+v", ex)
	}
}

func TestLevelsFixedAtEntry(t *testing.T) {
	m := NewManager(config.Protection{StopLoss: pct(0.05), TakeProfit: pct(0.5)})
	m.Arm(types.Long, 200, 0)
	for _, c := range []float64{210, 230, 250} {
		if _, ok := m.Check(ohlc(c, c+1, c-1, c)); ok {
			t.Fatal("unexpected exit")
		}
		if m.Levels().Stop != 190 {
			t.Fatalf("percent stop drifted to %v", m.Levels().Stop)
		}
	}
}

func TestDisabledDistancesNeverExit(t *testing.T) {
	m := NewManager(config.Protection{StopLoss: config.Distance{Kind: config.ATR, Value: 2}})
	m.Arm(types.Long, 100, 0) // no volatility at entry: ATR stop disabled
	for _, c := range []float64{50, 10, 200} {
		if _, ok := m.Check(ohlc(c, c+1, c-1, c)); ok {
			t.Fatal("disabled protection fired")
		}
	}
	if m.Phase() != Armed {
		t.Fatalf("expected armed, got %s", m.Phase())
	}
}

func TestTrailingActivatesAndRatchets(t *testing.T) {
	m := NewManager(config.Protection{
		TrailActivation: config.Distance{Kind: config.Absolute, Value: 5},
		TrailDistance:   config.Distance{Kind: config.Absolute, Value: 3},
	})
	m.Arm(types.Long, 100, 0)
	m.Check(ohlc(100, 103, 99, 102))
	if m.Phase() != Armed {
		t.Fatalf("below activation, got %s", m.Phase())
	}
	m.Check(ohlc(102, 106, 101, 105))
	if m.Phase() != Trailing || m.Levels().TrailStop != 103 {
		t.Fatalf("expected trailing at 103, got %s %+v", m.Phase(), m.Levels())
	}
	m.Check(ohlc(105, 110, 104, 109))
	if m.Levels().TrailStop != 107 {
		t.Fatalf("expected ratchet to 107, got %v", m.Levels().TrailStop)
	}
	ex, ok := m.Check(ohlc(108, 108, 106, 106.5))
	if !ok || ex.Reason != ReasonTrailing || ex.Price != 107 {
		t.Fatalf("expected trailing exit at 107, got %+v ok=%v", ex, ok)
	}
}

func trailPath(t *testing.T, dir types.Direction, seed int64) {
	m := NewManager(config.Protection{TrailDistance: pct(0.03)})
	m.Arm(dir, 100, 0)
	r := rand.New(rand.NewSource(seed))
	price := 100.0
	last := m.Levels().TrailStop
	for i := 0; i < 500; i++ {
		next := price * (1 + (r.Float64()-0.5)*0.01)
		hi, lo := math.Max(price, next)*1.001, math.Min(price, next)*0.999
		if _, ok := m.Check(ohlc(price, hi, lo, next)); ok {
			return
		}
		ts := m.Levels().TrailStop
		if dir == types.Long && ts < last {
			t.Fatalf("seed %d bar %d: long trailing stop loosened %v -> %v", seed, i, last, ts)
		}
		if dir == types.Short && ts > last {
			t.Fatalf("seed %d bar %d: short trailing stop loosened %v -> %v", seed, i, last, ts)
		}
		last = ts
		price = next
	}
}

func TestTrailingMonotonic(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		trailPath(t, types.Long, seed)
		trailPath(t, types.Short, seed)
	}
}

func TestTimeStop(t *testing.T) {
	m := NewManager(config.Protection{MaxBarsInTrade: 3})
	m.Arm(types.Short, 50, 0)
	for i := 0; i < 2; i++ {
		if _, ok := m.Check(ohlc(50, 51, 49, 50)); ok {
			t.Fatalf("time stop fired early at bar %d", i+1)
		}
	}
	ex, ok := m.Check(ohlc(50, 51, 49, 49.5))
	if !ok || ex.Reason != ReasonTime || ex.Price != 49.5 {
		t.Fatalf("expected time stop at close, got %+v", ex)
	}
}

func TestSyncFollowsPosition(t *testing.T) {
	m := NewManager(config.Protection{StopLoss: pct(0.1)})
	if m.Sync(0, 0, 0) || m.Active() {
		t.Fatal("flat position must stay inactive")
	}
	if !m.Sync(2, 100, 0) || m.Levels().Stop != 90 {
		t.Fatalf("expected armed long, got %+v", m.Levels())
	}
	if m.Sync(2, 100, 0) {
		t.Fatal("unchanged position must not re-arm")
	}
	if !m.Sync(-1, 120, 0) || m.Levels().Direction != types.Short || m.Levels().Stop != 132 {
		t.Fatalf("expected re-armed short, got %+v", m.Levels())
	}
	m.Sync(0, 0, 0)
	if m.Active() {
		t.Fatal("flat position must disarm")
	}
}

func TestRollbackRestoresLevels(t *testing.T) {
	m := NewManager(config.Protection{StopLoss: pct(0.02)})
	m.Arm(types.Long, 100, 0)
	if _, ok := m.Check(ohlc(99, 99, 97, 97)); !ok {
		t.Fatal("expected stop")
	}
	if !m.Rollback() || m.Phase() != Armed || m.Levels().Stop != 98 {
		t.Fatalf("rollback failed: %s %+v", m.Phase(), m.Levels())
	}
	if m.Rollback() {
		t.Fatal("rollback must only apply once")
	}
	m.Reset()
	m.Reset()
	if m.Active() || m.Rollback() {
		t.Fatal("reset must clear everything")
	}
}
