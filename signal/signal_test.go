package signal

import (
	"math"
	"testing"

	"github.com/evdnx/stratcore/indicator"
	"github.com/evdnx/stratcore/types"
)

func snap(close float64, kv ...any) Snapshot {
	s := Snapshot{Close: close, Readings: map[string]indicator.Reading{}}
	for i := 0; i+1 < len(kv); i += 2 {
		switch v := kv[i+1].(type) {
		case float64:
			s.Readings[kv[i].(string)] = indicator.Scalar(v, true)
		case indicator.Reading:
			s.Readings[kv[i].(string)] = v
		}
	}
	return s
}

func TestCrossUpFiresExactlyOnceAtIntersection(t *testing.T) {
	// a rises through a flat b between bar 4 and bar 5
	a := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	b := 4.5
	fired := []int{}
	for i := 1; i < len(a); i++ {
		if CrossUp(a[i-1], b, a[i], b) {
			fired = append(fired, i)
		}
		if CrossDown(a[i-1], b, a[i], b) {
			t.Fatalf("unexpected cross down at %d", i)
		}
	}
	if len(fired) != 1 || fired[0] != 4 {
		t.Fatalf("expected one cross at bar 4, got %v", fired)
	}
}

func TestCrossOnEqualityBeforeCounts(t *testing.T) {
	if !CrossUp(5, 5, 6, 5) {
		t.Fatal("a cross from equality must fire")
	}
	if CrossUp(5, 5, 5, 5) {
		t.Fatal("staying equal is not a cross")
	}
	if !CrossDown(5, 5, 4, 5) {
		t.Fatal("a cross down from equality must fire")
	}
	if CrossUp(6, 5, 7, 5) {
		t.Fatal("unchanged ordering is not a cross")
	}
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name    string
		c       Conditions
		pos     float64
		reverse bool
		want    types.Action
	}{
		{"flat long", Conditions{LongEntry: true}, 0, true, types.EnterLong},
		{"flat short", Conditions{ShortEntry: true}, 0, true, types.EnterShort},
		{"flat conflict", Conditions{LongEntry: true, ShortEntry: true}, 0, true, types.Hold},
		{"no pyramiding long", Conditions{LongEntry: true}, 2, true, types.Hold},
		{"no pyramiding short", Conditions{ShortEntry: true}, -2, true, types.Hold},
		{"reverse short to long", Conditions{LongEntry: true}, -5, true, types.EnterLong},
		{"exit short only", Conditions{LongEntry: true}, -5, false, types.ExitShort},
		{"exit long on exit signal", Conditions{LongExit: true, LongEntry: true}, 1, true, types.ExitLong},
		{"exit wins over same-side entry", Conditions{ShortExit: true, ShortEntry: true}, -1, true, types.ExitShort},
		{"exit long flat ignored", Conditions{LongExit: true}, 0, true, types.Hold},
	}
	for _, c := range cases {
		if got := Decide(c.c, c.pos, c.reverse); got != c.want {
			t.Fatalf("%s: expected %s, got %s", c.name, c.want, got)
		}
	}
}

func TestEvaluatorCrossover(t *testing.T) {
	ev := NewEvaluator(Crossover{Fast: "fast", Slow: "slow"}, true)
	var st State

	act, st := ev.Evaluate(snap(100, "fast", 9.0, "slow", 10.0), 0, st)
	if act != types.Hold || !st.Initialized || st.Bullish {
		t.Fatalf("first bar: act=%s state=%+v", act, st)
	}
	act, st = ev.Evaluate(snap(101, "fast", 10.0, "slow", 10.0), 0, st)
	if act != types.Hold {
		t.Fatalf("touching is not crossing, got %s", act)
	}
	act, st = ev.Evaluate(snap(102, "fast", 11.0, "slow", 10.0), 0, st)
	if act != types.EnterLong || !st.Bullish {
		t.Fatalf("expected EnterLong, got %s (%+v)", act, st)
	}
	act, _ = ev.Evaluate(snap(103, "fast", 12.0, "slow", 10.0), 1, st)
	if act != types.Hold {
		t.Fatalf("no repeat signal without a new cross, got %s", act)
	}
}

func TestEvaluatorUnformedHolds(t *testing.T) {
	ev := NewEvaluator(Crossover{Fast: "fast", Slow: "slow"}, true)
	var st State
	_, st = ev.Evaluate(snap(100, "fast", 9.0, "slow", 10.0), 0, st)

	act, st := ev.Evaluate(snap(100, "fast", 11.0, "slow", indicator.Unformed()), 0, st)
	if act != types.Hold {
		t.Fatalf("unformed reading must hold, got %s", act)
	}
	if st.PrevUsable {
		t.Fatal("unformed bar must not be usable as previous bar")
	}
	// next bar is above, but the previous one was unusable: no cross
	act, _ = ev.Evaluate(snap(100, "fast", 12.0, "slow", 10.0), 0, st)
	if act != types.Hold {
		t.Fatalf("cross against an unusable bar must not fire, got %s", act)
	}
}

func TestEvaluatorBadPriceHolds(t *testing.T) {
	ev := NewEvaluator(Threshold{Name: "rsi", Oversold: 30, Overbought: 70}, true)
	for _, c := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		act, st := ev.Evaluate(snap(c, "rsi", 10.0), 0, State{})
		if act != types.Hold {
			t.Fatalf("close %v: expected Hold, got %s", c, act)
		}
		if !st.Initialized {
			t.Fatalf("close %v: state must still advance", c)
		}
	}
	act, _ := ev.Evaluate(snap(100, "rsi", 10.0), 0, State{})
	if act != types.EnterLong {
		t.Fatalf("oversold must enter long, got %s", act)
	}
}

func TestThresholdExitLevel(t *testing.T) {
	ev := NewEvaluator(Threshold{Name: "rsi", Oversold: 30, Overbought: 70, ExitLevel: 50}, false)
	act, _ := ev.Evaluate(snap(100, "rsi", 55.0), 3, State{})
	if act != types.ExitLong {
		t.Fatalf("expected ExitLong at rsi 55, got %s", act)
	}
	act, _ = ev.Evaluate(snap(100, "rsi", 45.0), -3, State{})
	if act != types.ExitShort {
		t.Fatalf("expected ExitShort at rsi 45, got %s", act)
	}
	act, _ = ev.Evaluate(snap(100, "rsi", 45.0), 3, State{})
	if act != types.Hold {
		t.Fatalf("expected Hold at rsi 45 while long, got %s", act)
	}
}

func TestBandRule(t *testing.T) {
	ev := NewEvaluator(Band{Name: "bands"}, false)
	bands := indicator.Reading{Values: []float64{110, 100, 90}, Formed: true}

	if act, _ := ev.Evaluate(snap(89, "bands", bands), 0, State{}); act != types.EnterLong {
		t.Fatalf("below lower band: expected EnterLong, got %s", act)
	}
	if act, _ := ev.Evaluate(snap(111, "bands", bands), 0, State{}); act != types.EnterShort {
		t.Fatalf("above upper band: expected EnterShort, got %s", act)
	}
	if act, _ := ev.Evaluate(snap(100, "bands", bands), 1, State{}); act != types.ExitLong {
		t.Fatalf("at middle: expected ExitLong, got %s", act)
	}
	if act, _ := ev.Evaluate(snap(95, "bands", bands), 1, State{}); act != types.Hold {
		t.Fatalf("inside bands: expected Hold, got %s", act)
	}
}

func TestBreakoutNeedsMomentumAgreement(t *testing.T) {
	ev := NewEvaluator(Breakout{Channel: "ch", Momentum: "mom"}, true)
	ch := indicator.Reading{Values: []float64{105, 95}, Formed: true}

	if act, _ := ev.Evaluate(snap(106, "ch", ch, "mom", 0.4), 0, State{}); act != types.EnterLong {
		t.Fatalf("breakout with rising momentum: expected EnterLong, got %s", act)
	}
	if act, _ := ev.Evaluate(snap(106, "ch", ch, "mom", -0.4), 0, State{}); act != types.Hold {
		t.Fatalf("breakout against momentum: expected Hold, got %s", act)
	}
	if act, _ := ev.Evaluate(snap(94, "ch", ch, "mom", -0.4), 2, State{}); act != types.EnterShort {
		t.Fatalf("breakdown while long with reverse: expected EnterShort, got %s", act)
	}
	if act, _ := ev.Evaluate(snap(100, "ch", ch), 0, State{}); act != types.Hold {
		t.Fatalf("missing momentum reading must hold, got %s", act)
	}
}
