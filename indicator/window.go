package indicator

import (
	"errors"
	"math"

	"github.com/evdnx/stratcore/types"
)

// ErrBadBar is returned for bars with non-finite or non-positive prices.
var ErrBadBar = errors.New("indicator: bad bar")

type point struct {
	high, low, close float64
}

// Window keeps a rolling window of recent bars for the price-action
// statistics goti does not cover: breakout channel, trend and slope.
type Window struct {
	max int
	buf []point
}

func NewWindow(max int) *Window {
	if max <= 0 {
		max = 16
	}
	return &Window{max: max}
}

func (w *Window) Update(bar types.Bar) error {
	for _, v := range []float64{bar.High, bar.Low, bar.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return ErrBadBar
		}
	}
	w.buf = append(w.buf, point{high: bar.High, low: bar.Low, close: bar.Close})
	if len(w.buf) > w.max {
		w.buf = w.buf[len(w.buf)-w.max:]
	}
	return nil
}

func (w *Window) Reset() { w.buf = nil }

func (w *Window) Len() int { return len(w.buf) }

func (w *Window) Last() float64 {
	if len(w.buf) == 0 {
		return 0
	}
	return w.buf[len(w.buf)-1].close
}

func (w *Window) Prev() float64 {
	if len(w.buf) < 2 {
		return 0
	}
	return w.buf[len(w.buf)-2].close
}

// Channel returns {highest high, lowest low} of the n bars before the
// latest one, so a close can break out of it.
func (w *Window) Channel(n int) Reading {
	if n <= 0 || len(w.buf) < n+1 {
		return Unformed()
	}
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, p := range w.buf[len(w.buf)-n-1 : len(w.buf)-1] {
		hi = math.Max(hi, p.high)
		lo = math.Min(lo, p.low)
	}
	return Reading{Values: []float64{hi, lo}, Formed: true}
}

// Trend scores the direction of the last few closes: 1 up, -1 down, 0 none.
func (w *Window) Trend() int {
	if len(w.buf) < 2 {
		return 0
	}
	lookback := 6
	if lookback >= len(w.buf) {
		lookback = len(w.buf) - 1
	}
	start := len(w.buf) - lookback - 1
	score := 0
	for i := start + 1; i < len(w.buf); i++ {
		switch {
		case w.buf[i].close > w.buf[i-1].close:
			score++
		case w.buf[i].close < w.buf[i-1].close:
			score--
		}
	}
	threshold := lookback / 3
	if threshold < 2 {
		threshold = 2
	}
	if score >= threshold {
		return 1
	}
	if score <= -threshold {
		return -1
	}
	return 0
}

// Slope is the least-squares slope of the last few closes.
func (w *Window) Slope() float64 {
	n := len(w.buf)
	if n < 2 {
		return 0
	}
	lookback := 8
	if lookback >= n {
		lookback = n - 1
	}
	start := n - lookback - 1
	sumX, sumY := 0.0, 0.0
	sumXY, sumXX := 0.0, 0.0
	idx := 0
	for i := start; i < n; i++ {
		x := float64(idx)
		y := w.buf[i].close
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
		idx++
	}
	count := float64(idx)
	den := count*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (count*sumXY - sumX*sumY) / den
}
