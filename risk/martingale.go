package risk

import "math"

// Martingale scales the base volume by Factor^step, where step grows by
// one after every losing trade up to MaxSteps and resets after a win.
type Martingale struct {
	factor   float64
	maxSteps int
	step     int
}

// NewMartingale builds the scaler. A factor of 1 or less disables it;
// a factor above 1 requires maxSteps > 0.
func NewMartingale(factor float64, maxSteps int) (*Martingale, error) {
	if factor > 1 && maxSteps <= 0 {
		return nil, ErrMartingaleUnbounded
	}
	return &Martingale{factor: factor, maxSteps: maxSteps}, nil
}

func (m *Martingale) enabled() bool { return m != nil && m.factor > 1 }

// Scale is the multiplier for the next entry.
func (m *Martingale) Scale() float64 {
	if !m.enabled() {
		return 1
	}
	return math.Pow(m.factor, float64(m.step))
}

// Step is the number of consecutive losses currently compounded.
func (m *Martingale) Step() int {
	if m == nil {
		return 0
	}
	return m.step
}

// Record feeds the realised PnL of a closed trade. Break-even trades leave
// the step unchanged.
func (m *Martingale) Record(pnl float64) {
	if !m.enabled() {
		return
	}
	switch {
	case pnl < 0:
		if m.step < m.maxSteps {
			m.step++
		}
	case pnl > 0:
		m.step = 0
	}
}

func (m *Martingale) Reset() {
	if m != nil {
		m.step = 0
	}
}
