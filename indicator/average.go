package indicator

import (
	"math"

	"github.com/evdnx/goti"
	"github.com/evdnx/stratcore/types"
)

// MA feeds closes into a goti moving average.
type MA struct {
	ma *goti.MovingAverage
}

func NewSMA(n int) (*MA, error) {
	ma, err := goti.NewMovingAverage(goti.SMAMovingAverage, n)
	if err != nil {
		return nil, err
	}
	return &MA{ma: ma}, nil
}

func (m *MA) Update(bar types.Bar) error { return m.ma.Add(bar.Close) }
func (m *MA) Reset()                     { m.ma.Reset() }
func (m *MA) Reading() Reading           { return calculated(m.ma.Calculate()) }

// ATR is a goti average true range over OHLC bars, in price units.
type ATR struct {
	atr *goti.AverageTrueRange
}

func NewATR(n int) (*ATR, error) {
	atr, err := goti.NewAverageTrueRangeWithParams(n)
	if err != nil {
		return nil, err
	}
	return &ATR{atr: atr}, nil
}

func (a *ATR) Update(bar types.Bar) error { return a.atr.AddCandle(bar.High, bar.Low, bar.Close) }
func (a *ATR) Reset()                     { a.atr.Reset() }

// Reading is unformed until period+1 bars have been seen.
func (a *ATR) Reading() Reading {
	r := calculated(a.atr.Calculate())
	if r.Formed && r.Value() <= 0 {
		r.Formed = false
	}
	return r
}

// Bands are {upper, middle, lower}: a goti SMA of the close plus/minus k
// population standard deviations of the same window.
type Bands struct {
	sma *goti.MovingAverage
	k   float64
}

func NewBands(n int, k float64) (*Bands, error) {
	sma, err := goti.NewMovingAverage(goti.SMAMovingAverage, n)
	if err != nil {
		return nil, err
	}
	return &Bands{sma: sma, k: k}, nil
}

func (b *Bands) Update(bar types.Bar) error { return b.sma.Add(bar.Close) }
func (b *Bands) Reset()                     { b.sma.Reset() }

func (b *Bands) Reading() Reading {
	mean, err := b.sma.Calculate()
	if err != nil {
		return Unformed()
	}
	vals := b.sma.GetValues()
	variance := 0.0
	for _, c := range vals {
		variance += (c - mean) * (c - mean)
	}
	sd := math.Sqrt(variance / float64(len(vals)))
	// a flat window has no spread to trade against
	return Reading{Values: []float64{mean + b.k*sd, mean, mean - b.k*sd}, Formed: sd > 0}
}
