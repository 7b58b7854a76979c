package indicator

import (
	"math"

	"github.com/evdnx/goti"
	"github.com/evdnx/stratcore/types"
)

// SuiteFactory builds a fresh goti suite, used again on Reset.
type SuiteFactory func() (*goti.IndicatorSuite, error)

// OscillatorFactory returns a factory with the usual 70/30 RSI and 80/20
// MFI bands.
func OscillatorFactory(atsEMAPeriod int) SuiteFactory {
	return func() (*goti.IndicatorSuite, error) {
		ic := goti.DefaultConfig()
		ic.RSIOverbought = 70
		ic.RSIOversold = 30
		ic.MFIOverbought = 80
		ic.MFIOversold = 20
		ic.VWAOStrongTrend = 70
		if atsEMAPeriod > 0 {
			ic.ATSEMAperiod = atsEMAPeriod
		}
		return goti.NewIndicatorSuiteWithConfig(ic)
	}
}

// SuiteReader adapts a goti.IndicatorSuite. A reading is formed when the
// suite calculates without error.
type SuiteReader struct {
	factory SuiteFactory
	suite   *goti.IndicatorSuite
	bars    int
}

func NewSuiteReader(factory SuiteFactory) (*SuiteReader, error) {
	suite, err := factory()
	if err != nil {
		return nil, err
	}
	return &SuiteReader{factory: factory, suite: suite}, nil
}

func (s *SuiteReader) Update(bar types.Bar) error {
	if err := s.suite.Add(bar.High, bar.Low, bar.Close, bar.Volume); err != nil {
		return err
	}
	s.bars++
	return nil
}

// Reset rebuilds the suite from the factory. A factory that worked once
// is assumed to keep working; on failure the old suite is kept.
func (s *SuiteReader) Reset() {
	if suite, err := s.factory(); err == nil {
		s.suite = suite
	}
	s.bars = 0
}

// Bars counts the bars fed since the last reset.
func (s *SuiteReader) Bars() int { return s.bars }

func calculated(v float64, err error) Reading {
	if err != nil {
		return Unformed()
	}
	return Scalar(v, !math.IsNaN(v) && !math.IsInf(v, 0))
}

func (s *SuiteReader) RSI() Reading { return calculated(s.suite.GetRSI().Calculate()) }
func (s *SuiteReader) MFI() Reading { return calculated(s.suite.GetMFI().Calculate()) }

// Oscillator returns the RSI or MFI reading by name.
func (s *SuiteReader) Oscillator(name string) Reading {
	if name == "mfi" {
		return s.MFI()
	}
	return s.RSI()
}

// TrendStrength is the magnitude of the latest ATSO value. It is a
// unitless oscillator reading, not a price distance.
func (s *SuiteReader) TrendStrength() Reading {
	vals := s.suite.GetATSO().GetATSOValues()
	if len(vals) == 0 {
		return Unformed()
	}
	v := math.Abs(vals[len(vals)-1])
	return Scalar(v, !math.IsInf(v, 0))
}
