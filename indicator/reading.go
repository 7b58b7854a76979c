// Package indicator adapts external indicator math to the one shape the
// decision layer consumes: a named Reading with a formed flag.
package indicator

import (
	"math"

	"github.com/evdnx/stratcore/types"
)

// Reading is a scalar or small tuple produced for one finished bar.
// Decisions must never use a Reading whose Formed flag is false.
type Reading struct {
	Values []float64
	Formed bool
}

// Scalar wraps a single value.
func Scalar(v float64, formed bool) Reading {
	return Reading{Values: []float64{v}, Formed: formed}
}

// Unformed is the reading of an indicator still warming up.
func Unformed() Reading { return Reading{} }

// Value returns the first component, NaN when there is none.
func (r Reading) Value() float64 { return r.At(0) }

// At returns component i, NaN when out of range.
func (r Reading) At(i int) float64 {
	if i < 0 || i >= len(r.Values) {
		return math.NaN()
	}
	return r.Values[i]
}

// Usable reports whether the reading is formed and every component finite.
func (r Reading) Usable() bool {
	if !r.Formed || len(r.Values) == 0 {
		return false
	}
	for _, v := range r.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Updater is fed every finished bar.
type Updater interface {
	Update(bar types.Bar) error
	Reset()
}

// Reader is the indicator capability the strategy core depends on.
type Reader interface {
	Updater
	Read(name string) (Reading, bool)
}

// Set groups updaters and exposes named readings computed from them.
type Set struct {
	updaters []Updater
	sources  map[string]func() Reading
	order    []string
}

func NewSet() *Set {
	return &Set{sources: make(map[string]func() Reading)}
}

// Track registers an updater that receives every bar.
func (s *Set) Track(u Updater) *Set {
	s.updaters = append(s.updaters, u)
	return s
}

// Define binds a name to a reading source.
func (s *Set) Define(name string, fn func() Reading) *Set {
	if _, ok := s.sources[name]; !ok {
		s.order = append(s.order, name)
	}
	s.sources[name] = fn
	return s
}

func (s *Set) Update(bar types.Bar) error {
	for _, u := range s.updaters {
		if err := u.Update(bar); err != nil {
			return err
		}
	}
	return nil
}

func (s *Set) Read(name string) (Reading, bool) {
	fn, ok := s.sources[name]
	if !ok {
		return Unformed(), false
	}
	return fn(), true
}

func (s *Set) Reset() {
	for _, u := range s.updaters {
		u.Reset()
	}
}

// Snapshot reads every defined name at once.
func (s *Set) Snapshot() map[string]Reading {
	out := make(map[string]Reading, len(s.order))
	for _, name := range s.order {
		out[name] = s.sources[name]()
	}
	return out
}
