package rebalance

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrUniverseTooSmall aborts a rebalance that cannot fill both buckets.
var ErrUniverseTooSmall = errors.New("rebalance: universe too small")

// Score is one ranked instrument.
type Score struct {
	Symbol string
	Value  float64
}

// Weights ranks the scores and returns equal weights summing to +1 over
// the top `buckets` instruments and -1 over the bottom `buckets`. At least
// 2*buckets scores are required, otherwise nothing is allocated.
func Weights(scores []Score, buckets int) (map[string]float64, error) {
	if buckets <= 0 {
		return nil, fmt.Errorf("rebalance: buckets must be positive, got %d", buckets)
	}
	valid := make([]Score, 0, len(scores))
	for _, s := range scores {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		valid = append(valid, s)
	}
	if len(valid) < 2*buckets {
		return nil, fmt.Errorf("%w: %d scored, need %d", ErrUniverseTooSmall, len(valid), 2*buckets)
	}

	// 1️⃣ Sort by descending score, ties by symbol so runs are repeatable.
	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Value != valid[j].Value {
			return valid[i].Value > valid[j].Value
		}
		return valid[i].Symbol < valid[j].Symbol
	})

	// 2️⃣ Top bucket long, bottom bucket short.
	w := 1 / float64(buckets)
	out := make(map[string]float64, 2*buckets)
	for _, s := range valid[:buckets] {
		out[s.Symbol] = w
	}
	for _, s := range valid[len(valid)-buckets:] {
		out[s.Symbol] = -w
	}
	return out, nil
}
