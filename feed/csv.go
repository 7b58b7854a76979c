// Package feed loads historical bars for replay.
package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/evdnx/stratcore/types"
)

// ErrBadCSV marks a file that cannot be turned into bars.
var ErrBadCSV = errors.New("bad bar csv")

var required = []string{"time", "open", "high", "low", "close", "volume"}

// LoadCSV reads bars from path. See ReadCSV.
func LoadCSV(path, defaultSymbol string, interval time.Duration) ([]types.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, defaultSymbol, interval)
}

// ReadCSV parses a header row followed by OHLCV rows. The optional
// symbol column overrides defaultSymbol per row. Each bar closes
// interval after its open time and is marked finished.
func ReadCSV(r io.Reader, defaultSymbol string, interval time.Duration) ([]types.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCSV, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: header and at least one row required", ErrBadCSV)
	}

	col := make(map[string]int)
	for i, h := range records[0] {
		col[strings.TrimSpace(strings.ToLower(h))] = i
	}
	for _, name := range required {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %s", ErrBadCSV, name)
		}
	}
	symCol, hasSym := col["symbol"]

	bars := make([]types.Bar, 0, len(records)-1)
	for n, row := range records[1:] {
		line := n + 2
		ts, err := parseTime(row[col["time"]])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadCSV, line, err)
		}
		var vals [5]float64
		for i, name := range required[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[col[name]]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d %s: %v", ErrBadCSV, line, name, err)
			}
			vals[i] = v
		}
		sym := defaultSymbol
		if hasSym && row[symCol] != "" {
			sym = strings.TrimSpace(row[symCol])
		}
		bars = append(bars, types.Bar{
			Symbol:    sym,
			OpenTime:  ts,
			CloseTime: ts.Add(interval),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
			Finished:  true,
		})
	}
	return bars, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
