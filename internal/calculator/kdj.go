package calculator

import (
	"fmt"

	"StockSentinel/internal/model"
)

const (
	// DefaultWindow is the RSV look-back in trading days.
	DefaultWindow = 9

	// SeedK and SeedD stand in for the previous day's K and D on the first
	// computable day (the Wth bar).
	SeedK = 50.0
	SeedD = 50.0

	// NeutralRSV is used when the window has zero range.
	NeutralRSV = 50.0
)

// KDJAccumulator carries the smoothing memory from one trading day to the next.
type KDJAccumulator struct {
	K float64
	D float64
}

// SeedAccumulator returns the accumulator used before the first computable day.
func SeedAccumulator() KDJAccumulator {
	return KDJAccumulator{K: SeedK, D: SeedD}
}

// RSV computes the raw stochastic value of the last bar's close within window.
func RSV(window []model.PriceBar) (float64, error) {
	high, low, err := WindowRange(window)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	if high == low {
		return NeutralRSV, nil
	}
	return RangePosition(window[len(window)-1].Close, high, low)
}

// StepKDJ advances the recurrence by one day.
//
//	K = 2/3*K(prev) + 1/3*RSV
//	D = 2/3*D(prev) + 1/3*K
//	J = 3K - 2D
func StepKDJ(prev KDJAccumulator, rsv float64) (next KDJAccumulator, j float64) {
	k := (2*prev.K + rsv) / 3
	d := (2*prev.D + k) / 3
	return KDJAccumulator{K: k, D: d}, 3*k - 2*d
}

// KDJSeries folds the whole sequence and returns one state per computable day,
// starting at the window-th bar. bars must be ordered ascending by date.
func KDJSeries(bars []model.PriceBar, window int) ([]model.OscillatorState, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %d", model.ErrInvalidInput, window)
	}
	if err := ValidateBars(bars); err != nil {
		return nil, err
	}
	if len(bars) < window {
		return nil, fmt.Errorf("%w: have %d bars, need %d", model.ErrInsufficientHistory, len(bars), window)
	}

	acc := SeedAccumulator()
	states := make([]model.OscillatorState, 0, len(bars)-window+1)
	for end := window; end <= len(bars); end++ {
		rsv, err := RSV(bars[end-window : end])
		if err != nil {
			return nil, err
		}
		var j float64
		acc, j = StepKDJ(acc, rsv)
		states = append(states, model.OscillatorState{
			RSV:  rsv,
			K:    acc.K,
			D:    acc.D,
			J:    j,
			AsOf: bars[end-1].Date,
		})
	}
	return states, nil
}

// KDJ returns the oscillator reading for the last bar in bars.
func KDJ(bars []model.PriceBar, window int) (model.OscillatorState, error) {
	series, err := KDJSeries(bars, window)
	if err != nil {
		return model.OscillatorState{}, err
	}
	return series[len(series)-1], nil
}
