package calculator

import (
	"errors"
	"math"

	"StockSentinel/internal/model"
)

// WindowRange scans bars and returns the highest high and lowest low.
func WindowRange(bars []model.PriceBar) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no bars provided")
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low, nil
}

// RangePosition returns where price sits within [low, high] on a 0~100 scale.
// A zero range is neutral (50).
func RangePosition(price, high, low float64) (float64, error) {
	if high == low {
		return 50, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := 100 * (price - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 100 {
		pos = 100
	}
	return pos, nil
}
