package calculator

import (
	"fmt"
	"math"

	"StockSentinel/internal/model"
)

// ValidateBars checks that bars are non-empty, strictly ascending by date and
// internally consistent (low <= close <= high, volume >= 0).
func ValidateBars(bars []model.PriceBar) error {
	if len(bars) == 0 {
		return fmt.Errorf("%w: empty price sequence", model.ErrInvalidInput)
	}
	for i, b := range bars {
		if b.Date.IsZero() {
			return fmt.Errorf("%w: bar %d has no date", model.ErrInvalidInput, i)
		}
		if i > 0 && !bars[i-1].Date.Before(b.Date) {
			return fmt.Errorf("%w: bar %d (%s) not after %s", model.ErrInvalidInput,
				i, model.DateKey(b.Date), model.DateKey(bars[i-1].Date))
		}
		for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: bar %d (%s) has non-finite value", model.ErrInvalidInput, i, model.DateKey(b.Date))
			}
		}
		if b.Low > b.High {
			return fmt.Errorf("%w: bar %d (%s) low %.4f > high %.4f", model.ErrInvalidInput,
				i, model.DateKey(b.Date), b.Low, b.High)
		}
		if b.Close < b.Low || b.Close > b.High {
			return fmt.Errorf("%w: bar %d (%s) close %.4f outside [%.4f, %.4f]", model.ErrInvalidInput,
				i, model.DateKey(b.Date), b.Close, b.Low, b.High)
		}
		if b.Volume < 0 {
			return fmt.Errorf("%w: bar %d (%s) negative volume", model.ErrInvalidInput, i, model.DateKey(b.Date))
		}
	}
	return nil
}

func extractVolumes(bars []model.PriceBar) []float64 {
	vols := make([]float64, len(bars))
	for i, b := range bars {
		vols[i] = b.Volume
	}
	return vols
}
