package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"StockSentinel/internal/model"
)

func TestVolumeAnomaly(t *testing.T) {
	tests := []struct {
		prior, today, multiplier float64
		want                     bool
	}{
		{1000, 2000, 2.0, true}, // inclusive boundary
		{1000, 1999, 2.0, false},
		{1000, 5000, 2.0, true},
		{0, 500, 2.0, false},
		{-10, 500, 2.0, false},
		{1000, 0, 2.0, false},
		{1000, 1500, 1.5, true},
	}
	for _, tt := range tests {
		got := VolumeAnomaly(tt.today, tt.prior, tt.multiplier)
		assert.Equal(t, tt.want, got, "prior=%.0f today=%.0f x%.1f", tt.prior, tt.today, tt.multiplier)
	}
}

func TestVolumeAnomalyFromBars(t *testing.T) {
	assert.False(t, VolumeAnomalyFromBars(nil, 2))
	assert.False(t, VolumeAnomalyFromBars([]model.PriceBar{bar(0, 1, 1, 1, 100)}, 2))

	bars := []model.PriceBar{
		bar(0, 1, 1, 1, 9999),
		bar(1, 1, 1, 1, 1000),
		bar(2, 1, 1, 1, 2000),
	}
	assert.True(t, VolumeAnomalyFromBars(bars, 2))
	assert.False(t, VolumeAnomalyFromBars(bars, 2.5))
}
