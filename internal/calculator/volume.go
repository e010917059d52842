package calculator

import "StockSentinel/internal/model"

// DefaultVolumeMultiplier flags a day trading at least twice the prior day's volume.
const DefaultVolumeMultiplier = 2.0

// VolumeAnomaly reports whether today's volume is at least multiplier times
// the prior trading day's. A zero or unknown prior volume is never an anomaly.
func VolumeAnomaly(today, prior, multiplier float64) bool {
	if prior <= 0 || today <= 0 {
		return false
	}
	return today >= multiplier*prior
}

// VolumeAnomalyFromBars applies VolumeAnomaly to the last two bars.
func VolumeAnomalyFromBars(bars []model.PriceBar, multiplier float64) bool {
	if len(bars) < 2 {
		return false
	}
	vols := extractVolumes(bars[len(bars)-2:])
	return VolumeAnomaly(vols[1], vols[0], multiplier)
}
