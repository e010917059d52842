package strategy

import (
	"math"

	"StockSentinel/internal/model"
)

// Classify maps a PE ratio onto the valuation bands.
// PE below BuyPE is undervalued, above SellPE overvalued. Missing, negative or
// non-finite figures are unavailable and never treated as a number.
func Classify(rec model.ValuationRecord, cfg Config) model.Valuation {
	if !rec.Available {
		return model.ValuationUnavailable
	}
	pe := rec.PERatio
	if math.IsNaN(pe) || math.IsInf(pe, 0) || pe < 0 {
		return model.ValuationUnavailable
	}
	switch {
	case pe < cfg.BuyPE:
		return model.Undervalued
	case pe > cfg.SellPE:
		return model.Overvalued
	default:
		return model.Neutral
	}
}
