package strategy

import (
	"fmt"

	"StockSentinel/internal/model"
)

// Inputs is everything the combiner needs for one instrument.
// Oscillator is nil when history was insufficient; Previous is the prior
// day's reading and only matters in crossover mode.
type Inputs struct {
	Instrument    model.Instrument
	Oscillator    *model.OscillatorState
	Previous      *model.OscillatorState
	Valuation     model.ValuationRecord
	VolumeAnomaly bool
}

// Combine merges momentum, valuation and volume into one decision.
// Both legs are required for a trade signal; it never fails.
func Combine(in Inputs, cfg Config) model.AdvisoryDecision {
	val := Classify(in.Valuation, cfg)

	dec := model.AdvisoryDecision{
		InstrumentID:  in.Instrument.ID,
		Name:          in.Instrument.Name,
		Action:        model.ActionNone,
		Valuation:     val,
		VolumeAnomaly: in.VolumeAnomaly,
		Status:        model.StatusEvaluated,
	}
	if dec.Name == "" {
		dec.Name = in.Valuation.Name
	}
	if val != model.ValuationUnavailable {
		dec.PERatio = in.Valuation.PERatio
		dec.PEAvailable = true
	}
	if in.Previous != nil {
		dec.PrevJ = in.Previous.J
		dec.PrevJDefined = true
	}

	if in.Oscillator == nil {
		dec.Status = model.StatusInsufficientHistory
		dec.Reason = "oscillator undefined"
		return dec
	}
	dec.J = in.Oscillator.J
	dec.JDefined = true

	if val == model.ValuationUnavailable {
		dec.Reason = "pe unavailable"
		return dec
	}

	oversold, overbought := momentum(in, cfg)
	switch {
	case oversold && val == model.Undervalued:
		dec.Action = model.ActionBuy
		dec.Reason = fmt.Sprintf("J %.2f < %.0f and PE %.2f < %.0f", dec.J, cfg.BuyJ, dec.PERatio, cfg.BuyPE)
	case overbought && val == model.Overvalued:
		dec.Action = model.ActionSell
		dec.Reason = fmt.Sprintf("J %.2f > %.0f and PE %.2f > %.0f", dec.J, cfg.SellJ, dec.PERatio, cfg.SellPE)
	}
	return dec
}

// momentum evaluates the J leg according to the signal mode.
// J is compared at full precision; display rounding never moves a boundary.
func momentum(in Inputs, cfg Config) (oversold, overbought bool) {
	j := in.Oscillator.J
	if cfg.SignalMode != ModeCrossover {
		return j < cfg.BuyJ, j > cfg.SellJ
	}
	if in.Previous == nil {
		return false, false
	}
	prev := in.Previous.J
	return prev > cfg.BuyJ && j < cfg.BuyJ, prev < cfg.SellJ && j > cfg.SellJ
}
