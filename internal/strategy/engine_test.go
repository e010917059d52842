package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"StockSentinel/internal/model"
)

func osc(j float64) *model.OscillatorState {
	return &model.OscillatorState{J: j}
}

func pe(v float64) model.ValuationRecord {
	return model.ValuationRecord{InstrumentID: "2330", PERatio: v, Available: true}
}

func TestCombine_DecisionTable(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name   string
		osc    *model.OscillatorState
		val    model.ValuationRecord
		want   model.Action
		status model.DecisionStatus
	}{
		{"oversold and cheap", osc(5), pe(15), model.ActionBuy, model.StatusEvaluated},
		{"overbought and expensive", osc(95), pe(50), model.ActionSell, model.StatusEvaluated},
		{"oversold but not undervalued", osc(5), pe(25), model.ActionNone, model.StatusEvaluated},
		{"oversold pe unavailable", osc(5), model.UnavailableValuation("2330", time.Time{}), model.ActionNone, model.StatusEvaluated},
		{"insufficient history cheap", nil, pe(15), model.ActionNone, model.StatusInsufficientHistory},
		{"overbought but cheap", osc(95), pe(15), model.ActionNone, model.StatusEvaluated},
		{"oversold but expensive", osc(5), pe(50), model.ActionNone, model.StatusEvaluated},
		{"neutral momentum cheap", osc(50), pe(15), model.ActionNone, model.StatusEvaluated},
		{"J exactly at buy threshold", osc(10), pe(15), model.ActionNone, model.StatusEvaluated},
		{"J exactly at sell threshold", osc(90), pe(50), model.ActionNone, model.StatusEvaluated},
		{"negative J cheap", osc(-12), pe(3), model.ActionBuy, model.StatusEvaluated},
		{"J above 100 expensive", osc(112), pe(41), model.ActionSell, model.StatusEvaluated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := Combine(Inputs{
				Instrument: model.Instrument{ID: "2330", Name: "TSMC"},
				Oscillator: tt.osc,
				Valuation:  tt.val,
			}, cfg)
			assert.Equal(t, tt.want, dec.Action)
			assert.Equal(t, tt.status, dec.Status)
			assert.Equal(t, "2330", dec.InstrumentID)
		})
	}
}

func TestCombine_ComparesUnroundedJ(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, model.ActionBuy, Combine(Inputs{Oscillator: osc(9.996), Valuation: pe(15)}, cfg).Action)
	assert.Equal(t, model.ActionSell, Combine(Inputs{Oscillator: osc(90.004), Valuation: pe(50)}, cfg).Action)
	assert.Equal(t, model.ActionNone, Combine(Inputs{Oscillator: osc(10), Valuation: pe(15)}, cfg).Action)
}

func TestCombine_VolumeAnomalyIsMetadataOnly(t *testing.T) {
	cfg := DefaultConfig()

	dec := Combine(Inputs{Oscillator: osc(50), Valuation: pe(15), VolumeAnomaly: true}, cfg)
	assert.Equal(t, model.ActionNone, dec.Action)
	assert.True(t, dec.VolumeAnomaly)

	dec = Combine(Inputs{Oscillator: osc(5), Valuation: pe(15), VolumeAnomaly: true}, cfg)
	assert.Equal(t, model.ActionBuy, dec.Action)
	assert.True(t, dec.VolumeAnomaly)

	dec = Combine(Inputs{Oscillator: osc(5), Valuation: pe(15)}, cfg)
	assert.Equal(t, model.ActionBuy, dec.Action)
	assert.False(t, dec.VolumeAnomaly)
}

func TestCombine_UnavailablePEIsNotZero(t *testing.T) {
	dec := Combine(Inputs{Oscillator: osc(5), Valuation: model.ValuationRecord{PERatio: 0, Available: false}}, DefaultConfig())
	assert.Equal(t, model.ActionNone, dec.Action)
	assert.False(t, dec.PEAvailable)
	assert.Equal(t, model.ValuationUnavailable, dec.Valuation)
	assert.True(t, dec.JDefined)
}

func TestCombine_CustomThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BuyJ = 20
	cfg.BuyPE = 12

	assert.Equal(t, model.ActionBuy, Combine(Inputs{Oscillator: osc(15), Valuation: pe(11)}, cfg).Action)
	assert.Equal(t, model.ActionNone, Combine(Inputs{Oscillator: osc(15), Valuation: pe(15)}, cfg).Action)
	// the default config is untouched by the override above
	assert.Equal(t, model.ActionNone, Combine(Inputs{Oscillator: osc(15), Valuation: pe(11)}, DefaultConfig()).Action)
}

func TestCombine_CrossoverMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SignalMode = ModeCrossover

	tests := []struct {
		name      string
		prev, cur *model.OscillatorState
		val       model.ValuationRecord
		want      model.Action
	}{
		{"crossed down", osc(14), osc(6), pe(15), model.ActionBuy},
		{"already below", osc(8), osc(6), pe(15), model.ActionNone},
		{"crossed up", osc(85), osc(96), pe(55), model.ActionSell},
		{"already above", osc(93), osc(96), pe(55), model.ActionNone},
		{"no previous day", nil, osc(6), pe(15), model.ActionNone},
		{"crossed down but expensive", osc(14), osc(6), pe(45), model.ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := Combine(Inputs{Oscillator: tt.cur, Previous: tt.prev, Valuation: tt.val}, cfg)
			assert.Equal(t, tt.want, dec.Action)
		})
	}
}

func TestClassify(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		rec  model.ValuationRecord
		want model.Valuation
	}{
		{pe(0), model.Undervalued},
		{pe(19.99), model.Undervalued},
		{pe(20), model.Neutral},
		{pe(40), model.Neutral},
		{pe(40.01), model.Overvalued},
		{pe(-3), model.ValuationUnavailable},
		{pe(math.NaN()), model.ValuationUnavailable},
		{pe(math.Inf(1)), model.ValuationUnavailable},
		{model.ValuationRecord{PERatio: 10}, model.ValuationUnavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.rec, cfg), "pe=%v available=%v", tt.rec.PERatio, tt.rec.Available)
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.BuyJ = 95
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.BuyPE = 50
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.SignalMode = "momentum"
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.VolumeMultiplier = 0
	assert.Error(t, bad.Validate())
}
