package model

import "time"

// Action is the advisory outcome for one instrument.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionNone Action = "none"
)

// Valuation is the PE classification.
type Valuation string

const (
	Undervalued          Valuation = "undervalued"
	Overvalued           Valuation = "overvalued"
	Neutral              Valuation = "neutral"
	ValuationUnavailable Valuation = "unavailable"
)

// DecisionStatus records how complete the inputs of a decision were.
type DecisionStatus string

const (
	StatusEvaluated           DecisionStatus = "evaluated"
	StatusInsufficientHistory DecisionStatus = "insufficient_history"
	StatusDataUnavailable     DecisionStatus = "data_unavailable"
)

// AdvisoryDecision is the combined output for one instrument.
type AdvisoryDecision struct {
	InstrumentID  string         `json:"instrument_id"`
	Name          string         `json:"name"`
	Action        Action         `json:"action"`
	PERatio       float64        `json:"pe_ratio"`
	PEAvailable   bool           `json:"pe_available"`
	Valuation     Valuation      `json:"valuation"`
	J             float64        `json:"j"`
	JDefined      bool           `json:"j_defined"`
	PrevJ         float64        `json:"prev_j"`
	PrevJDefined  bool           `json:"prev_j_defined"`
	VolumeAnomaly bool           `json:"volume_anomaly"`
	Status        DecisionStatus `json:"status"`
	Reason        string         `json:"reason,omitempty"`
}

// IsSignal reports whether the decision is a buy or sell.
func (d AdvisoryDecision) IsSignal() bool {
	return d.Action == ActionBuy || d.Action == ActionSell
}

// InstrumentFailure describes an instrument dropped from the batch.
type InstrumentFailure struct {
	InstrumentID string `json:"instrument_id"`
	Kind         string `json:"kind"`
	Error        string `json:"error"`
}

// RunSummary aggregates the outcome of one batch run.
type RunSummary struct {
	Total               int                 `json:"total"`
	Buy                 int                 `json:"buy"`
	Sell                int                 `json:"sell"`
	None                int                 `json:"none"`
	InsufficientHistory int                 `json:"insufficient_history"`
	DataUnavailable     int                 `json:"data_unavailable"`
	InvalidInput        int                 `json:"invalid_input"`
	Failures            []InstrumentFailure `json:"failures,omitempty"`
	Duration            time.Duration       `json:"duration"`
}

// AdvisoryBatch is what a run hands to formatting, delivery and storage.
type AdvisoryBatch struct {
	AsOf        time.Time          `json:"as_of"`
	Skipped     bool               `json:"skipped"`
	SkipReason  string             `json:"skip_reason,omitempty"`
	SignalMode  string             `json:"signal_mode"`
	Decisions   []AdvisoryDecision `json:"decisions"`
	Summary     RunSummary         `json:"summary"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Signals returns the buy and sell decisions in batch order.
func (b *AdvisoryBatch) Signals() (buys, sells []AdvisoryDecision) {
	for _, d := range b.Decisions {
		switch d.Action {
		case ActionBuy:
			buys = append(buys, d)
		case ActionSell:
			sells = append(sells, d)
		}
	}
	return buys, sells
}
