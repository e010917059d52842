package model

import "time"

// OscillatorState is the KDJ reading for one trading day.
// K and D are in [0,100]; J = 3K-2D is unbounded.
type OscillatorState struct {
	RSV  float64   `json:"rsv"`
	K    float64   `json:"k"`
	D    float64   `json:"d"`
	J    float64   `json:"j"`
	AsOf time.Time `json:"as_of"`
}

// ValuationRecord carries a PE ratio as reported by the valuation feed.
// Available is false when the feed had no usable figure; PERatio is then meaningless.
type ValuationRecord struct {
	InstrumentID string    `json:"instrument_id"`
	Name         string    `json:"name"`
	PERatio      float64   `json:"pe_ratio"`
	Available    bool      `json:"available"`
	AsOf         time.Time `json:"as_of"`
}

// UnavailableValuation returns a record marked as having no PE figure.
func UnavailableValuation(id string, asOf time.Time) ValuationRecord {
	return ValuationRecord{InstrumentID: id, AsOf: asOf}
}
