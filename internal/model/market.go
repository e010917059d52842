package model

import "time"

// PriceBar represents a single daily candlestick bar.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Instrument identifies a tracked security.
type Instrument struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DateKey formats a calendar day the way it is stored and cached.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// SameDay reports whether a and b fall on the same calendar day in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
