package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"StockSentinel/internal/model"
)

// MemorySource serves fixed history and valuations for development and tests.
type MemorySource struct {
	mu         sync.Mutex
	History    map[string][]model.PriceBar
	Valuations map[string]model.ValuationRecord
	Errors     map[string]error
	Calls      map[string]int
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		History:    make(map[string][]model.PriceBar),
		Valuations: make(map[string]model.ValuationRecord),
		Errors:     make(map[string]error),
		Calls:      make(map[string]int),
	}
}

func (m *MemorySource) Name() string { return "memory" }

func (m *MemorySource) PriceHistory(_ context.Context, id string, through time.Time, days int) ([]model.PriceBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[id]++
	if err := m.Errors[id]; err != nil {
		return nil, err
	}
	bars, ok := m.History[id]
	if !ok {
		return nil, fmt.Errorf("memory %s: %w", id, model.ErrDataUnavailable)
	}
	out := make([]model.PriceBar, len(bars))
	copy(out, bars)
	return trimThrough(out, through, days), nil
}

func (m *MemorySource) Valuation(_ context.Context, id string, asOf time.Time) (model.ValuationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.Valuations[id]
	if !ok {
		return model.UnavailableValuation(id, asOf), nil
	}
	return rec, nil
}

// StaticCalendar is a Calendar with a fixed set of closed days.
type StaticCalendar struct {
	Closed map[string]string // DateKey -> reason
}

func (s StaticCalendar) IsTradingDay(_ context.Context, date time.Time) (bool, error) {
	_, closed := s.Closed[model.DateKey(date)]
	return !closed, nil
}

func (s StaticCalendar) ClosureReason(_ context.Context, date time.Time) string {
	return s.Closed[model.DateKey(date)]
}

// GenerateBars builds count ascending daily bars ending at end, oscillating around base.
func GenerateBars(base float64, count int, end time.Time) []model.PriceBar {
	bars := make([]model.PriceBar, count)
	for i := 0; i < count; i++ {
		p := base * (1 + float64(i-count/2)*0.001)
		bars[i] = model.PriceBar{
			Date:   end.AddDate(0, 0, -(count - 1 - i)),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}
