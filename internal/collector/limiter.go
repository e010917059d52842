package collector

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"StockSentinel/internal/model"
)

// RateLimitedHistory spaces out requests to an upstream history source.
type RateLimitedHistory struct {
	next    HistorySource
	limiter *rate.Limiter
}

// NewRateLimitedHistory allows perSecond requests with a burst of one.
func NewRateLimitedHistory(next HistorySource, perSecond float64) *RateLimitedHistory {
	return &RateLimitedHistory{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (r *RateLimitedHistory) Name() string { return r.next.Name() }

func (r *RateLimitedHistory) PriceHistory(ctx context.Context, id string, through time.Time, days int) ([]model.PriceBar, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit %s: %w: %w", id, model.ErrDataUnavailable, err)
	}
	return r.next.PriceHistory(ctx, id, through, days)
}
