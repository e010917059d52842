package recorder

import (
	"context"
	"sync"

	"StockSentinel/internal/model"
)

// NoopRecorder is used when SQLite is not configured. It keeps only the last
// batch in memory so /last still answers.
type NoopRecorder struct {
	mu   sync.Mutex
	last *model.AdvisoryBatch
}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordBatch(_ context.Context, batch *model.AdvisoryBatch) error {
	n.mu.Lock()
	n.last = batch
	n.mu.Unlock()
	return nil
}

func (n *NoopRecorder) LastBatch(_ context.Context) (*model.AdvisoryBatch, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last, nil
}

func (n *NoopRecorder) Close() error { return nil }
