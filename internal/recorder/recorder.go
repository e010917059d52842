package recorder

import (
	"context"

	"StockSentinel/internal/model"
)

// Recorder persists advisory batches for later review.
type Recorder interface {
	RecordBatch(ctx context.Context, batch *model.AdvisoryBatch) error
	// LastBatch returns the most recently recorded batch, or nil when none exists.
	LastBatch(ctx context.Context) (*model.AdvisoryBatch, error)
	Close() error
}

// Emitter adapts a Recorder to the pipeline's emitter contract.
type Emitter struct {
	Recorder Recorder
}

func (e Emitter) Name() string { return "recorder" }

func (e Emitter) Emit(ctx context.Context, batch *model.AdvisoryBatch) error {
	return e.Recorder.RecordBatch(ctx, batch)
}
