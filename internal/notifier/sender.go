package notifier

import (
	"context"
	"fmt"
	"time"

	"StockSentinel/internal/logger"
	"StockSentinel/internal/model"
	"StockSentinel/internal/strategy"
)

// Sender delivers a text message to one channel.
type Sender interface {
	Send(ctx context.Context, text string) error
	Name() string
}

// retryBase is the first backoff interval; it doubles per attempt.
var retryBase = time.Second

// SendWithRetry sends a message with exponential backoff retry.
func SendWithRetry(ctx context.Context, s Sender, text string, maxRetries int, log *logger.Logger) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		err := s.Send(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == maxRetries {
			break
		}
		backoff := retryBase * time.Duration(1<<uint(i))
		log.Warn("send failed, retrying",
			logger.String("channel", s.Name()),
			logger.Int("attempt", i+1),
			logger.Int("max", maxRetries+1),
			logger.Duration("backoff", backoff),
			logger.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%s: all %d attempts failed: %w", s.Name(), maxRetries+1, lastErr)
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	Log *logger.Logger
}

func (l LogSender) Name() string { return "log" }

func (l LogSender) Send(_ context.Context, text string) error {
	l.Log.Info("notification", logger.String("text", text))
	return nil
}

// Dispatcher formats batches and hands them to a Sender.
type Dispatcher struct {
	Sender         Sender
	Strategy       strategy.Config
	Retries        int
	QuietOnHoliday bool
	Log            *logger.Logger
}

func (d *Dispatcher) Name() string { return "notifier:" + d.Sender.Name() }

// Emit sends the batch notification. A run with no advice still sends a message.
func (d *Dispatcher) Emit(ctx context.Context, batch *model.AdvisoryBatch) error {
	if batch.Skipped && d.QuietOnHoliday {
		return nil
	}
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	if err := SendWithRetry(ctx, d.Sender, FormatBatch(batch, d.Strategy), d.Retries, log); err != nil {
		return err
	}
	log.Info("notification sent", logger.String("channel", d.Sender.Name()))
	return nil
}
