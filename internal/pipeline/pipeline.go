package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"StockSentinel/internal/calculator"
	"StockSentinel/internal/collector"
	"StockSentinel/internal/logger"
	"StockSentinel/internal/model"
	"StockSentinel/internal/strategy"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("run already in progress")

// Failure kinds recorded in the run summary.
const (
	FailureInvalidInput = "invalid_input"
	FailurePanic        = "panic"
)

const progressEvery = 25

// Emitter receives every finished batch.
type Emitter interface {
	Name() string
	Emit(ctx context.Context, batch *model.AdvisoryBatch) error
}

// EmitObserver is told about emitter failures.
type EmitObserver interface {
	EmitFailed(emitter string)
}

// Runner evaluates the instrument universe for one trading day.
type Runner struct {
	History     collector.HistorySource
	Valuations  collector.ValuationSource
	Calendar    collector.Calendar
	Universe    collector.UniverseSource
	Instruments []string
	Strategy    strategy.Config
	HistoryDays int
	Concurrency int
	Location    *time.Location
	Emitters    []Emitter
	Observer    EmitObserver
	Log         *logger.Logger
	Now         func() time.Time

	running atomic.Bool
}

func (r *Runner) log() *logger.Logger {
	if r.Log == nil {
		return logger.Nop()
	}
	return r.Log
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Day truncates t to the exchange-local calendar day.
func (r *Runner) Day(t time.Time) time.Time {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Run checks the calendar, evaluates the universe and hands the batch to
// every emitter. Emitter errors are joined into the returned error; the batch
// is returned regardless.
func (r *Runner) Run(ctx context.Context, asOf time.Time) (*model.AdvisoryBatch, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	batch, err := r.Build(ctx, asOf)
	if err != nil {
		return nil, err
	}
	return batch, r.emit(ctx, batch)
}

// Build produces the batch for asOf without emitting it.
func (r *Runner) Build(ctx context.Context, asOf time.Time) (*model.AdvisoryBatch, error) {
	asOf = r.Day(asOf)
	log := r.log().With(logger.String("as_of", model.DateKey(asOf)))

	if r.Calendar != nil {
		open, err := r.Calendar.IsTradingDay(ctx, asOf)
		if err != nil {
			return nil, fmt.Errorf("trading calendar: %w", err)
		}
		if !open {
			reason := "market closed"
			if n, ok := r.Calendar.(collector.ClosureNamer); ok {
				if s := n.ClosureReason(ctx, asOf); s != "" {
					reason = s
				}
			}
			log.Info("market closed, skipping run", logger.String("reason", reason))
			return &model.AdvisoryBatch{
				AsOf:        asOf,
				Skipped:     true,
				SkipReason:  reason,
				SignalMode:  r.Strategy.SignalMode,
				GeneratedAt: r.now(),
			}, nil
		}
	}

	instruments, err := r.universe(ctx, asOf)
	if err != nil {
		return nil, err
	}
	log.Info("running daily evaluation", logger.Int("instruments", len(instruments)))
	return r.Evaluate(ctx, asOf, instruments)
}

func (r *Runner) universe(ctx context.Context, asOf time.Time) ([]model.Instrument, error) {
	if len(r.Instruments) > 0 {
		out := make([]model.Instrument, len(r.Instruments))
		for i, id := range r.Instruments {
			out[i] = model.Instrument{ID: id}
		}
		return out, nil
	}
	if r.Universe == nil {
		return nil, errors.New("no instruments configured and no universe source")
	}
	list, err := r.Universe.Instruments(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}
	return list, nil
}

type outcome struct {
	decision *model.AdvisoryDecision
	failure  *model.InstrumentFailure
}

// Evaluate runs every instrument through the engine on a bounded worker pool.
// Decisions keep the order of instruments.
func (r *Runner) Evaluate(ctx context.Context, asOf time.Time, instruments []model.Instrument) (*model.AdvisoryBatch, error) {
	start := time.Now()
	asOf = r.Day(asOf)
	log := r.log()

	workers := r.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(instruments) && len(instruments) > 0 {
		workers = len(instruments)
	}

	results := make([]outcome, len(instruments))
	jobs := make(chan int)
	var done atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.safeEvaluate(ctx, instruments[i], asOf)
				if n := done.Add(1); n%progressEvery == 0 {
					log.Info("progress", logger.Int("done", int(n)), logger.Int("total", len(instruments)))
				}
			}
		}()
	}
feed:
	for i := range instruments {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("evaluation interrupted: %w", err)
	}

	batch := &model.AdvisoryBatch{
		AsOf:       asOf,
		SignalMode: r.Strategy.SignalMode,
		Decisions:  make([]model.AdvisoryDecision, 0, len(instruments)),
	}
	batch.Summary.Total = len(instruments)
	for _, res := range results {
		if res.failure != nil {
			batch.Summary.Failures = append(batch.Summary.Failures, *res.failure)
			if res.failure.Kind == FailureInvalidInput {
				batch.Summary.InvalidInput++
			}
			continue
		}
		d := *res.decision
		batch.Decisions = append(batch.Decisions, d)
		switch d.Action {
		case model.ActionBuy:
			batch.Summary.Buy++
		case model.ActionSell:
			batch.Summary.Sell++
		default:
			batch.Summary.None++
		}
		switch d.Status {
		case model.StatusInsufficientHistory:
			batch.Summary.InsufficientHistory++
		case model.StatusDataUnavailable:
			batch.Summary.DataUnavailable++
		}
	}
	batch.Summary.Duration = time.Since(start)
	batch.GeneratedAt = r.now()

	log.Info("evaluation finished",
		logger.Int("total", batch.Summary.Total),
		logger.Int("buy", batch.Summary.Buy),
		logger.Int("sell", batch.Summary.Sell),
		logger.Int("insufficient_history", batch.Summary.InsufficientHistory),
		logger.Int("data_unavailable", batch.Summary.DataUnavailable),
		logger.Int("failures", len(batch.Summary.Failures)),
		logger.Duration("took", batch.Summary.Duration))
	return batch, nil
}

func (r *Runner) safeEvaluate(ctx context.Context, inst model.Instrument, asOf time.Time) (out outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.log().Error("instrument evaluation panicked",
				logger.String("instrument", inst.ID),
				logger.Any("panic", p),
				logger.String("stack", string(debug.Stack())))
			out = outcome{failure: &model.InstrumentFailure{
				InstrumentID: inst.ID,
				Kind:         FailurePanic,
				Error:        fmt.Sprint(p),
			}}
		}
	}()
	return r.evaluate(ctx, inst, asOf)
}

func (r *Runner) evaluate(ctx context.Context, inst model.Instrument, asOf time.Time) outcome {
	log := r.log().With(logger.String("instrument", inst.ID))
	cfg := r.Strategy

	rec, valErr := r.Valuations.Valuation(ctx, inst.ID, asOf)
	if valErr != nil {
		rec = model.UnavailableValuation(inst.ID, asOf)
	}
	unavailable := func(reason string) outcome {
		d := strategy.Combine(strategy.Inputs{Instrument: inst, Valuation: rec}, cfg)
		d.Status = model.StatusDataUnavailable
		d.Reason = reason
		log.Debug("data unavailable", logger.String("reason", reason))
		return outcome{decision: &d}
	}
	invalid := func(err error) outcome {
		log.Warn("invalid price history, instrument skipped", logger.Error(err))
		return outcome{failure: &model.InstrumentFailure{InstrumentID: inst.ID, Kind: FailureInvalidInput, Error: err.Error()}}
	}

	bars, err := r.History.PriceHistory(ctx, inst.ID, asOf, r.HistoryDays)
	if err != nil {
		if errors.Is(err, model.ErrInvalidInput) {
			return invalid(err)
		}
		return unavailable(err.Error())
	}
	if len(bars) == 0 {
		return unavailable("no price history")
	}
	if err := calculator.ValidateBars(bars); err != nil {
		return invalid(err)
	}
	if last := bars[len(bars)-1].Date; !model.SameDay(asOf, last) {
		return unavailable(fmt.Sprintf("latest bar is %s", model.DateKey(last)))
	}

	var osc, prev *model.OscillatorState
	series, err := calculator.KDJSeries(bars, cfg.OscillatorWindow)
	switch {
	case err == nil:
		osc = &series[len(series)-1]
		if len(series) > 1 {
			prev = &series[len(series)-2]
		}
	case errors.Is(err, model.ErrInsufficientHistory):
	default:
		return invalid(err)
	}

	d := strategy.Combine(strategy.Inputs{
		Instrument:    inst,
		Oscillator:    osc,
		Previous:      prev,
		Valuation:     rec,
		VolumeAnomaly: calculator.VolumeAnomalyFromBars(bars, cfg.VolumeMultiplier),
	}, cfg)
	if valErr != nil {
		d.Action = model.ActionNone
		d.Status = model.StatusDataUnavailable
		d.Reason = valErr.Error()
	}
	if d.IsSignal() {
		log.Info("signal", logger.String("action", string(d.Action)), logger.Float("j", d.J), logger.Float("pe", d.PERatio))
	}
	return outcome{decision: &d}
}

func (r *Runner) emit(ctx context.Context, batch *model.AdvisoryBatch) error {
	var errs []error
	for _, e := range r.Emitters {
		if err := e.Emit(ctx, batch); err != nil {
			r.log().Error("emit failed", logger.String("emitter", e.Name()), logger.Error(err))
			if r.Observer != nil {
				r.Observer.EmitFailed(e.Name())
			}
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
		}
	}
	return errors.Join(errs...)
}
