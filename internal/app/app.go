package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StockSentinel/internal/collector"
	"StockSentinel/internal/config"
	"StockSentinel/internal/logger"
	"StockSentinel/internal/metrics"
	"StockSentinel/internal/notifier"
	"StockSentinel/internal/pipeline"
	"StockSentinel/internal/publisher"
	"StockSentinel/internal/recorder"
)

// Options adjust how the application is assembled.
type Options struct {
	// DryRun delivers notifications to the log and skips Kafka.
	DryRun bool
}

// App holds the wired components.
type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Runner   *pipeline.Runner
	Sender   notifier.Sender
	Telegram *notifier.TelegramNotifier
	Recorder recorder.Recorder
	Metrics  *metrics.Recorder

	closers []func() error
}

// New wires sources, engine and emitters from cfg.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}
	loc := cfg.Location()
	client := collector.ClientOptions{Timeout: cfg.DataSource.Timeout, Proxy: cfg.Proxy, Log: log}

	var history collector.HistorySource
	if cfg.DataSource.BaseURL != "" {
		history = collector.NewRESTHistory(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, client, loc)
	} else {
		history = collector.NewYahooHistory(client, cfg.Universe.MarketSuffix, loc)
	}
	log.Info("data source", logger.String("name", history.Name()))
	history = collector.NewRateLimitedHistory(history, cfg.DataSource.RateLimit)

	if cfg.Redis.Enabled {
		cache := collector.NewRedisCache(collector.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := cache.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Warn("redis unreachable, history cache disabled", logger.String("addr", cfg.Redis.Addr), logger.Error(err))
			_ = cache.Close()
		} else {
			history = collector.NewCachedHistory(history, cache, cfg.Redis.TTL, cfg.Redis.Prefix, log)
			a.closers = append(a.closers, cache.Close)
		}
	}

	valuations := collector.NewTWSEValuation(cfg.Valuation.URL, client)
	calendar := collector.NewTradingCalendar(collector.CalendarOptions{
		FeedURL:         cfg.Calendar.HolidayURL,
		Holidays:        cfg.Calendar.Holidays,
		WorkingHolidays: cfg.Calendar.WorkingHolidays,
		Location:        loc,
		Client:          client,
	}, log)

	a.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn("init sqlite recorder failed, using noop", logger.Error(err))
		} else {
			a.Recorder = sr
		}
	}
	a.closers = append(a.closers, a.Recorder.Close)

	sender, err := a.buildSender(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sender = sender

	emitters := []pipeline.Emitter{
		recorder.Emitter{Recorder: a.Recorder},
		a.Metrics,
		&notifier.Dispatcher{
			Sender:         sender,
			Strategy:       cfg.Strategy,
			Retries:        cfg.Notify.Retries,
			QuietOnHoliday: cfg.Notify.QuietOnHoliday,
			Log:            log,
		},
	}
	if cfg.Kafka.Enabled && !opts.DryRun {
		pub, err := publisher.New(publisher.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		emitters = append(emitters, pub)
		a.closers = append(a.closers, pub.Close)
	}

	a.Runner = &pipeline.Runner{
		History:     history,
		Valuations:  valuations,
		Calendar:    calendar,
		Universe:    valuations,
		Instruments: cfg.Universe.Instruments,
		Strategy:    cfg.Strategy,
		HistoryDays: cfg.DataSource.HistoryDays,
		Concurrency: cfg.Concurrency,
		Location:    loc,
		Emitters:    emitters,
		Observer:    a.Metrics,
		Log:         log,
	}
	return a, nil
}

func (a *App) buildSender(opts Options) (notifier.Sender, error) {
	cfg := a.Config
	if opts.DryRun {
		return notifier.LogSender{Log: a.Log}, nil
	}
	switch cfg.Notify.Channel {
	case "line":
		client := collector.NewClient(collector.ClientOptions{Timeout: 10 * time.Second, Proxy: cfg.Proxy, Log: a.Log})
		return notifier.NewLineNotifier(client, cfg.Notify.Line.APIURL, cfg.Notify.Line.Token, cfg.Notify.Line.UserID), nil
	case "telegram":
		// getUpdates holds the connection for up to 30s.
		client := collector.NewClient(collector.ClientOptions{Timeout: 40 * time.Second, Proxy: cfg.Proxy, Log: a.Log})
		a.Telegram = notifier.NewTelegramNotifier(client, cfg.Notify.Telegram.APIURL, cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
		return a.Telegram, nil
	case "log":
		return notifier.LogSender{Log: a.Log}, nil
	default:
		return nil, fmt.Errorf("unknown notify channel %q", cfg.Notify.Channel)
	}
}

// PushMetrics sends run metrics to the configured Pushgateway, if any.
func (a *App) PushMetrics(ctx context.Context) {
	url := a.Config.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	if err := a.Metrics.Push(ctx, url, a.Config.Metrics.Job); err != nil {
		a.Log.Warn("push metrics failed", logger.Error(err))
	}
}

// Close releases every resource opened by New, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
