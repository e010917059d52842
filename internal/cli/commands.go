package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"StockSentinel/internal/app"
	"StockSentinel/internal/config"
	"StockSentinel/internal/logger"
	"StockSentinel/internal/notifier"
	"StockSentinel/internal/scheduler"
)

// Version is set at build time.
var Version = "dev"

type globalFlags struct {
	configPath string
	logLevel   string
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "sentinel",
		Short:         "StockSentinel - daily KDJ and PE advisories for listed stocks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", defaultPath, "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(newRunCmd(flags))
	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newNotifyTestCmd(flags))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// setup loads and validates config and builds the logger.
func setup(flags *globalFlags, dryRun bool) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if dryRun {
		cfg.Notify.Channel = "log"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		date   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate the universe once and deliver the advisories",
		Long: `Run one daily evaluation: check the trading calendar, compute KDJ and PE
signals for every instrument and deliver the batch to the recorder, notifier,
metrics and (when enabled) Kafka.
Example: sentinel run --date=2025-10-01 --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(flags, dryRun)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			asOf := time.Now().In(cfg.Location())
			if date != "" {
				asOf, err = time.ParseInLocation("2006-01-02", date, cfg.Location())
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
			}

			a, err := app.New(ctx, cfg, log, app.Options{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer a.Close()

			batch, err := a.Runner.Run(ctx, asOf)
			a.PushMetrics(ctx)
			if batch == nil {
				return err
			}
			if err != nil {
				return fmt.Errorf("batch delivered with errors: %w", err)
			}
			s := batch.Summary
			log.Info("run complete",
				logger.Bool("skipped", batch.Skipped),
				logger.Int("buy", s.Buy),
				logger.Int("sell", s.Sell),
				logger.Int("total", s.Total),
				logger.Duration("took", s.Duration))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Evaluation date in YYYY-MM-DD format (today if not provided)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log the notification instead of sending it and skip Kafka")
	return cmd
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var runOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daily schedule, chat commands and metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(flags, false)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := app.New(ctx, cfg, log, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			sched := scheduler.NewScheduler(ctx, a.Runner, a.Recorder, a.Sender, cfg.Strategy, cfg.Location(), log)
			sched.Retries = cfg.Notify.Retries
			sched.AfterRun = a.PushMetrics
			if err := sched.Register(cfg.Schedule.DailyCron); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			if a.Telegram != nil && cfg.Notify.Telegram.Polling {
				go a.Telegram.StartPolling(ctx, sched.HandleCommand, log)
				log.Info("telegram polling started")
			}

			if addr := cfg.Metrics.ListenAddr; addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", a.Metrics.Handler())
				mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusOK)
				})
				srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("metrics server failed", logger.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
					defer done()
					_ = srv.Shutdown(shutdownCtx)
				}()
				log.Info("metrics endpoint listening", logger.String("addr", addr))
			}

			if runOnStart || os.Getenv("RUN_ON_START") == "true" {
				log.Info("run on start enabled, executing daily task now")
				sched.RunInBackground()
			}

			log.Info("StockSentinel is running, press Ctrl+C to stop", logger.String("cron", cfg.Schedule.DailyCron))
			<-ctx.Done()
			log.Info("shutdown signal received, stopping")
			return nil
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Execute the daily task immediately after starting")
	return cmd
}

func newNotifyTestCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test message through the configured channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(flags, false)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := app.New(ctx, cfg, log, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := notifier.SendWithRetry(ctx, a.Sender, notifier.TestMessage, cfg.Notify.Retries, log); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "test message sent via %s\n", a.Sender.Name())
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sentinel %s\n", Version)
		},
	}
}
