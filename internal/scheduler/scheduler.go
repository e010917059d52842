package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"StockSentinel/internal/logger"
	"StockSentinel/internal/model"
	"StockSentinel/internal/notifier"
	"StockSentinel/internal/pipeline"
	"StockSentinel/internal/recorder"
	"StockSentinel/internal/strategy"
)

// Runner executes one daily evaluation.
type Runner interface {
	Run(ctx context.Context, asOf time.Time) (*model.AdvisoryBatch, error)
}

// Scheduler owns the daily cron job and answers chat commands.
type Scheduler struct {
	Cron     *cron.Cron
	Runner   Runner
	Recorder recorder.Recorder
	Notifier notifier.Sender
	Strategy strategy.Config
	Retries  int
	Log      *logger.Logger
	Ctx      context.Context
	Now      func() time.Time
	// AfterRun, when set, is called after every run that produced a batch.
	AfterRun func(ctx context.Context)

	wg sync.WaitGroup
}

// NewScheduler creates a Scheduler whose cron expressions are read in loc.
func NewScheduler(ctx context.Context, runner Runner, rec recorder.Recorder, sender notifier.Sender, cfg strategy.Config, loc *time.Location, log *logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		Runner:   runner,
		Recorder: rec,
		Notifier: sender,
		Strategy: cfg,
		Retries:  3,
		Log:      log,
		Ctx:      ctx,
		Now:      time.Now,
	}
}

// Register adds the daily evaluation job.
func (s *Scheduler) Register(dailyCron string) error {
	if _, err := s.Cron.AddFunc(dailyCron, s.dailyTask); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.wg.Wait()
	s.Log.Info("scheduler stopped")
}

// RunNow executes the daily task immediately.
func (s *Scheduler) RunNow() {
	s.dailyTask()
}

// RunInBackground starts the daily task on its own goroutine. Stop waits for it.
func (s *Scheduler) RunInBackground() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dailyTask()
	}()
}

func (s *Scheduler) dailyTask() {
	s.Log.Info("running daily task")
	batch, err := s.Runner.Run(s.Ctx, s.Now())
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.Log.Warn("daily task skipped, previous run still active")
	case err != nil && batch == nil:
		s.Log.Error("daily run failed", logger.Error(err))
		s.trySend(fmt.Sprintf("❌ 每日分析失敗: %v", err))
	case err != nil:
		s.Log.Warn("daily run finished with delivery errors", logger.Error(err))
	}
	if batch != nil && s.AfterRun != nil {
		s.AfterRun(s.Ctx)
	}
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	var cmd string
	if fields := strings.Fields(command); len(fields) > 0 {
		cmd = strings.ToLower(fields[0])
	}
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/run", "執行分析":
		s.RunInBackground()
		return "⏳ 開始執行分析，完成後會發送結果"
	case "/last", "最新結果":
		batch, err := s.Recorder.LastBatch(ctx)
		if err != nil {
			s.Log.Error("load last batch", logger.Error(err))
			return fmt.Sprintf("❌ 讀取紀錄失敗: %v", err)
		}
		return notifier.FormatSummary(batch)
	case "/config", "參數設定":
		return notifier.FormatConfig(s.Strategy)
	default:
		return "可用命令:\n• /run 執行分析\n• /last 最新結果\n• /config 參數設定"
	}
}

// Wait blocks until command-triggered runs finish.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := notifier.SendWithRetry(s.Ctx, s.Notifier, text, s.Retries, s.Log); err != nil {
		s.Log.Error("send notification", logger.Error(err))
	}
}
