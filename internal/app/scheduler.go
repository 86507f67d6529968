package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper одна проверка дедлайнов предложений
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepReport, error)
}

// Scheduler запускает проверку дедлайнов по cron расписанию
type Scheduler struct {
	sweeper Sweeper
	cron    *cron.Cron
	timeout time.Duration
	logger  *zap.Logger
}

// NewScheduler создаёт планировщик. schedule принимает cron выражения и @every.
func NewScheduler(sweeper Sweeper, schedule string, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		sweeper: sweeper,
		// Следующий запуск не начнётся, пока не закончился предыдущий
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: timeout,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start запускает фоновые задачи
func (s *Scheduler) Start() {
	s.logger.Info("Starting deadline sweeper", zap.Duration("timeout", s.timeout))
	s.cron.Start()
}

// Stop останавливает планировщик и ждёт текущий проход
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping deadline sweeper")
	<-s.cron.Stop().Done()
}

// RunOnce один проход с ограничением по времени
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	report, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("Deadline sweep failed", zap.Error(err))
		return
	}
	if report.Expired > 0 || report.Reminded > 0 || report.Urgent > 0 || report.Errors > 0 {
		s.logger.Info("Deadline sweep completed",
			zap.Int("checked", report.Checked),
			zap.Int("expired", report.Expired),
			zap.Int("reminded", report.Reminded),
			zap.Int("urgent", report.Urgent),
			zap.Int("errors", report.Errors),
		)
	}
}
