package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"go.uber.org/zap"
)

// Окна напоминаний относительно дедлайна подтверждения
const (
	reminderWindowFrom = 25 * time.Minute
	reminderWindowTo   = 35 * time.Minute
	urgentWindowTo     = 12 * time.Minute
)

// SweepReport итог одного прохода
type SweepReport struct {
	Checked  int `json:"checked"`
	Expired  int `json:"expired"`
	Reminded int `json:"reminded"`
	Urgent   int `json:"urgent"`
	Errors   int `json:"errors"`
}

// DeadlineSweeper снимает просроченные предложения и напоминает о скором дедлайне.
// Безопасен при повторных и параллельных запусках.
type DeadlineSweeper struct {
	bookings  BookingRepository
	proposals *ProposalService
	notify    *dispatcher
	clock     func() time.Time
	logger    *zap.Logger
}

func NewDeadlineSweeper(bookings BookingRepository, proposals *ProposalService, notify *dispatcher, clock func() time.Time, logger *zap.Logger) *DeadlineSweeper {
	return &DeadlineSweeper{
		bookings:  bookings,
		proposals: proposals,
		notify:    notify,
		clock:     clock,
		logger:    logger,
	}
}

// Sweep обрабатывает все предложения, ожидающие подтверждения
func (s *DeadlineSweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	awaiting, err := s.bookings.ListAwaitingWithDeadline(ctx)
	if err != nil {
		return report, fmt.Errorf("list awaiting proposals: %w", err)
	}

	for _, booking := range awaiting {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		now := s.clock()
		remaining := booking.ConfirmationDeadline.Sub(now)

		switch {
		case booking.DeadlinePassed(now):
			err := s.proposals.expire(ctx, booking)
			switch {
			case err == nil:
				report.Expired++
			case errors.Is(err, ErrUnexpectedStatus):
				// клиент ответил раньше
			default:
				report.Errors++
				s.logger.Error("Failed to expire proposal", zap.Int64("booking_id", booking.ID), zap.Error(err))
			}

		case remaining <= urgentWindowTo:
			sent, err := s.remind(ctx, booking, model.ReminderTierUrgent, remaining)
			if err != nil {
				report.Errors++
			} else if sent {
				report.Urgent++
			}

		case remaining >= reminderWindowFrom && remaining <= reminderWindowTo:
			sent, err := s.remind(ctx, booking, model.ReminderTierReminder, remaining)
			if err != nil {
				report.Errors++
			} else if sent {
				report.Reminded++
			}
		}
	}

	if report.Expired > 0 || report.Reminded > 0 || report.Urgent > 0 || report.Errors > 0 {
		s.logger.Info("Deadline sweep finished",
			zap.Int("checked", report.Checked),
			zap.Int("expired", report.Expired),
			zap.Int("reminded", report.Reminded),
			zap.Int("urgent", report.Urgent),
			zap.Int("errors", report.Errors),
		)
	}

	return report, nil
}

// remind отправляет напоминание, только если отметку удалось продвинуть до tier
func (s *DeadlineSweeper) remind(ctx context.Context, booking *model.Booking, tier model.ReminderTier, remaining time.Duration) (bool, error) {
	advanced, err := s.bookings.AdvanceReminderTier(ctx, booking.ID, tier)
	if err != nil {
		s.logger.Error("Failed to mark reminder", zap.Int64("booking_id", booking.ID), zap.Error(err))
		return false, err
	}
	if !advanced {
		return false, nil
	}

	minutes := int(remaining.Round(time.Minute).Minutes())
	n := model.Notification{
		UserID:        booking.ClientID,
		Title:         "Please confirm your training",
		Message:       fmt.Sprintf("The training on %s needs your answer within %d minutes.", formatBookingTime(booking), minutes),
		Type:          model.NotificationReminder,
		RelatedSlotID: booking.SlotID,
	}
	if tier == model.ReminderTierUrgent {
		n.Title = "Last chance to confirm"
		n.Type = model.NotificationUrgentReminder
	}
	s.notify.send(ctx, n)

	return true, nil
}
