package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/Freeeeeet/trainer_booking/internal/repository"
	"go.uber.org/zap"
)

// SlotService календарь тренера. Следит, чтобы на слот было не больше одного активного бронирования.
type SlotService struct {
	tx       Transactor
	slots    SlotRepository
	bookings BookingRepository
	clock    func() time.Time
	logger   *zap.Logger
}

func NewSlotService(repos Repositories, clock func() time.Time, logger *zap.Logger) *SlotService {
	return &SlotService{
		tx:       repos.Tx,
		slots:    repos.Slots,
		bookings: repos.Bookings,
		clock:    clock,
		logger:   logger,
	}
}

// CreateSlot создаёт слот. Пересечения с другими слотами не проверяются.
func (s *SlotService) CreateSlot(ctx context.Context, start, end time.Time, notes string) (*model.TrainingSlot, error) {
	if !end.After(start) {
		return nil, ErrInvalidTimeRange
	}

	slot := &model.TrainingSlot{
		StartTime:   start,
		EndTime:     end,
		IsAvailable: true,
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		slot.Notes = &notes
	}

	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	s.logger.Info("Slot created",
		zap.Int64("slot_id", slot.ID),
		zap.Time("start", slot.StartTime),
		zap.Time("end", slot.EndTime),
	)

	return slot, nil
}

// Reserve создаёт активное бронирование на слот booking.SlotID и занимает слот.
// Если слот уже занят, возвращает ErrSlotTaken.
func (s *SlotService) Reserve(ctx context.Context, booking *model.Booking) error {
	if booking.SlotID == nil {
		return ErrSlotNotFound
	}
	slotID := *booking.SlotID

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		slot, err := s.slots.GetByID(ctx, slotID)
		if err != nil {
			return fmt.Errorf("get slot: %w", err)
		}
		if slot == nil {
			return ErrSlotNotFound
		}

		// Предварительная проверка, окончательно решает уникальный индекс
		taken, err := s.bookings.HasActiveForSlot(ctx, slotID)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return ErrSlotTaken
		}

		if err := s.bookings.Create(ctx, booking); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrSlotTaken
			}
			return fmt.Errorf("create booking: %w", err)
		}

		if err := s.slots.SetAvailability(ctx, slotID, false); err != nil {
			return fmt.Errorf("mark slot taken: %w", err)
		}

		booking.SlotStart = &slot.StartTime
		booking.SlotEnd = &slot.EndTime
		return nil
	})
}

// Release снова открывает слот для записи. Повторный вызов ничего не меняет.
func (s *SlotService) Release(ctx context.Context, slotID int64) error {
	if err := s.slots.SetAvailability(ctx, slotID, true); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

// Delete удаляет слот целиком. Пока на нём есть активное бронирование, возвращает ErrSlotInUse.
func (s *SlotService) Delete(ctx context.Context, slotID int64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		active, err := s.bookings.HasActiveForSlot(ctx, slotID)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if active {
			return ErrSlotInUse
		}

		deleted, err := s.slots.Delete(ctx, slotID)
		if err != nil {
			return fmt.Errorf("delete slot: %w", err)
		}
		if !deleted {
			return ErrSlotNotFound
		}

		s.logger.Info("Slot deleted", zap.Int64("slot_id", slotID))
		return nil
	})
}

// SlotsInRange слоты, пересекающие [from, to), с текущим бронированием
func (s *SlotService) SlotsInRange(ctx context.Context, from, to time.Time) ([]*model.SlotWithBooking, error) {
	if !to.After(from) {
		return nil, ErrInvalidTimeRange
	}

	slots, err := s.slots.ListInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	if slots == nil {
		slots = []*model.SlotWithBooking{}
	}

	return slots, nil
}

// dropSlot удаляет слот предложения после перевода бронирования в cancelled.
// Вызывается внутри транзакции перехода, поэтому активных бронирований на слоте уже нет.
func (s *SlotService) dropSlot(ctx context.Context, slotID *int64) error {
	if slotID == nil {
		return nil
	}
	if _, err := s.slots.Delete(ctx, *slotID); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}
