package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	proposalLeadTime    = time.Hour
	proposalMinResponse = 30 * time.Minute
)

// ClientSchedule бронирования клиента, разложенные для экрана "мои тренировки"
type ClientSchedule struct {
	Upcoming []*model.Booking `json:"upcoming"`
	Past     []*model.Booking `json:"past"`
	Proposed []*model.Booking `json:"proposed"`
}

// BookingService переходы бронирования и их побочные эффекты
type BookingService struct {
	tx       Transactor
	clients  ClientRepository
	slots    SlotRepository
	bookings BookingRepository
	ledger   *LedgerService
	slotSvc  *SlotService
	settings *CachedSettings
	notify   *dispatcher
	clock    func() time.Time
	logger   *zap.Logger
}

func NewBookingService(
	repos Repositories,
	ledger *LedgerService,
	slots *SlotService,
	settings *CachedSettings,
	notify *dispatcher,
	clock func() time.Time,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		tx:       repos.Tx,
		clients:  repos.Clients,
		slots:    repos.Slots,
		bookings: repos.Bookings,
		ledger:   ledger,
		slotSvc:  slots,
		settings: settings,
		notify:   notify,
		clock:    clock,
		logger:   logger,
	}
}

// ProposalDeadline крайний срок ответа на предложение: за час до начала,
// но не раньше чем через 30 минут от now
func ProposalDeadline(start, now time.Time) time.Time {
	deadline := start.Add(-proposalLeadTime)
	if earliest := now.Add(proposalMinResponse); deadline.Before(earliest) {
		return earliest
	}
	return deadline
}

// CreateBooking клиент сам записывается на свободный слот. Ждёт одобрения админа.
func (s *BookingService) CreateBooking(ctx context.Context, clientID, slotID int64) (*model.Booking, error) {
	client, err := s.getClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !client.IsApproved() {
		return nil, ErrClientNotApproved
	}

	slot, err := s.futureSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	booking := &model.Booking{
		ClientID: clientID,
		SlotID:   &slot.ID,
		Price:    s.settings.Get(ctx).DefaultPrice,
		Status:   model.BookingStatusPending,
	}
	if err := s.slotSvc.Reserve(ctx, booking); err != nil {
		return nil, err
	}

	s.logger.Info("Booking requested",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("client_id", clientID),
		zap.Int64("slot_id", slotID),
	)

	s.notify.sendToAdmins(ctx, model.Notification{
		Title:         "New booking request",
		Message:       fmt.Sprintf("%s asks for a training on %s.", client.FullName, formatSlotTime(slot.StartTime)),
		Type:          model.NotificationBookingRequest,
		RelatedSlotID: booking.SlotID,
	})

	return booking, nil
}

// AssignBooking админ назначает клиенту тренировку на слот. Клиент должен подтвердить до дедлайна.
func (s *BookingService) AssignBooking(ctx context.Context, adminID, clientID, slotID int64) (*model.Booking, error) {
	if err := requireAdmin(ctx, s.clients, adminID); err != nil {
		return nil, err
	}
	if _, err := s.getClient(ctx, clientID); err != nil {
		return nil, err
	}

	slot, err := s.futureSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	deadline := ProposalDeadline(slot.StartTime, s.clock())
	booking := &model.Booking{
		ClientID:             clientID,
		SlotID:               &slot.ID,
		Price:                s.settings.Get(ctx).DefaultPrice,
		Status:               model.BookingStatusAwaitingConfirmation,
		ConfirmationDeadline: &deadline,
		ProposedBy:           &adminID,
	}
	if err := s.slotSvc.Reserve(ctx, booking); err != nil {
		return nil, err
	}

	s.logger.Info("Booking assigned",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("client_id", clientID),
		zap.Int64("slot_id", slotID),
		zap.Time("deadline", deadline),
	)

	s.notify.send(ctx, model.Notification{
		UserID: clientID,
		Title:  "New training proposal",
		Message: fmt.Sprintf("You have been offered a training on %s. Please confirm before %s.",
			formatSlotTime(slot.StartTime), formatSlotTime(deadline)),
		Type:          model.NotificationProposal,
		RelatedSlotID: booking.SlotID,
	})

	return booking, nil
}

// GetBooking получает бронирование по ID
func (s *BookingService) GetBooking(ctx context.Context, bookingID int64) (*model.Booking, error) {
	return s.getBooking(ctx, bookingID)
}

// ApproveBooking одобряет заявку клиента
func (s *BookingService) ApproveBooking(ctx context.Context, adminID, bookingID int64) (*model.Booking, error) {
	if err := requireAdmin(ctx, s.clients, adminID); err != nil {
		return nil, err
	}
	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	change := model.StatusChange{
		BookingID: bookingID,
		From:      []model.BookingStatus{model.BookingStatusPending},
		To:        model.BookingStatusBooked,
	}
	if err := applyTransition(ctx, s.tx, s.bookings, change, nil); err != nil {
		return nil, err
	}
	booking.Status = model.BookingStatusBooked

	s.logger.Info("Booking approved",
		zap.Int64("booking_id", bookingID),
		zap.Int64("admin_id", adminID),
	)

	s.notify.send(ctx, model.Notification{
		UserID:        booking.ClientID,
		Title:         "Booking confirmed",
		Message:       fmt.Sprintf("Your training on %s is confirmed.", formatBookingTime(booking)),
		Type:          model.NotificationBookingApproved,
		RelatedSlotID: booking.SlotID,
	})

	return booking, nil
}

// RejectBooking отклоняет заявку клиента и освобождает слот
func (s *BookingService) RejectBooking(ctx context.Context, adminID, bookingID int64, reason string) (*model.Booking, error) {
	if err := requireAdmin(ctx, s.clients, adminID); err != nil {
		return nil, err
	}
	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	change := model.StatusChange{
		BookingID:   bookingID,
		From:        []model.BookingStatus{model.BookingStatusPending},
		To:          model.BookingStatusCancelled,
		CancelledAt: &now,
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		change.CancellationReason = &reason
	}

	err = applyTransition(ctx, s.tx, s.bookings, change, func(ctx context.Context) error {
		return s.releaseSlot(ctx, booking.SlotID)
	})
	if err != nil {
		return nil, err
	}
	booking.Status = model.BookingStatusCancelled
	booking.CancelledAt = &now
	booking.CancellationReason = change.CancellationReason

	s.logger.Info("Booking rejected",
		zap.Int64("booking_id", bookingID),
		zap.Int64("admin_id", adminID),
	)

	message := fmt.Sprintf("Your request for %s was declined.", formatBookingTime(booking))
	if reason != "" {
		message += " Reason: " + reason
	}
	s.notify.send(ctx, model.Notification{
		UserID:        booking.ClientID,
		Title:         "Booking declined",
		Message:       message,
		Type:          model.NotificationBookingRejected,
		RelatedSlotID: booking.SlotID,
	})

	return booking, nil
}

// CancelBooking отменяет бронирование клиентом или админом. Слот освобождается,
// штраф считается по времени до начала. Только админ может задать процент вручную.
func (s *BookingService) CancelBooking(ctx context.Context, actorID, bookingID int64, override *FeeTier) (*model.Booking, error) {
	actor, err := s.getClient(ctx, actorID)
	if err != nil {
		return nil, err
	}
	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if !actor.IsAdmin {
		if booking.ClientID != actorID {
			return nil, ErrNotBookingOwner
		}
		if override != nil {
			return nil, ErrOverrideForbidden
		}
	}

	// Предложения отклоняются через RejectProposal, слот при этом удаляется
	if booking.Status != model.BookingStatusBooked && booking.Status != model.BookingStatusPending {
		return nil, ErrUnexpectedStatus
	}

	now := s.clock()
	// Заявка без одобрения отменяется бесплатно
	fee := decimal.Zero
	if booking.Status == model.BookingStatusBooked {
		fee = s.cancellationFee(ctx, booking, override, now)
	}

	change := model.StatusChange{
		BookingID:       bookingID,
		From:            []model.BookingStatus{booking.Status},
		To:              model.BookingStatusCancelled,
		CancellationFee: &fee,
		CancelledAt:     &now,
	}

	err = applyTransition(ctx, s.tx, s.bookings, change, func(ctx context.Context) error {
		if err := s.releaseSlot(ctx, booking.SlotID); err != nil {
			return err
		}
		if !fee.IsPositive() {
			return nil
		}
		_, err := s.ledger.ApplyCharge(ctx, Charge{
			ClientID:  booking.ClientID,
			Amount:    fee.Neg(),
			Type:      model.TransactionTypeCancellation,
			Note:      "Cancellation fee for " + formatBookingTime(booking),
			BookingID: &booking.ID,
			CreatedBy: &actorID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	booking.Status = model.BookingStatusCancelled
	booking.CancellationFee = decimal.NewNullDecimal(fee)
	booking.CancelledAt = &now

	s.logger.Info("Booking cancelled",
		zap.Int64("booking_id", bookingID),
		zap.Int64("actor_id", actorID),
		zap.Bool("by_admin", actor.IsAdmin),
		zap.String("fee", fee.StringFixed(2)),
	)

	s.notifyCancelled(ctx, actor, booking, fee)

	return booking, nil
}

// CompleteBooking отмечает проведённую тренировку и списывает её стоимость
func (s *BookingService) CompleteBooking(ctx context.Context, adminID, bookingID int64) (*model.Booking, error) {
	if err := requireAdmin(ctx, s.clients, adminID); err != nil {
		return nil, err
	}
	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	change := model.StatusChange{
		BookingID: bookingID,
		From:      []model.BookingStatus{model.BookingStatusBooked},
		To:        model.BookingStatusCompleted,
	}
	err = applyTransition(ctx, s.tx, s.bookings, change, func(ctx context.Context) error {
		return s.debit(ctx, booking, booking.Price, model.TransactionTypeTraining, "Training on ", adminID)
	})
	if err != nil {
		return nil, err
	}
	booking.Status = model.BookingStatusCompleted

	s.logger.Info("Training completed",
		zap.Int64("booking_id", bookingID),
		zap.String("price", booking.Price.StringFixed(2)),
	)

	s.notify.send(ctx, model.Notification{
		UserID: booking.ClientID,
		Title:  "Training completed",
		Message: fmt.Sprintf("Training on %s is done. %s was charged.",
			formatBookingTime(booking), formatMoney(booking.Price)),
		Type:          model.NotificationTrainingDone,
		RelatedSlotID: booking.SlotID,
	})

	return booking, nil
}

// MarkNoShow клиент не пришёл: списывается полная стоимость независимо от настроек штрафов
func (s *BookingService) MarkNoShow(ctx context.Context, adminID, bookingID int64) (*model.Booking, error) {
	if err := requireAdmin(ctx, s.clients, adminID); err != nil {
		return nil, err
	}
	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	fee := CalculateFee(booking.Price, FeeTierFull.Percentage())
	change := model.StatusChange{
		BookingID:       bookingID,
		From:            []model.BookingStatus{model.BookingStatusBooked},
		To:              model.BookingStatusNoShow,
		CancellationFee: &fee,
	}
	err = applyTransition(ctx, s.tx, s.bookings, change, func(ctx context.Context) error {
		return s.debit(ctx, booking, fee, model.TransactionTypeCancellation, "No-show on ", adminID)
	})
	if err != nil {
		return nil, err
	}
	booking.Status = model.BookingStatusNoShow
	booking.CancellationFee = decimal.NewNullDecimal(fee)

	s.logger.Info("Booking marked as no-show",
		zap.Int64("booking_id", bookingID),
		zap.String("fee", fee.StringFixed(2)),
	)

	s.notify.send(ctx, model.Notification{
		UserID: booking.ClientID,
		Title:  "Missed training",
		Message: fmt.Sprintf("You missed the training on %s. %s was charged.",
			formatBookingTime(booking), formatMoney(fee)),
		Type:          model.NotificationNoShow,
		RelatedSlotID: booking.SlotID,
	})

	return booking, nil
}

// ClientSchedule бронирования клиента: предстоящие, прошедшие и ожидающие ответа предложения
func (s *BookingService) ClientSchedule(ctx context.Context, clientID int64) (*ClientSchedule, error) {
	if _, err := s.getClient(ctx, clientID); err != nil {
		return nil, err
	}

	bookings, err := s.bookings.ListByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	now := s.clock()
	schedule := &ClientSchedule{
		Upcoming: []*model.Booking{},
		Past:     []*model.Booking{},
		Proposed: []*model.Booking{},
	}
	for _, b := range bookings {
		switch {
		case b.Status.IsProposal():
			schedule.Proposed = append(schedule.Proposed, b)
		case b.Status.IsActive() && b.SlotStart != nil && b.SlotStart.After(now):
			schedule.Upcoming = append(schedule.Upcoming, b)
		default:
			schedule.Past = append(schedule.Past, b)
		}
	}

	return schedule, nil
}

func (s *BookingService) cancellationFee(ctx context.Context, booking *model.Booking, override *FeeTier, now time.Time) decimal.Decimal {
	if override != nil {
		return CalculateFee(booking.Price, override.Percentage())
	}
	if booking.SlotStart == nil {
		return decimal.Zero
	}
	pct := FeePercentage(HoursUntil(*booking.SlotStart, now), s.settings.Get(ctx))
	return CalculateFee(booking.Price, pct)
}

func (s *BookingService) debit(ctx context.Context, booking *model.Booking, amount decimal.Decimal, txType model.TransactionType, notePrefix string, adminID int64) error {
	if !amount.IsPositive() {
		return nil
	}
	_, err := s.ledger.ApplyCharge(ctx, Charge{
		ClientID:  booking.ClientID,
		Amount:    amount.Neg(),
		Type:      txType,
		Note:      notePrefix + formatBookingTime(booking),
		BookingID: &booking.ID,
		CreatedBy: &adminID,
	})
	return err
}

func (s *BookingService) releaseSlot(ctx context.Context, slotID *int64) error {
	if slotID == nil {
		return nil
	}
	return s.slotSvc.Release(ctx, *slotID)
}

func (s *BookingService) notifyCancelled(ctx context.Context, actor *model.Client, booking *model.Booking, fee decimal.Decimal) {
	if actor.IsAdmin && actor.ID != booking.ClientID {
		message := fmt.Sprintf("Your training on %s was cancelled by the trainer.", formatBookingTime(booking))
		if fee.IsPositive() {
			message += fmt.Sprintf(" Cancellation fee: %s.", formatMoney(fee))
		}
		s.notify.send(ctx, model.Notification{
			UserID:        booking.ClientID,
			Title:         "Training cancelled",
			Message:       message,
			Type:          model.NotificationBookingCancelled,
			RelatedSlotID: booking.SlotID,
		})
		return
	}

	message := fmt.Sprintf("%s cancelled the training on %s.", actor.FullName, formatBookingTime(booking))
	if fee.IsPositive() {
		message += fmt.Sprintf(" Fee charged: %s.", formatMoney(fee))
	}
	s.notify.sendToAdmins(ctx, model.Notification{
		Title:         "Training cancelled",
		Message:       message,
		Type:          model.NotificationBookingCancelled,
		RelatedSlotID: booking.SlotID,
	})
}

func (s *BookingService) getClient(ctx context.Context, clientID int64) (*model.Client, error) {
	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if client == nil {
		return nil, ErrClientNotFound
	}
	return client, nil
}

func (s *BookingService) getBooking(ctx context.Context, bookingID int64) (*model.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	return booking, nil
}

func (s *BookingService) futureSlot(ctx context.Context, slotID int64) (*model.TrainingSlot, error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return nil, ErrSlotNotFound
	}
	if !slot.StartTime.After(s.clock()) {
		return nil, ErrSlotInPast
	}
	return slot, nil
}

// applyTransition выполняет условный перевод статуса и эффекты в одной транзакции.
// Если бронирование уже не в ожидаемом статусе, возвращает ErrUnexpectedStatus.
func applyTransition(ctx context.Context, tx Transactor, bookings BookingRepository, change model.StatusChange, effects func(ctx context.Context) error) error {
	return tx.WithinTx(ctx, func(ctx context.Context) error {
		applied, err := bookings.ApplyStatusChange(ctx, change)
		if err != nil {
			return fmt.Errorf("apply status change: %w", err)
		}
		if !applied {
			return ErrUnexpectedStatus
		}
		if effects == nil {
			return nil
		}
		return effects(ctx)
	})
}

func formatSlotTime(t time.Time) string {
	return t.Format("Mon 02 Jan 15:04")
}

func formatBookingTime(b *model.Booking) string {
	if b.SlotStart == nil {
		return "a removed slot"
	}
	return formatSlotTime(*b.SlotStart)
}

func formatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(2) + "€"
}
