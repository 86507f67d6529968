package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var proposalConflictStatuses = []model.BookingStatus{
	model.BookingStatusBooked,
	model.BookingStatusAwaitingConfirmation,
}

// WeeklySelection день недели и время начала тренировки
type WeeklySelection struct {
	Weekday time.Weekday `json:"weekday"`
	Hour    int          `json:"hour"`
	Minute  int          `json:"minute"`
}

// ProposalRequest пакет предложений клиенту на одну или две недели вперёд
type ProposalRequest struct {
	AdminID       int64
	ClientID      int64
	Selections    []WeeklySelection
	Weeks         int
	SkipConflicts bool
}

// ConflictReason чей календарь уже занят
type ConflictReason string

const (
	ConflictClient  ConflictReason = "client"
	ConflictTrainer ConflictReason = "trainer"
)

// Message текст для пользователя
func (r ConflictReason) Message() string {
	if r == ConflictClient {
		return "client already has a training"
	}
	return "trainer already has a training"
}

type ProposalConflict struct {
	Start     time.Time      `json:"start"`
	Reason    ConflictReason `json:"reason"`
	Message   string         `json:"message"`
	BookingID int64          `json:"booking_id"`
}

type ProposalFailure struct {
	Start time.Time `json:"start"`
	Error string    `json:"error"`
}

// ProposalResult итог пакета. Частичный успех возвращается без ошибки.
type ProposalResult struct {
	BatchID   *uuid.UUID         `json:"batch_id,omitempty"`
	Created   []*model.Booking   `json:"created"`
	Conflicts []ProposalConflict `json:"conflicts"`
	Skipped   int                `json:"skipped"`
	Failed    []ProposalFailure  `json:"failed"`
}

// ConfirmOutcome результат подтверждения одного предложения из ConfirmAll
type ConfirmOutcome struct {
	BookingID int64          `json:"booking_id"`
	Booking   *model.Booking `json:"booking,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type ProposalService struct {
	tx               Transactor
	clients          ClientRepository
	bookings         BookingRepository
	slotSvc          *SlotService
	settings         *CachedSettings
	notify           *dispatcher
	trainingDuration time.Duration
	clock            func() time.Time
	logger           *zap.Logger
}

func NewProposalService(
	repos Repositories,
	slots *SlotService,
	settings *CachedSettings,
	notify *dispatcher,
	trainingDuration time.Duration,
	clock func() time.Time,
	logger *zap.Logger,
) *ProposalService {
	return &ProposalService{
		tx:               repos.Tx,
		clients:          repos.Clients,
		bookings:         repos.Bookings,
		slotSvc:          slots,
		settings:         settings,
		notify:           notify,
		trainingDuration: trainingDuration,
		clock:            clock,
		logger:           logger,
	}
}

// ProposeBatch создаёт предложения по выбранным дням недели. При конфликтах без
// SkipConflicts ничего не создаёт и возвращает список конфликтов.
func (s *ProposalService) ProposeBatch(ctx context.Context, req ProposalRequest) (*ProposalResult, error) {
	if err := validateProposalRequest(req); err != nil {
		return nil, err
	}
	if err := requireAdmin(ctx, s.clients, req.AdminID); err != nil {
		return nil, err
	}
	client, err := s.clients.GetByID(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if client == nil {
		return nil, ErrClientNotFound
	}

	now := s.clock()
	result := &ProposalResult{
		Created:   []*model.Booking{},
		Conflicts: []ProposalConflict{},
		Failed:    []ProposalFailure{},
	}

	candidates := ExpandSelections(req.Selections, req.Weeks, now)
	if len(candidates) == 0 {
		return result, nil
	}

	rangeStart := candidates[0]
	rangeEnd := candidates[len(candidates)-1].Add(s.trainingDuration)
	existing, err := s.bookings.ListOverlapping(ctx, proposalConflictStatuses, rangeStart, rangeEnd)
	if err != nil {
		return nil, fmt.Errorf("list overlapping bookings: %w", err)
	}

	var free []time.Time
	for _, start := range candidates {
		end := start.Add(s.trainingDuration)
		if conflict, ok := findConflict(existing, req.ClientID, start, end); ok {
			result.Conflicts = append(result.Conflicts, conflict)
			continue
		}
		// Кандидаты пакета не должны пересекаться друг с другом
		if overlapsAccepted(free, start, s.trainingDuration) {
			result.Conflicts = append(result.Conflicts, ProposalConflict{
				Start:   start,
				Reason:  ConflictClient,
				Message: ConflictClient.Message(),
			})
			continue
		}
		free = append(free, start)
	}

	if len(result.Conflicts) > 0 && !req.SkipConflicts {
		s.logger.Info("Proposal batch has conflicts",
			zap.Int64("client_id", req.ClientID),
			zap.Int("conflicts", len(result.Conflicts)),
		)
		return result, nil
	}
	result.Skipped = len(result.Conflicts)

	batchID := uuid.New()
	result.BatchID = &batchID
	price := s.settings.Get(ctx).DefaultPrice

	for _, start := range free {
		booking, err := s.createProposal(ctx, req, start, price, batchID, now)
		if err != nil {
			s.logger.Warn("Failed to create proposal",
				zap.Int64("client_id", req.ClientID),
				zap.Time("start", start),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, ProposalFailure{Start: start, Error: err.Error()})
			continue
		}
		result.Created = append(result.Created, booking)
	}

	s.logger.Info("Proposal batch created",
		zap.String("batch_id", batchID.String()),
		zap.Int64("client_id", req.ClientID),
		zap.Int("created", len(result.Created)),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Failed)),
	)

	if n := len(result.Created); n > 0 {
		s.notify.send(ctx, model.Notification{
			UserID: req.ClientID,
			Title:  "New training proposals",
			Message: fmt.Sprintf("You have %d new proposed training(s). The first one starts on %s, please confirm or decline each.",
				n, formatBookingTime(result.Created[0])),
			Type: model.NotificationProposal,
		})
	}

	return result, nil
}

// createProposal слот и бронирование одного кандидата в отдельной транзакции.
// Ошибка откатывает только этот слот.
func (s *ProposalService) createProposal(ctx context.Context, req ProposalRequest, start time.Time, price decimal.Decimal, batchID uuid.UUID, now time.Time) (*model.Booking, error) {
	var booking *model.Booking
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		slot, err := s.slotSvc.CreateSlot(ctx, start, start.Add(s.trainingDuration), "")
		if err != nil {
			return err
		}

		deadline := ProposalDeadline(start, now)
		adminID := req.AdminID
		booking = &model.Booking{
			ClientID:             req.ClientID,
			SlotID:               &slot.ID,
			Price:                price,
			Status:               model.BookingStatusAwaitingConfirmation,
			ConfirmationDeadline: &deadline,
			ProposedBy:           &adminID,
			BatchID:              &batchID,
		}
		return s.slotSvc.Reserve(ctx, booking)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// ConfirmProposal клиент подтверждает предложение до дедлайна
func (s *ProposalService) ConfirmProposal(ctx context.Context, clientID, bookingID int64) (*model.Booking, error) {
	booking, err := s.ownProposal(ctx, clientID, bookingID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	change := model.StatusChange{
		BookingID:      bookingID,
		From:           []model.BookingStatus{model.BookingStatusAwaitingConfirmation, model.BookingStatusProposed},
		To:             model.BookingStatusBooked,
		BeforeDeadline: &now,
	}
	if err := applyTransition(ctx, s.tx, s.bookings, change, nil); err != nil {
		return nil, s.explainFailure(ctx, bookingID, now, err)
	}
	booking.Status = model.BookingStatusBooked

	s.logger.Info("Proposal confirmed",
		zap.Int64("booking_id", bookingID),
		zap.Int64("client_id", clientID),
	)

	s.notifyAdminsOfAnswer(ctx, booking, "confirmed")

	return booking, nil
}

// RejectProposal клиент отказывается от предложения. Бронирование остаётся
// отменённой записью, слот удаляется.
func (s *ProposalService) RejectProposal(ctx context.Context, clientID, bookingID int64) (*model.Booking, error) {
	booking, err := s.ownProposal(ctx, clientID, bookingID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	reason := "declined by client"
	change := model.StatusChange{
		BookingID:          bookingID,
		From:               []model.BookingStatus{model.BookingStatusAwaitingConfirmation, model.BookingStatusProposed},
		To:                 model.BookingStatusCancelled,
		BeforeDeadline:     &now,
		CancelledAt:        &now,
		CancellationReason: &reason,
	}
	err = applyTransition(ctx, s.tx, s.bookings, change, func(ctx context.Context) error {
		return s.slotSvc.dropSlot(ctx, booking.SlotID)
	})
	if err != nil {
		return nil, s.explainFailure(ctx, bookingID, now, err)
	}
	booking.Status = model.BookingStatusCancelled
	booking.CancelledAt = &now
	booking.CancellationReason = &reason
	booking.SlotID = nil

	s.logger.Info("Proposal rejected",
		zap.Int64("booking_id", bookingID),
		zap.Int64("client_id", clientID),
	)

	s.notifyAdminsOfAnswer(ctx, booking, "declined")

	return booking, nil
}

// ConfirmAll подтверждает каждое предложение отдельно, ошибка одного не мешает остальным
func (s *ProposalService) ConfirmAll(ctx context.Context, clientID int64, bookingIDs []int64) []ConfirmOutcome {
	outcomes := make([]ConfirmOutcome, 0, len(bookingIDs))
	for _, id := range bookingIDs {
		outcome := ConfirmOutcome{BookingID: id}
		booking, err := s.ConfirmProposal(ctx, clientID, id)
		if err != nil {
			outcome.Error = err.Error()
		} else {
			outcome.Booking = booking
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// expire отменяет просроченное предложение тем же переходом, что и отказ клиента.
// Если клиент успел ответить, возвращает ErrUnexpectedStatus.
func (s *ProposalService) expire(ctx context.Context, booking *model.Booking) error {
	now := s.clock()
	reason := "confirmation deadline passed"
	change := model.StatusChange{
		BookingID:          booking.ID,
		From:               []model.BookingStatus{model.BookingStatusAwaitingConfirmation, model.BookingStatusProposed},
		To:                 model.BookingStatusCancelled,
		DeadlineReached:    &now,
		CancelledAt:        &now,
		CancellationReason: &reason,
	}
	err := applyTransition(ctx, s.tx, s.bookings, change, func(ctx context.Context) error {
		return s.slotSvc.dropSlot(ctx, booking.SlotID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Proposal expired",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("client_id", booking.ClientID),
	)

	s.notify.send(ctx, model.Notification{
		UserID:  booking.ClientID,
		Title:   "Proposal expired",
		Message: fmt.Sprintf("The proposed training on %s was not confirmed in time and has been removed.", formatBookingTime(booking)),
		Type:    model.NotificationProposalExpired,
	})

	return nil
}

func (s *ProposalService) ownProposal(ctx context.Context, clientID, bookingID int64) (*model.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	if booking.ClientID != clientID {
		return nil, ErrNotBookingOwner
	}
	if booking.DeadlinePassed(s.clock()) {
		return nil, ErrDeadlineExpired
	}
	return booking, nil
}

// explainFailure уточняет неудавшийся переход: дедлайн мог истечь между чтением и записью
func (s *ProposalService) explainFailure(ctx context.Context, bookingID int64, now time.Time, err error) error {
	if !errors.Is(err, ErrUnexpectedStatus) {
		return err
	}
	current, getErr := s.bookings.GetByID(ctx, bookingID)
	if getErr != nil {
		return fmt.Errorf("get booking: %w", getErr)
	}
	if current != nil && current.DeadlinePassed(now) {
		return ErrDeadlineExpired
	}
	return err
}

func (s *ProposalService) notifyAdminsOfAnswer(ctx context.Context, booking *model.Booking, answer string) {
	name := fmt.Sprintf("Client #%d", booking.ClientID)
	if client, err := s.clients.GetByID(ctx, booking.ClientID); err == nil && client != nil {
		name = client.FullName
	}
	s.notify.sendToAdmins(ctx, model.Notification{
		Title:         "Proposal " + answer,
		Message:       fmt.Sprintf("%s %s the training on %s.", name, answer, formatBookingTime(booking)),
		Type:          model.NotificationProposalAnswer,
		RelatedSlotID: booking.SlotID,
	})
}

// ExpandSelections превращает дни недели в конкретные даты на weeks недель вперёд
// начиная с сегодняшнего дня. Прошедшее время отбрасывается, результат отсортирован.
func ExpandSelections(selections []WeeklySelection, weeks int, now time.Time) []time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	seen := make(map[int64]bool)
	var result []time.Time
	for day := 0; day < weeks*7; day++ {
		date := today.AddDate(0, 0, day)
		for _, sel := range selections {
			if date.Weekday() != sel.Weekday {
				continue
			}
			start := time.Date(date.Year(), date.Month(), date.Day(), sel.Hour, sel.Minute, 0, 0, now.Location())
			if !start.After(now) || seen[start.Unix()] {
				continue
			}
			seen[start.Unix()] = true
			result = append(result, start)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result
}

// overlapsAccepted пересекает ли [start, start+d) уже принятых кандидатов
func overlapsAccepted(accepted []time.Time, start time.Time, d time.Duration) bool {
	end := start.Add(d)
	for _, other := range accepted {
		if start.Before(other.Add(d)) && other.Before(end) {
			return true
		}
	}
	return false
}

// findConflict ищет бронирование, пересекающее [start, end). Конфликт с самим клиентом важнее.
func findConflict(existing []*model.Booking, clientID int64, start, end time.Time) (ProposalConflict, bool) {
	var found *ProposalConflict
	for _, b := range existing {
		if b.SlotStart == nil || b.SlotEnd == nil {
			continue
		}
		if !(b.SlotStart.Before(end) && start.Before(*b.SlotEnd)) {
			continue
		}
		reason := ConflictTrainer
		if b.ClientID == clientID {
			reason = ConflictClient
		}
		if found == nil || reason == ConflictClient {
			found = &ProposalConflict{
				Start:     start,
				Reason:    reason,
				Message:   reason.Message(),
				BookingID: b.ID,
			}
		}
		if reason == ConflictClient {
			break
		}
	}
	if found == nil {
		return ProposalConflict{}, false
	}
	return *found, true
}

func validateProposalRequest(req ProposalRequest) error {
	if req.Weeks != 1 && req.Weeks != 2 {
		return fmt.Errorf("%w: weeks must be 1 or 2", ErrInvalidProposal)
	}
	if len(req.Selections) == 0 {
		return fmt.Errorf("%w: no days selected", ErrInvalidProposal)
	}
	for _, sel := range req.Selections {
		if sel.Weekday < time.Sunday || sel.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidProposal, sel.Weekday)
		}
		if sel.Hour < 0 || sel.Hour > 23 || sel.Minute < 0 || sel.Minute > 59 {
			return fmt.Errorf("%w: time %02d:%02d out of range", ErrInvalidProposal, sel.Hour, sel.Minute)
		}
	}
	return nil
}
