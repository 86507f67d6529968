package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending              BookingStatus = "pending"               // Ожидает одобрения админа
	BookingStatusProposed             BookingStatus = "proposed"              // Старое предложение тренера
	BookingStatusAwaitingConfirmation BookingStatus = "awaiting_confirmation" // Ждёт подтверждения клиента
	BookingStatusBooked               BookingStatus = "booked"                // Подтверждено
	BookingStatusCancelled            BookingStatus = "cancelled"             // Отменено
	BookingStatusCompleted            BookingStatus = "completed"             // Проведено
	BookingStatusNoShow               BookingStatus = "no_show"               // Клиент не пришёл
)

// ActiveBookingStatuses occupy their slot. At most one booking per slot may be in one of them.
var ActiveBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusAwaitingConfirmation,
	BookingStatusBooked,
	BookingStatusProposed,
}

// IsActive checks if the status holds the slot
func (s BookingStatus) IsActive() bool {
	for _, st := range ActiveBookingStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal checks if no further transition is possible
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted || s == BookingStatusNoShow
}

// IsProposal checks if the booking waits for the client's answer
func (s BookingStatus) IsProposal() bool {
	return s == BookingStatusAwaitingConfirmation || s == BookingStatusProposed
}

type ReminderTier string

const (
	ReminderTierNone     ReminderTier = "none"
	ReminderTierReminder ReminderTier = "reminder"
	ReminderTierUrgent   ReminderTier = "urgent"
)

// Rank orders tiers so the sent-marker only moves forward
func (t ReminderTier) Rank() int {
	switch t {
	case ReminderTierReminder:
		return 1
	case ReminderTierUrgent:
		return 2
	default:
		return 0
	}
}

type Booking struct {
	ID                   int64               `json:"id"`
	ClientID             int64               `json:"client_id"`
	SlotID               *int64              `json:"slot_id"` // nil после удаления слота отклонённого предложения
	Price                decimal.Decimal     `json:"price"`
	Status               BookingStatus       `json:"status"`
	ConfirmationDeadline *time.Time          `json:"confirmation_deadline"`
	CancellationFee      decimal.NullDecimal `json:"cancellation_fee"`
	CancelledAt          *time.Time          `json:"cancelled_at"`
	CancellationReason   *string             `json:"cancellation_reason"`
	ProposedBy           *int64              `json:"proposed_by"`
	BatchID              *uuid.UUID          `json:"batch_id"`
	LastReminderTier     ReminderTier        `json:"last_reminder_tier"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`

	// Дополнительные поля для удобства (из JOIN со слотом, не из bookings)
	SlotStart *time.Time `json:"slot_start,omitempty"`
	SlotEnd   *time.Time `json:"slot_end,omitempty"`
}

// DeadlinePassed checks the confirmation deadline against now
func (b *Booking) DeadlinePassed(now time.Time) bool {
	return b.ConfirmationDeadline != nil && !b.ConfirmationDeadline.After(now)
}

// StatusChange describes a guarded status update. The update only applies while the
// booking is still in one of From; deadline guards are evaluated at mutation time.
type StatusChange struct {
	BookingID int64
	From      []BookingStatus
	To        BookingStatus

	// BeforeDeadline requires the deadline to be absent or strictly after this instant.
	BeforeDeadline *time.Time
	// DeadlineReached requires the deadline to be set and not after this instant.
	DeadlineReached *time.Time

	CancellationFee    *decimal.Decimal
	CancelledAt        *time.Time
	CancellationReason *string
}
