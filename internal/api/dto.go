package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// Тела запросов. Проверяются валидатором по тегам validate,
// бизнес-правила проверяют сервисы.

type CreateClientRequest struct {
	FullName   string `json:"full_name" validate:"required,max=200"`
	TelegramID *int64 `json:"telegram_id" validate:"omitempty,gt=0"`
	ClientType string `json:"client_type" validate:"omitempty,oneof=fixed flexible"`
}

type CreateSlotRequest struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
	Notes string    `json:"notes" validate:"max=500"`
}

type CreateBookingRequest struct {
	SlotID int64 `json:"slot_id" validate:"required,gt=0"`
}

type AssignBookingRequest struct {
	ClientID int64 `json:"client_id" validate:"required,gt=0"`
	SlotID   int64 `json:"slot_id" validate:"required,gt=0"`
}

type RejectBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type CancelBookingRequest struct {
	// Только для админа: ручной процент штрафа
	FeePercent *int `json:"fee_percent" validate:"omitempty,oneof=0 50 80 100"`
}

type SelectionDTO struct {
	Weekday int `json:"weekday" validate:"min=0,max=6"`
	Hour    int `json:"hour" validate:"min=0,max=23"`
	Minute  int `json:"minute" validate:"min=0,max=59"`
}

type ProposeBatchRequest struct {
	ClientID      int64          `json:"client_id" validate:"required,gt=0"`
	Selections    []SelectionDTO `json:"selections" validate:"required,min=1,dive"`
	Weeks         int            `json:"weeks" validate:"oneof=1 2"`
	SkipConflicts bool           `json:"skip_conflicts"`
}

type ConfirmAllRequest struct {
	BookingIDs []int64 `json:"booking_ids" validate:"required,min=1,dive,gt=0"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note" validate:"max=500"`
}

type ApprovalRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected"`
}

type ClientTypeRequest struct {
	Type string `json:"type" validate:"required,oneof=fixed flexible"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
