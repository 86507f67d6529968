package service

import (
	"errors"
	"fmt"
)

// Категории ошибок. Конкретные ошибки ниже оборачивают их, проверять через errors.Is.
var (
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrDownstream   = errors.New("downstream failure")
)

var (
	ErrSlotTaken        = fmt.Errorf("%w: slot is no longer available", ErrConflict)
	ErrSlotInUse        = fmt.Errorf("%w: slot has an active booking", ErrConflict)
	ErrUnexpectedStatus = fmt.Errorf("%w: booking is not in expected state", ErrConflict)

	ErrDeadlineExpired = fmt.Errorf("%w: confirmation deadline passed", ErrExpired)

	ErrInvalidTimeRange  = fmt.Errorf("%w: end time must be after start time", ErrInvalidInput)
	ErrSlotInPast        = fmt.Errorf("%w: slot is in the past", ErrInvalidInput)
	ErrZeroAmount        = fmt.Errorf("%w: amount must not be zero", ErrInvalidInput)
	ErrNonPositiveAmount = fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	ErrUnknownTxType     = fmt.Errorf("%w: unknown transaction type", ErrInvalidInput)
	ErrInvalidFeeTier    = fmt.Errorf("%w: fee override must be one of 0, 50, 80, 100", ErrInvalidInput)
	ErrOverrideForbidden = fmt.Errorf("%w: only an admin may override the cancellation fee", ErrInvalidInput)
	ErrClientNotApproved = fmt.Errorf("%w: client is not approved", ErrInvalidInput)
	ErrNotBookingOwner   = fmt.Errorf("%w: booking belongs to another client", ErrInvalidInput)
	ErrNotAdmin          = fmt.Errorf("%w: action requires an admin", ErrInvalidInput)
	ErrInvalidProposal   = fmt.Errorf("%w: invalid proposal request", ErrInvalidInput)

	ErrClientNotFound  = fmt.Errorf("client %w", ErrNotFound)
	ErrSlotNotFound    = fmt.Errorf("slot %w", ErrNotFound)
	ErrBookingNotFound = fmt.Errorf("booking %w", ErrNotFound)
)

// IsUserFacing сообщает, можно ли показать ошибку пользователю как есть
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNotFound)
}
