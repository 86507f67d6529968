package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/Freeeeeet/trainer_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingSelect = `
	SELECT b.id, b.client_id, b.slot_id, b.price, b.status, b.confirmation_deadline,
	       b.cancellation_fee, b.cancelled_at, b.cancellation_reason, b.proposed_by,
	       b.batch_id, b.last_reminder_tier, b.created_at, b.updated_at,
	       s.start_time, s.end_time
	FROM bookings b
	LEFT JOIN training_slots s ON s.id = b.slot_id
`

type BookingRepository struct {
	*base.Repository
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{Repository: base.NewRepository(pool)}
}

// Create создаёт новое бронирование. Второе активное бронирование на слот даёт ErrDuplicate.
func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (client_id, slot_id, price, status, confirmation_deadline, proposed_by, batch_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, last_reminder_tier, created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		booking.ClientID,
		booking.SlotID,
		booking.Price,
		booking.Status,
		booking.ConfirmationDeadline,
		booking.ProposedBy,
		booking.BatchID,
	).Scan(&booking.ID, &booking.LastReminderTier, &booking.CreatedAt, &booking.UpdatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create booking: %w", err)
	}

	return nil
}

// GetByID получает бронирование по ID
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	booking, err := scanBooking(r.QueryRow(ctx, bookingSelect+` WHERE b.id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}

	return booking, nil
}

// HasActiveForSlot проверяет есть ли у слота активное бронирование
func (r *BookingRepository) HasActiveForSlot(ctx context.Context, slotID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM bookings
			WHERE slot_id = $1 AND status = ANY($2)
		)
	`

	var exists bool
	err := r.QueryRow(ctx, query, slotID, statusStrings(model.ActiveBookingStatuses)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active booking: %w", err)
	}

	return exists, nil
}

// ApplyStatusChange переводит бронирование в новый статус, если оно всё ещё в ожидаемом.
// Возвращает false, если условие не выполнено на момент записи.
func (r *BookingRepository) ApplyStatusChange(ctx context.Context, change model.StatusChange) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $2,
		    cancellation_fee = COALESCE($4, cancellation_fee),
		    cancelled_at = COALESCE($5, cancelled_at),
		    cancellation_reason = COALESCE($6, cancellation_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		  AND ($7::timestamptz IS NULL OR confirmation_deadline IS NULL OR confirmation_deadline > $7)
		  AND ($8::timestamptz IS NULL OR (confirmation_deadline IS NOT NULL AND confirmation_deadline <= $8))
	`

	affected, err := r.ExecAffected(
		ctx, query,
		change.BookingID,
		change.To,
		statusStrings(change.From),
		change.CancellationFee,
		change.CancelledAt,
		change.CancellationReason,
		change.BeforeDeadline,
		change.DeadlineReached,
	)
	if err != nil {
		return false, fmt.Errorf("update booking status: %w", err)
	}

	return affected == 1, nil
}

// ListByClient получает все бронирования клиента
func (r *BookingRepository) ListByClient(ctx context.Context, clientID int64) ([]*model.Booking, error) {
	rows, err := r.Query(ctx, bookingSelect+`
		WHERE b.client_id = $1
		ORDER BY s.start_time NULLS LAST, b.created_at DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("get bookings by client: %w", err)
	}

	return collectBookings(rows)
}

// ListOverlapping получает бронирования в статусах statuses, чей слот пересекает [from, to).
// Один запрос на весь диапазон кандидатов.
func (r *BookingRepository) ListOverlapping(ctx context.Context, statuses []model.BookingStatus, from, to time.Time) ([]*model.Booking, error) {
	rows, err := r.Query(ctx, bookingSelect+`
		WHERE b.status = ANY($1)
		  AND s.start_time < $3
		  AND s.end_time > $2
		ORDER BY s.start_time
	`, statusStrings(statuses), from, to)
	if err != nil {
		return nil, fmt.Errorf("get overlapping bookings: %w", err)
	}

	return collectBookings(rows)
}

// ListAwaitingWithDeadline получает предложения, ожидающие подтверждения, с дедлайном
func (r *BookingRepository) ListAwaitingWithDeadline(ctx context.Context) ([]*model.Booking, error) {
	rows, err := r.Query(ctx, bookingSelect+`
		WHERE b.status = $1 AND b.confirmation_deadline IS NOT NULL
		ORDER BY b.confirmation_deadline
	`, model.BookingStatusAwaitingConfirmation)
	if err != nil {
		return nil, fmt.Errorf("get awaiting bookings: %w", err)
	}

	return collectBookings(rows)
}

// AdvanceReminderTier отмечает отправленное напоминание. Отметка только растёт,
// поэтому повторный запуск сборщика не отправит то же напоминание дважды.
func (r *BookingRepository) AdvanceReminderTier(ctx context.Context, id int64, tier model.ReminderTier) (bool, error) {
	query := `
		UPDATE bookings
		SET last_reminder_tier = $2
		WHERE id = $1
		  AND status = $3
		  AND (CASE last_reminder_tier WHEN 'reminder' THEN 1 WHEN 'urgent' THEN 2 ELSE 0 END) < $4
	`

	affected, err := r.ExecAffected(ctx, query, id, tier, model.BookingStatusAwaitingConfirmation, tier.Rank())
	if err != nil {
		return false, fmt.Errorf("advance reminder tier: %w", err)
	}

	return affected == 1, nil
}

func collectBookings(rows pgx.Rows) ([]*model.Booking, error) {
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var booking model.Booking
	err := row.Scan(
		&booking.ID,
		&booking.ClientID,
		&booking.SlotID,
		&booking.Price,
		&booking.Status,
		&booking.ConfirmationDeadline,
		&booking.CancellationFee,
		&booking.CancelledAt,
		&booking.CancellationReason,
		&booking.ProposedBy,
		&booking.BatchID,
		&booking.LastReminderTier,
		&booking.CreatedAt,
		&booking.UpdatedAt,
		&booking.SlotStart,
		&booking.SlotEnd,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func statusStrings(statuses []model.BookingStatus) []string {
	result := make([]string, len(statuses))
	for i, s := range statuses {
		result[i] = string(s)
	}
	return result
}
