package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/Freeeeeet/trainer_booking/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SlotRepository struct {
	*base.Repository
}

func NewSlotRepository(pool *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{Repository: base.NewRepository(pool)}
}

// Create создаёт новый слот
func (r *SlotRepository) Create(ctx context.Context, slot *model.TrainingSlot) error {
	query := `
		INSERT INTO training_slots (start_time, end_time, notes, is_available)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.QueryRow(
		ctx, query,
		slot.StartTime,
		slot.EndTime,
		slot.Notes,
		slot.IsAvailable,
	).Scan(&slot.ID, &slot.CreatedAt)

	if err != nil {
		return fmt.Errorf("create slot: %w", err)
	}

	return nil
}

// GetByID получает слот по ID
func (r *SlotRepository) GetByID(ctx context.Context, id int64) (*model.TrainingSlot, error) {
	query := `
		SELECT id, start_time, end_time, notes, is_available, created_at
		FROM training_slots
		WHERE id = $1
	`

	var slot model.TrainingSlot
	err := r.QueryRow(ctx, query, id).Scan(
		&slot.ID,
		&slot.StartTime,
		&slot.EndTime,
		&slot.Notes,
		&slot.IsAvailable,
		&slot.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}

	return &slot, nil
}

// SetAvailability обновляет флаг доступности. Отсутствующий слот не ошибка.
func (r *SlotRepository) SetAvailability(ctx context.Context, id int64, available bool) error {
	_, err := r.ExecAffected(ctx, `UPDATE training_slots SET is_available = $1 WHERE id = $2`, available, id)
	if err != nil {
		return fmt.Errorf("update slot availability: %w", err)
	}
	return nil
}

// Delete удаляет слот. Бронирования сохраняются со slot_id = NULL.
func (r *SlotRepository) Delete(ctx context.Context, id int64) (bool, error) {
	affected, err := r.ExecAffected(ctx, `DELETE FROM training_slots WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete slot: %w", err)
	}
	return affected > 0, nil
}

// ListInRange получает слоты, пересекающиеся с [from, to), вместе с текущим бронированием
func (r *SlotRepository) ListInRange(ctx context.Context, from, to time.Time) ([]*model.SlotWithBooking, error) {
	query := `
		SELECT s.id, s.start_time, s.end_time, s.notes, s.is_available, s.created_at,
		       b.id, b.status, b.client_id, u.full_name
		FROM training_slots s
		LEFT JOIN LATERAL (
			SELECT id, status, client_id
			FROM bookings
			WHERE slot_id = s.id
			ORDER BY (status IN ('pending', 'awaiting_confirmation', 'booked', 'proposed')) DESC,
			         created_at DESC
			LIMIT 1
		) b ON true
		LEFT JOIN users u ON u.id = b.client_id
		WHERE s.start_time < $2 AND s.end_time > $1
		ORDER BY s.start_time
	`

	rows, err := r.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots in range: %w", err)
	}
	defer rows.Close()

	var result []*model.SlotWithBooking
	for rows.Next() {
		var slot model.TrainingSlot
		var item model.SlotWithBooking
		var status *string
		err := rows.Scan(
			&slot.ID,
			&slot.StartTime,
			&slot.EndTime,
			&slot.Notes,
			&slot.IsAvailable,
			&slot.CreatedAt,
			&item.BookingID,
			&status,
			&item.ClientID,
			&item.ClientName,
		)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		if status != nil {
			st := model.BookingStatus(*status)
			item.Status = &st
		}
		item.Slot = &slot
		result = append(result, &item)
	}

	return result, rows.Err()
}
