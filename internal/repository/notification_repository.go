package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/Freeeeeet/trainer_booking/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationRepository хранит входящие уведомления пользователей
type NotificationRepository struct {
	*base.Repository
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{Repository: base.NewRepository(pool)}
}

// Create сохраняет уведомление
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	query := `
		INSERT INTO notifications (user_id, title, message, type, related_slot_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_read, created_at
	`

	err := r.QueryRow(ctx, query, n.UserID, n.Title, n.Message, n.Type, n.RelatedSlotID).
		Scan(&n.ID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	return nil
}

// ListByUser получает последние уведомления пользователя
func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Notification, error) {
	query := `
		SELECT id, user_id, title, message, type, related_slot_id, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("get notifications: %w", err)
	}
	defer rows.Close()

	var result []*model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.RelatedSlotID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		result = append(result, &n)
	}

	return result, rows.Err()
}
