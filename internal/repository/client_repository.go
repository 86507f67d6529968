package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/Freeeeeet/trainer_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const clientColumns = `id, telegram_id, full_name, is_admin, balance, client_type, approval_status, created_at`

type ClientRepository struct {
	*base.Repository
}

func NewClientRepository(pool *pgxpool.Pool) *ClientRepository {
	return &ClientRepository{Repository: base.NewRepository(pool)}
}

// Create создаёт нового клиента
func (r *ClientRepository) Create(ctx context.Context, client *model.Client) error {
	query := `
		INSERT INTO users (telegram_id, full_name, is_admin, balance, client_type, approval_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.QueryRow(
		ctx, query,
		client.TelegramID,
		client.FullName,
		client.IsAdmin,
		client.Balance,
		client.ClientType,
		client.ApprovalStatus,
	).Scan(&client.ID, &client.CreatedAt)

	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	return nil
}

// GetByID получает клиента по ID
func (r *ClientRepository) GetByID(ctx context.Context, id int64) (*model.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM users WHERE id = $1`

	client, err := scanClient(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get client by id: %w", err)
	}

	return client, nil
}

// GetForUpdate получает клиента и блокирует строку до конца транзакции
func (r *ClientRepository) GetForUpdate(ctx context.Context, id int64) (*model.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM users WHERE id = $1 FOR UPDATE`

	client, err := scanClient(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock client: %w", err)
	}

	return client, nil
}

// UpdateBalance записывает новый баланс
func (r *ClientRepository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	query := `UPDATE users SET balance = $1 WHERE id = $2`

	affected, err := r.ExecAffected(ctx, query, balance, id)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("client not found")
	}

	return nil
}

// UpdateApproval меняет статус одобрения клиента
func (r *ClientRepository) UpdateApproval(ctx context.Context, id int64, status model.ApprovalStatus) (bool, error) {
	affected, err := r.ExecAffected(ctx, `UPDATE users SET approval_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return false, fmt.Errorf("update approval status: %w", err)
	}
	return affected > 0, nil
}

// UpdateType меняет тип клиента
func (r *ClientRepository) UpdateType(ctx context.Context, id int64, clientType model.ClientType) (bool, error) {
	affected, err := r.ExecAffected(ctx, `UPDATE users SET client_type = $1 WHERE id = $2`, clientType, id)
	if err != nil {
		return false, fmt.Errorf("update client type: %w", err)
	}
	return affected > 0, nil
}

// ListAdminIDs возвращает ID всех администраторов
func (r *ClientRepository) ListAdminIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.Query(ctx, `SELECT id FROM users WHERE is_admin ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan admin id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func scanClient(row pgx.Row) (*model.Client, error) {
	var client model.Client
	err := row.Scan(
		&client.ID,
		&client.TelegramID,
		&client.FullName,
		&client.IsAdmin,
		&client.Balance,
		&client.ClientType,
		&client.ApprovalStatus,
		&client.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &client, nil
}
