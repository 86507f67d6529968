package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/Freeeeeet/trainer_booking/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transactionColumns = `id, client_id, amount, balance_after, type, note, booking_id, created_by, created_at`

// TransactionRepository хранит журнал списаний и пополнений.
// Только INSERT и SELECT: записи неизменяемы.
type TransactionRepository struct {
	*base.Repository
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{Repository: base.NewRepository(pool)}
}

// Create добавляет запись в журнал
func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) error {
	query := `
		INSERT INTO transactions (client_id, amount, balance_after, type, note, booking_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.QueryRow(
		ctx, query,
		txn.ClientID,
		txn.Amount,
		txn.BalanceAfter,
		txn.Type,
		txn.Note,
		txn.BookingID,
		txn.CreatedBy,
	).Scan(&txn.ID, &txn.CreatedAt)

	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}

	return nil
}

// List получает страницу журнала клиента (новые сверху) и общее количество записей
func (r *TransactionRepository) List(ctx context.Context, filter model.TransactionFilter) ([]*model.Transaction, int, error) {
	conditions := []string{"client_id = $1"}
	args := []any{filter.ClientID}

	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		conditions = append(conditions, fmt.Sprintf("type = ANY($%d)", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(
		`SELECT %s FROM transactions WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)-1, len(args),
	)

	txns, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	return txns, total, nil
}

// ListAllByClient получает весь журнал клиента в порядке создания
func (r *TransactionRepository) ListAllByClient(ctx context.Context, clientID int64) ([]*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE client_id = $1 ORDER BY id`
	return r.query(ctx, query, clientID)
}

func (r *TransactionRepository) query(ctx context.Context, query string, args ...any) ([]*model.Transaction, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}
	defer rows.Close()

	var txns []*model.Transaction
	for rows.Next() {
		var txn model.Transaction
		err := rows.Scan(
			&txn.ID,
			&txn.ClientID,
			&txn.Amount,
			&txn.BalanceAfter,
			&txn.Type,
			&txn.Note,
			&txn.BookingID,
			&txn.CreatedBy,
			&txn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, &txn)
	}

	return txns, rows.Err()
}
