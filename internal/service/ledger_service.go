package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultTransactionsLimit = 50
	maxTransactionsLimit     = 200
)

// Charge одно изменение баланса. Amount со знаком: минус - списание.
type Charge struct {
	ClientID  int64
	Amount    decimal.Decimal
	Type      model.TransactionType
	Note      string
	BookingID *int64
	CreatedBy *int64
}

// BalanceReport результат сверки баланса с журналом
type BalanceReport struct {
	ClientID     int64           `json:"client_id"`
	Stored       decimal.Decimal `json:"stored"`
	Replayed     decimal.Decimal `json:"replayed"`
	Transactions int             `json:"transactions"`
	Consistent   bool            `json:"consistent"`
}

// TransactionPage страница журнала
type TransactionPage struct {
	Items  []*model.Transaction `json:"items"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// LedgerService единственное место, где меняется баланс клиента
type LedgerService struct {
	tx           Transactor
	clients      ClientRepository
	transactions TransactionRepository
	logger       *zap.Logger
}

func NewLedgerService(repos Repositories, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		tx:           repos.Tx,
		clients:      repos.Clients,
		transactions: repos.Transactions,
		logger:       logger,
	}
}

// ApplyCharge атомарно меняет баланс и пишет запись в журнал с balance_after.
// Строка клиента блокируется до конца транзакции, параллельные списания не теряются.
func (s *LedgerService) ApplyCharge(ctx context.Context, charge Charge) (*model.Transaction, error) {
	if charge.Amount.IsZero() {
		return nil, ErrZeroAmount
	}
	if !charge.Type.Valid() {
		return nil, ErrUnknownTxType
	}

	var txn *model.Transaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		client, err := s.clients.GetForUpdate(ctx, charge.ClientID)
		if err != nil {
			return fmt.Errorf("get client: %w", err)
		}
		if client == nil {
			return ErrClientNotFound
		}

		balance := client.Balance.Add(charge.Amount)
		if err := s.clients.UpdateBalance(ctx, client.ID, balance); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		txn = &model.Transaction{
			ClientID:     client.ID,
			Amount:       charge.Amount,
			BalanceAfter: balance,
			Type:         charge.Type,
			Note:         charge.Note,
			BookingID:    charge.BookingID,
			CreatedBy:    charge.CreatedBy,
		}
		if err := s.transactions.Create(ctx, txn); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Balance changed",
		zap.Int64("client_id", txn.ClientID),
		zap.String("amount", txn.Amount.StringFixed(2)),
		zap.String("balance_after", txn.BalanceAfter.StringFixed(2)),
		zap.String("type", string(txn.Type)),
	)

	return txn, nil
}

// Deposit пополнение баланса
func (s *LedgerService) Deposit(ctx context.Context, adminID, clientID int64, amount decimal.Decimal, note string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	return s.ApplyCharge(ctx, Charge{
		ClientID:  clientID,
		Amount:    amount,
		Type:      model.TransactionTypeDeposit,
		Note:      note,
		CreatedBy: &adminID,
	})
}

// Adjust ручная корректировка в любую сторону
func (s *LedgerService) Adjust(ctx context.Context, adminID, clientID int64, amount decimal.Decimal, note string) (*model.Transaction, error) {
	return s.ApplyCharge(ctx, Charge{
		ClientID:  clientID,
		Amount:    amount,
		Type:      model.TransactionTypeManualAdjustment,
		Note:      note,
		CreatedBy: &adminID,
	})
}

// GrantReferralBonus начисляет бонус за приглашённого клиента
func (s *LedgerService) GrantReferralBonus(ctx context.Context, adminID, clientID int64, amount decimal.Decimal, note string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	return s.ApplyCharge(ctx, Charge{
		ClientID:  clientID,
		Amount:    amount,
		Type:      model.TransactionTypeReferralBonus,
		Note:      note,
		CreatedBy: &adminID,
	})
}

// VerifyBalance суммирует журнал в порядке создания и сравнивает с сохранённым балансом
func (s *LedgerService) VerifyBalance(ctx context.Context, clientID int64) (*BalanceReport, error) {
	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if client == nil {
		return nil, ErrClientNotFound
	}

	txns, err := s.transactions.ListAllByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	replayed := decimal.Zero
	consistent := true
	for _, txn := range txns {
		replayed = replayed.Add(txn.Amount)
		if !replayed.Equal(txn.BalanceAfter) {
			consistent = false
		}
	}
	if !replayed.Equal(client.Balance) {
		consistent = false
	}

	if !consistent {
		s.logger.Error("Balance drift detected",
			zap.Int64("client_id", clientID),
			zap.String("stored", client.Balance.StringFixed(2)),
			zap.String("replayed", replayed.StringFixed(2)),
		)
	}

	return &BalanceReport{
		ClientID:     clientID,
		Stored:       client.Balance,
		Replayed:     replayed,
		Transactions: len(txns),
		Consistent:   consistent,
	}, nil
}

// ListTransactions страница журнала клиента с фильтром по типу и дате
func (s *LedgerService) ListTransactions(ctx context.Context, filter model.TransactionFilter) (*TransactionPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultTransactionsLimit
	}
	if filter.Limit > maxTransactionsLimit {
		filter.Limit = maxTransactionsLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return nil, ErrInvalidTimeRange
	}
	for _, t := range filter.Types {
		if !t.Valid() {
			return nil, ErrUnknownTxType
		}
	}

	client, err := s.clients.GetByID(ctx, filter.ClientID)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if client == nil {
		return nil, ErrClientNotFound
	}

	items, total, err := s.transactions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if items == nil {
		items = []*model.Transaction{}
	}

	return &TransactionPage{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
