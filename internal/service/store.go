package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/shopspring/decimal"
)

// Transactor выполняет fn атомарно. Вложенные вызовы присоединяются к внешней транзакции.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ClientRepository interface {
	Create(ctx context.Context, client *model.Client) error
	GetByID(ctx context.Context, id int64) (*model.Client, error)
	GetForUpdate(ctx context.Context, id int64) (*model.Client, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	UpdateApproval(ctx context.Context, id int64, status model.ApprovalStatus) (bool, error)
	UpdateType(ctx context.Context, id int64, clientType model.ClientType) (bool, error)
}

type SlotRepository interface {
	Create(ctx context.Context, slot *model.TrainingSlot) error
	GetByID(ctx context.Context, id int64) (*model.TrainingSlot, error)
	SetAvailability(ctx context.Context, id int64, available bool) error
	Delete(ctx context.Context, id int64) (bool, error)
	ListInRange(ctx context.Context, from, to time.Time) ([]*model.SlotWithBooking, error)
}

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, id int64) (*model.Booking, error)
	HasActiveForSlot(ctx context.Context, slotID int64) (bool, error)
	ApplyStatusChange(ctx context.Context, change model.StatusChange) (bool, error)
	ListByClient(ctx context.Context, clientID int64) ([]*model.Booking, error)
	ListOverlapping(ctx context.Context, statuses []model.BookingStatus, from, to time.Time) ([]*model.Booking, error)
	ListAwaitingWithDeadline(ctx context.Context) ([]*model.Booking, error)
	AdvanceReminderTier(ctx context.Context, id int64, tier model.ReminderTier) (bool, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) error
	List(ctx context.Context, filter model.TransactionFilter) ([]*model.Transaction, int, error)
	ListAllByClient(ctx context.Context, clientID int64) ([]*model.Transaction, error)
}

// Repositories набор хранилищ, общий для всех сервисов
type Repositories struct {
	Tx           Transactor
	Clients      ClientRepository
	Slots        SlotRepository
	Bookings     BookingRepository
	Transactions TransactionRepository
}
