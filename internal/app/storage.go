package app

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/trainer_booking/internal/config"
	"github.com/Freeeeeet/trainer_booking/internal/notify"
	"github.com/Freeeeeet/trainer_booking/internal/repository"
	"github.com/Freeeeeet/trainer_booking/internal/repository/base"
	"github.com/Freeeeeet/trainer_booking/internal/repository/memory"
	"github.com/Freeeeeet/trainer_booking/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type adminClients interface {
	service.ClientRepository
	service.AdminDirectory
	notify.ChatDirectory
}

// Storage хранилища, выбранные конфигурацией
type Storage struct {
	Repos    service.Repositories
	Clients  adminClients
	Settings service.SettingsSource
	Inbox    notify.InboxStore
	close    func()
}

func (s *Storage) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStorage открывает PostgreSQL (с миграциями) или in-memory хранилище
func OpenStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Storage, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		return memoryStorage(memory.NewStore()), nil
	}

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	clients := repository.NewClientRepository(pool)
	return &Storage{
		Repos: service.Repositories{
			Tx:           base.NewTxManager(pool),
			Clients:      clients,
			Slots:        repository.NewSlotRepository(pool),
			Bookings:     repository.NewBookingRepository(pool),
			Transactions: repository.NewTransactionRepository(pool),
		},
		Clients:  clients,
		Settings: repository.NewSettingsRepository(pool),
		Inbox:    repository.NewNotificationRepository(pool),
		close:    pool.Close,
	}, nil
}

func memoryStorage(store *memory.Store) *Storage {
	return &Storage{
		Repos: service.Repositories{
			Tx:           store,
			Clients:      store.Clients(),
			Slots:        store.Slots(),
			Bookings:     store.Bookings(),
			Transactions: store.Transactions(),
		},
		Clients:  store.Clients(),
		Settings: store.Settings(),
		Inbox:    store.Notifications(),
	}
}

func migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	migrator, err := NewMigrator(pool, logger)
	if err != nil {
		return err
	}
	defer migrator.Close()
	return migrator.Run(ctx)
}
