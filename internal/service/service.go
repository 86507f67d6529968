package service

import (
	"time"

	"go.uber.org/zap"
)

const (
	defaultTrainingDuration = time.Hour
	defaultSettingsTTL      = time.Minute
)

// Deps внешние зависимости сервисов
type Deps struct {
	Repos    Repositories
	Settings SettingsSource
	Notifier Notifier
	Admins   AdminDirectory
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Options параметры бизнес-логики
type Options struct {
	TrainingDuration time.Duration
	SettingsTTL      time.Duration
}

// Services все сервисы ядра бронирования
type Services struct {
	Ledger    *LedgerService
	Slots     *SlotService
	Bookings  *BookingService
	Proposals *ProposalService
	Clients   *ClientService
	Sweeper   *DeadlineSweeper
}

// New собирает сервисы из зависимостей
func New(deps Deps, opts Options) *Services {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.TrainingDuration <= 0 {
		opts.TrainingDuration = defaultTrainingDuration
	}
	if opts.SettingsTTL <= 0 {
		opts.SettingsTTL = defaultSettingsTTL
	}

	settings := NewCachedSettings(deps.Settings, opts.SettingsTTL, deps.Clock, deps.Logger)
	notify := &dispatcher{notifier: deps.Notifier, admins: deps.Admins, logger: deps.Logger}

	ledger := NewLedgerService(deps.Repos, deps.Logger)
	slots := NewSlotService(deps.Repos, deps.Clock, deps.Logger)
	bookings := NewBookingService(deps.Repos, ledger, slots, settings, notify, deps.Clock, deps.Logger)
	proposals := NewProposalService(deps.Repos, slots, settings, notify, opts.TrainingDuration, deps.Clock, deps.Logger)
	clients := NewClientService(deps.Repos, deps.Clock, deps.Logger)
	sweeper := NewDeadlineSweeper(deps.Repos.Bookings, proposals, notify, deps.Clock, deps.Logger)

	return &Services{
		Ledger:    ledger,
		Slots:     slots,
		Bookings:  bookings,
		Proposals: proposals,
		Clients:   clients,
		Sweeper:   sweeper,
	}
}
