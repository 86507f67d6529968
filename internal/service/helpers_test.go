package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/Freeeeeet/trainer_booking/internal/repository/memory"
	"github.com/Freeeeeet/trainer_booking/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// monday 2024-06-03 09:00 UTC
var testNow = time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) ofType(t model.NotificationType) []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, n := range r.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type testEnv struct {
	ctx      context.Context
	store    *memory.Store
	repos    service.Repositories
	clock    *fakeClock
	notifier *recordingNotifier
	svc      *service.Services
	admin    *model.Client
	client   *model.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith позволяет подменить хранилища перед сборкой сервисов
func newTestEnvWith(t *testing.T, wrap func(*service.Repositories)) *testEnv {
	t.Helper()

	clock := &fakeClock{now: testNow}
	store := memory.NewStore(memory.WithClock(clock.Now))
	repos := service.Repositories{
		Tx:           store,
		Clients:      store.Clients(),
		Slots:        store.Slots(),
		Bookings:     store.Bookings(),
		Transactions: store.Transactions(),
	}
	if wrap != nil {
		wrap(&repos)
	}

	notifier := &recordingNotifier{}
	svc := service.New(service.Deps{
		Repos:    repos,
		Settings: store.Settings(),
		Notifier: notifier,
		Admins:   store.Clients(),
		Clock:    clock.Now,
	}, service.Options{TrainingDuration: time.Hour})

	env := &testEnv{
		ctx:      context.Background(),
		store:    store,
		repos:    repos,
		clock:    clock,
		notifier: notifier,
		svc:      svc,
	}

	var err error
	env.admin, err = svc.Clients.Create(env.ctx, service.NewClientInput{FullName: "Trainer", IsAdmin: true})
	require.NoError(t, err)
	env.client = env.newApprovedClient(t, "Anna")
	return env
}

func (e *testEnv) newApprovedClient(t *testing.T, name string) *model.Client {
	t.Helper()
	client, err := e.svc.Clients.Create(e.ctx, service.NewClientInput{FullName: name})
	require.NoError(t, err)
	require.NoError(t, e.svc.Clients.SetApproval(e.ctx, e.admin.ID, client.ID, model.ApprovalStatusApproved))
	return client
}

func (e *testEnv) newSlot(t *testing.T, start time.Time) *model.TrainingSlot {
	t.Helper()
	slot, err := e.svc.Slots.CreateSlot(e.ctx, start, start.Add(time.Hour), "")
	require.NoError(t, err)
	return slot
}

// bookedTraining заявка клиента, одобренная админом
func (e *testEnv) bookedTraining(t *testing.T, clientID int64, start time.Time) *model.Booking {
	t.Helper()
	slot := e.newSlot(t, start)
	booking, err := e.svc.Bookings.CreateBooking(e.ctx, clientID, slot.ID)
	require.NoError(t, err)
	booking, err = e.svc.Bookings.ApproveBooking(e.ctx, e.admin.ID, booking.ID)
	require.NoError(t, err)
	return booking
}

func (e *testEnv) balance(t *testing.T, clientID int64) decimal.Decimal {
	t.Helper()
	client, err := e.svc.Clients.Get(e.ctx, clientID)
	require.NoError(t, err)
	return client.Balance
}

func (e *testEnv) transactions(t *testing.T, clientID int64, types ...model.TransactionType) []*model.Transaction {
	t.Helper()
	page, err := e.svc.Ledger.ListTransactions(e.ctx, model.TransactionFilter{ClientID: clientID, Types: types})
	require.NoError(t, err)
	return page.Items
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
