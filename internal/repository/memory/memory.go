// Package memory хранилище в памяти с теми же контрактами, что и Postgres.
// Используется в тестах и при STORAGE=memory.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/Freeeeeet/trainer_booking/internal/repository"
	"github.com/shopspring/decimal"
)

var errClientMissing = errors.New("client not found")

type txKey struct{}

type state struct {
	users         map[int64]model.Client
	slots         map[int64]model.TrainingSlot
	bookings      map[int64]model.Booking
	transactions  []model.Transaction
	notifications []model.Notification
	settings      *model.FeeSettings
	seq           int64
}

func (s *state) clone() *state {
	c := &state{
		users:         make(map[int64]model.Client, len(s.users)),
		slots:         make(map[int64]model.TrainingSlot, len(s.slots)),
		bookings:      make(map[int64]model.Booking, len(s.bookings)),
		transactions:  append([]model.Transaction(nil), s.transactions...),
		notifications: append([]model.Notification(nil), s.notifications...),
		settings:      s.settings,
		seq:           s.seq,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	return c
}

// Store все таблицы под одним мьютексом. Транзакция держит мьютекс целиком
// и откатывается к снимку при ошибке.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

type Option func(*Store)

// WithClock задаёт время для created_at/updated_at
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		st: &state{
			users:    make(map[int64]model.Client),
			slots:    make(map[int64]model.TrainingSlot),
			bookings: make(map[int64]model.Booking),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithinTx выполняет fn атомарно. Вложенный вызов присоединяется к внешней транзакции.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock берёт мьютекс вне транзакции. Внутри транзакции он уже удерживается.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) nextID() int64 {
	s.st.seq++
	return s.st.seq
}

func (s *Store) Clients() *ClientRepository             { return &ClientRepository{s} }
func (s *Store) Slots() *SlotRepository                 { return &SlotRepository{s} }
func (s *Store) Bookings() *BookingRepository           { return &BookingRepository{s} }
func (s *Store) Transactions() *TransactionRepository   { return &TransactionRepository{s} }
func (s *Store) Notifications() *NotificationRepository { return &NotificationRepository{s} }
func (s *Store) Settings() *SettingsRepository          { return &SettingsRepository{s} }

// ----------------------------------------------------------------------------
// clients

type ClientRepository struct{ s *Store }

func (r *ClientRepository) Create(ctx context.Context, client *model.Client) error {
	defer r.s.lock(ctx)()

	client.ID = r.s.nextID()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = r.s.now()
	}
	r.s.st.users[client.ID] = *client
	return nil
}

func (r *ClientRepository) GetByID(ctx context.Context, id int64) (*model.Client, error) {
	defer r.s.lock(ctx)()

	c, ok := r.s.st.users[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// GetForUpdate то же, что GetByID: транзакция и так держит весь стор
func (r *ClientRepository) GetForUpdate(ctx context.Context, id int64) (*model.Client, error) {
	return r.GetByID(ctx, id)
}

func (r *ClientRepository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	defer r.s.lock(ctx)()

	c, ok := r.s.st.users[id]
	if !ok {
		return errClientMissing
	}
	c.Balance = balance
	r.s.st.users[id] = c
	return nil
}

func (r *ClientRepository) UpdateApproval(ctx context.Context, id int64, status model.ApprovalStatus) (bool, error) {
	defer r.s.lock(ctx)()

	c, ok := r.s.st.users[id]
	if !ok {
		return false, nil
	}
	c.ApprovalStatus = status
	r.s.st.users[id] = c
	return true, nil
}

func (r *ClientRepository) UpdateType(ctx context.Context, id int64, clientType model.ClientType) (bool, error) {
	defer r.s.lock(ctx)()

	c, ok := r.s.st.users[id]
	if !ok {
		return false, nil
	}
	c.ClientType = clientType
	r.s.st.users[id] = c
	return true, nil
}

func (r *ClientRepository) ListAdminIDs(ctx context.Context) ([]int64, error) {
	defer r.s.lock(ctx)()

	var ids []int64
	for id, c := range r.s.st.users {
		if c.IsAdmin {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ----------------------------------------------------------------------------
// slots

type SlotRepository struct{ s *Store }

func (r *SlotRepository) Create(ctx context.Context, slot *model.TrainingSlot) error {
	defer r.s.lock(ctx)()

	slot.ID = r.s.nextID()
	slot.CreatedAt = r.s.now()
	r.s.st.slots[slot.ID] = *slot
	return nil
}

func (r *SlotRepository) GetByID(ctx context.Context, id int64) (*model.TrainingSlot, error) {
	defer r.s.lock(ctx)()

	slot, ok := r.s.st.slots[id]
	if !ok {
		return nil, nil
	}
	return &slot, nil
}

func (r *SlotRepository) SetAvailability(ctx context.Context, id int64, available bool) error {
	defer r.s.lock(ctx)()

	if slot, ok := r.s.st.slots[id]; ok {
		slot.IsAvailable = available
		r.s.st.slots[id] = slot
	}
	return nil
}

// Delete удаляет слот, у ссылающихся бронирований slot_id становится nil (ON DELETE SET NULL)
func (r *SlotRepository) Delete(ctx context.Context, id int64) (bool, error) {
	defer r.s.lock(ctx)()

	if _, ok := r.s.st.slots[id]; !ok {
		return false, nil
	}
	delete(r.s.st.slots, id)
	for bid, b := range r.s.st.bookings {
		if b.SlotID != nil && *b.SlotID == id {
			b.SlotID = nil
			r.s.st.bookings[bid] = b
		}
	}
	return true, nil
}

func (r *SlotRepository) ListInRange(ctx context.Context, from, to time.Time) ([]*model.SlotWithBooking, error) {
	defer r.s.lock(ctx)()

	var result []*model.SlotWithBooking
	for _, slot := range r.s.st.slots {
		if !slot.Overlaps(from, to) {
			continue
		}
		slot := slot
		item := &model.SlotWithBooking{Slot: &slot}

		if b := r.s.currentBooking(slot.ID); b != nil {
			id, status, clientID := b.ID, b.Status, b.ClientID
			item.BookingID = &id
			item.Status = &status
			item.ClientID = &clientID
			if c, ok := r.s.st.users[clientID]; ok {
				name := c.FullName
				item.ClientName = &name
			}
		}
		result = append(result, item)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Slot.StartTime.Before(result[j].Slot.StartTime)
	})
	return result, nil
}

// currentBooking активное бронирование слота, иначе самое позднее
func (s *Store) currentBooking(slotID int64) *model.Booking {
	var best *model.Booking
	for _, b := range s.st.bookings {
		if b.SlotID == nil || *b.SlotID != slotID {
			continue
		}
		b := b
		switch {
		case best == nil:
			best = &b
		case b.Status.IsActive() != best.Status.IsActive():
			if b.Status.IsActive() {
				best = &b
			}
		case b.ID > best.ID:
			best = &b
		}
	}
	return best
}

// ----------------------------------------------------------------------------
// bookings

type BookingRepository struct{ s *Store }

// Create повторяет частичный уникальный индекс: одно активное бронирование на слот
func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	defer r.s.lock(ctx)()

	if booking.SlotID != nil && booking.Status.IsActive() && r.s.hasActive(*booking.SlotID) {
		return repository.ErrDuplicate
	}

	now := r.s.now()
	booking.ID = r.s.nextID()
	booking.LastReminderTier = model.ReminderTierNone
	booking.CreatedAt = now
	booking.UpdatedAt = now

	stored := *booking
	stored.SlotStart, stored.SlotEnd = nil, nil
	r.s.st.bookings[booking.ID] = stored
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	defer r.s.lock(ctx)()

	b, ok := r.s.st.bookings[id]
	if !ok {
		return nil, nil
	}
	return r.s.joined(b), nil
}

func (r *BookingRepository) HasActiveForSlot(ctx context.Context, slotID int64) (bool, error) {
	defer r.s.lock(ctx)()
	return r.s.hasActive(slotID), nil
}

func (r *BookingRepository) ApplyStatusChange(ctx context.Context, change model.StatusChange) (bool, error) {
	defer r.s.lock(ctx)()

	b, ok := r.s.st.bookings[change.BookingID]
	if !ok || !statusIn(b.Status, change.From) {
		return false, nil
	}
	if change.BeforeDeadline != nil && b.ConfirmationDeadline != nil && !b.ConfirmationDeadline.After(*change.BeforeDeadline) {
		return false, nil
	}
	if change.DeadlineReached != nil && (b.ConfirmationDeadline == nil || b.ConfirmationDeadline.After(*change.DeadlineReached)) {
		return false, nil
	}

	b.Status = change.To
	if change.CancellationFee != nil {
		b.CancellationFee = decimal.NewNullDecimal(*change.CancellationFee)
	}
	if change.CancelledAt != nil {
		at := *change.CancelledAt
		b.CancelledAt = &at
	}
	if change.CancellationReason != nil {
		reason := *change.CancellationReason
		b.CancellationReason = &reason
	}
	b.UpdatedAt = r.s.now()
	r.s.st.bookings[b.ID] = b
	return true, nil
}

func (r *BookingRepository) ListByClient(ctx context.Context, clientID int64) ([]*model.Booking, error) {
	defer r.s.lock(ctx)()

	var result []*model.Booking
	for _, b := range r.s.st.bookings {
		if b.ClientID == clientID {
			result = append(result, r.s.joined(b))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		switch {
		case a.SlotStart == nil && b.SlotStart == nil:
			return a.CreatedAt.After(b.CreatedAt) || (a.CreatedAt.Equal(b.CreatedAt) && a.ID > b.ID)
		case a.SlotStart == nil:
			return false
		case b.SlotStart == nil:
			return true
		case !a.SlotStart.Equal(*b.SlotStart):
			return a.SlotStart.Before(*b.SlotStart)
		default:
			return a.ID > b.ID
		}
	})
	return result, nil
}

func (r *BookingRepository) ListOverlapping(ctx context.Context, statuses []model.BookingStatus, from, to time.Time) ([]*model.Booking, error) {
	defer r.s.lock(ctx)()

	var result []*model.Booking
	for _, b := range r.s.st.bookings {
		if !statusIn(b.Status, statuses) {
			continue
		}
		joined := r.s.joined(b)
		if joined.SlotStart == nil || !joined.SlotStart.Before(to) || !joined.SlotEnd.After(from) {
			continue
		}
		result = append(result, joined)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].SlotStart.Before(*result[j].SlotStart) })
	return result, nil
}

func (r *BookingRepository) ListAwaitingWithDeadline(ctx context.Context) ([]*model.Booking, error) {
	defer r.s.lock(ctx)()

	var result []*model.Booking
	for _, b := range r.s.st.bookings {
		if b.Status == model.BookingStatusAwaitingConfirmation && b.ConfirmationDeadline != nil {
			result = append(result, r.s.joined(b))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ConfirmationDeadline.Before(*result[j].ConfirmationDeadline)
	})
	return result, nil
}

func (r *BookingRepository) AdvanceReminderTier(ctx context.Context, id int64, tier model.ReminderTier) (bool, error) {
	defer r.s.lock(ctx)()

	b, ok := r.s.st.bookings[id]
	if !ok || b.Status != model.BookingStatusAwaitingConfirmation || b.LastReminderTier.Rank() >= tier.Rank() {
		return false, nil
	}
	b.LastReminderTier = tier
	r.s.st.bookings[id] = b
	return true, nil
}

func (s *Store) hasActive(slotID int64) bool {
	for _, b := range s.st.bookings {
		if b.SlotID != nil && *b.SlotID == slotID && b.Status.IsActive() {
			return true
		}
	}
	return false
}

// joined копия бронирования с временем слота, как после LEFT JOIN
func (s *Store) joined(b model.Booking) *model.Booking {
	if b.SlotID != nil {
		if slot, ok := s.st.slots[*b.SlotID]; ok {
			start, end := slot.StartTime, slot.EndTime
			b.SlotStart = &start
			b.SlotEnd = &end
		}
	}
	return &b
}

func statusIn(status model.BookingStatus, set []model.BookingStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

// ----------------------------------------------------------------------------
// transactions

type TransactionRepository struct{ s *Store }

func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.st.users[txn.ClientID]; !ok {
		return errClientMissing
	}
	txn.ID = r.s.nextID()
	txn.CreatedAt = r.s.now()
	r.s.st.transactions = append(r.s.st.transactions, *txn)
	return nil
}

func (r *TransactionRepository) List(ctx context.Context, filter model.TransactionFilter) ([]*model.Transaction, int, error) {
	defer r.s.lock(ctx)()

	var matched []*model.Transaction
	for i := len(r.s.st.transactions) - 1; i >= 0; i-- {
		txn := r.s.st.transactions[i]
		if txn.ClientID != filter.ClientID {
			continue
		}
		if len(filter.Types) > 0 && !typeIn(txn.Type, filter.Types) {
			continue
		}
		if filter.From != nil && txn.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !txn.CreatedAt.Before(*filter.To) {
			continue
		}
		matched = append(matched, &txn)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	if filter.Offset >= total {
		return []*model.Transaction{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < total {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

func (r *TransactionRepository) ListAllByClient(ctx context.Context, clientID int64) ([]*model.Transaction, error) {
	defer r.s.lock(ctx)()

	var result []*model.Transaction
	for _, txn := range r.s.st.transactions {
		if txn.ClientID == clientID {
			txn := txn
			result = append(result, &txn)
		}
	}
	return result, nil
}

func typeIn(t model.TransactionType, set []model.TransactionType) bool {
	for _, s := range set {
		if s == t {
			return true
		}
	}
	return false
}

// ----------------------------------------------------------------------------
// notifications & settings

type NotificationRepository struct{ s *Store }

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	defer r.s.lock(ctx)()

	n.ID = r.s.nextID()
	n.CreatedAt = r.s.now()
	r.s.st.notifications = append(r.s.st.notifications, *n)
	return nil
}

// ListByUser уведомления пользователя, новые сверху
func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Notification, error) {
	defer r.s.lock(ctx)()

	var result []*model.Notification
	for i := len(r.s.st.notifications) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		n := r.s.st.notifications[i]
		if n.UserID == userID {
			result = append(result, &n)
		}
	}
	return result, nil
}

type SettingsRepository struct{ s *Store }

// FeeSettings (nil, nil) пока настройки не заданы
func (r *SettingsRepository) FeeSettings(ctx context.Context) (*model.FeeSettings, error) {
	defer r.s.lock(ctx)()

	if r.s.st.settings == nil {
		return nil, nil
	}
	fs := *r.s.st.settings
	return &fs, nil
}

// Set заменяет настройки
func (r *SettingsRepository) Set(ctx context.Context, fs model.FeeSettings) {
	defer r.s.lock(ctx)()
	r.s.st.settings = &fs
}
