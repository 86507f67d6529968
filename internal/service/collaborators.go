package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"go.uber.org/zap"
)

// Notifier доставляет уведомление пользователю
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// SettingsSource источник настроек штрафов. (nil, nil) - настройки не заданы.
type SettingsSource interface {
	FeeSettings(ctx context.Context) (*model.FeeSettings, error)
}

// AdminDirectory список администраторов для рассылки уведомлений
type AdminDirectory interface {
	ListAdminIDs(ctx context.Context) ([]int64, error)
}

// dispatcher отправляет уведомления после коммита. Ошибки только логируются.
type dispatcher struct {
	notifier Notifier
	admins   AdminDirectory
	logger   *zap.Logger
}

func (d *dispatcher) send(ctx context.Context, n model.Notification) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.logger.Warn("Failed to send notification",
			zap.Int64("user_id", n.UserID),
			zap.String("type", string(n.Type)),
			zap.Error(fmt.Errorf("%w: %v", ErrDownstream, err)),
		)
	}
}

func (d *dispatcher) sendToAdmins(ctx context.Context, n model.Notification) {
	if d.admins == nil {
		return
	}
	ids, err := d.admins.ListAdminIDs(ctx)
	if err != nil {
		d.logger.Warn("Failed to list admins for notification",
			zap.String("type", string(n.Type)),
			zap.Error(fmt.Errorf("%w: %v", ErrDownstream, err)),
		)
		return
	}
	for _, id := range ids {
		n.UserID = id
		d.send(ctx, n)
	}
}

// CachedSettings кэширует настройки на ttl. При ошибке источника возвращает
// последнее известное значение или значения по умолчанию.
type CachedSettings struct {
	source SettingsSource
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu        sync.Mutex
	value     *model.FeeSettings
	fetchedAt time.Time
}

func NewCachedSettings(source SettingsSource, ttl time.Duration, now func() time.Time, logger *zap.Logger) *CachedSettings {
	if now == nil {
		now = time.Now
	}
	return &CachedSettings{
		source: source,
		ttl:    ttl,
		now:    now,
		logger: logger,
	}
}

// Get возвращает действующие настройки, никогда не падает
func (c *CachedSettings) Get(ctx context.Context) model.FeeSettings {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.value != nil && now.Sub(c.fetchedAt) < c.ttl {
		return *c.value
	}

	fetched, err := c.source.FeeSettings(ctx)
	if err != nil {
		c.logger.Warn("Failed to fetch fee settings, using fallback",
			zap.Error(fmt.Errorf("%w: %v", ErrDownstream, err)),
		)
		if c.value != nil {
			return *c.value
		}
		return model.DefaultFeeSettings()
	}

	if fetched == nil {
		defaults := model.DefaultFeeSettings()
		fetched = &defaults
	}

	c.value = fetched
	c.fetchedAt = now
	return *fetched
}
