package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/Freeeeeet/trainer_booking/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type flakySettings struct {
	value *model.FeeSettings
	err   error
	calls int
}

func (f *flakySettings) FeeSettings(context.Context) (*model.FeeSettings, error) {
	f.calls++
	return f.value, f.err
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, model.Notification) error {
	return errors.New("telegram is down")
}

func TestCachedSettings_TTLAndFallback(t *testing.T) {
	clock := &fakeClock{now: testNow}
	source := &flakySettings{value: &model.FeeSettings{
		CancelFee24h: dec("90"),
		CancelFee48h: dec("40"),
		DefaultPrice: dec("30"),
	}}
	cache := service.NewCachedSettings(source, time.Minute, clock.Now, zap.NewNop())
	ctx := context.Background()

	assert.True(t, dec("30").Equal(cache.Get(ctx).DefaultPrice))
	assert.True(t, dec("30").Equal(cache.Get(ctx).DefaultPrice))
	assert.Equal(t, 1, source.calls, "second read served from cache")

	// источник упал: последнее известное значение
	source.err = errors.New("db down")
	clock.Set(testNow.Add(2 * time.Minute))
	assert.True(t, dec("90").Equal(cache.Get(ctx).CancelFee24h))
	assert.Equal(t, 2, source.calls)
}

func TestCachedSettings_DefaultsWhenNothingKnown(t *testing.T) {
	ctx := context.Background()

	failing := service.NewCachedSettings(&flakySettings{err: errors.New("db down")}, time.Minute, nil, zap.NewNop())
	assert.Equal(t, model.DefaultFeeSettings(), failing.Get(ctx))

	empty := service.NewCachedSettings(&flakySettings{}, time.Minute, nil, zap.NewNop())
	assert.Equal(t, model.DefaultFeeSettings(), empty.Get(ctx))
}

func TestNotificationFailureDoesNotBreakTransition(t *testing.T) {
	env := newTestEnv(t)
	svc := service.New(service.Deps{
		Repos:    env.repos,
		Settings: env.store.Settings(),
		Notifier: failingNotifier{},
		Admins:   env.store.Clients(),
		Clock:    env.clock.Now,
	}, service.Options{})

	slot := env.newSlot(t, testNow.Add(48*time.Hour))
	booking, err := svc.Bookings.CreateBooking(env.ctx, env.client.ID, slot.ID)
	require.NoError(t, err)

	approved, err := svc.Bookings.ApproveBooking(env.ctx, env.admin.ID, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusBooked, approved.Status)
}
