package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/api"
	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/Freeeeeet/trainer_booking/internal/repository/memory"
	"github.com/Freeeeeet/trainer_booking/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)

type testServer struct {
	t      *testing.T
	router http.Handler
	svc    *service.Services
	admin  *model.Client
	client *model.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := func() time.Time { return now }
	store := memory.NewStore(memory.WithClock(clock))
	svc := service.New(service.Deps{
		Repos: service.Repositories{
			Tx:           store,
			Clients:      store.Clients(),
			Slots:        store.Slots(),
			Bookings:     store.Bookings(),
			Transactions: store.Transactions(),
		},
		Settings: store.Settings(),
		Admins:   store.Clients(),
		Clock:    clock,
	}, service.Options{})

	ctx := context.Background()
	admin, err := svc.Clients.Create(ctx, service.NewClientInput{FullName: "Trainer", IsAdmin: true})
	require.NoError(t, err)
	client, err := svc.Clients.Create(ctx, service.NewClientInput{FullName: "Anna"})
	require.NoError(t, err)
	require.NoError(t, svc.Clients.SetApproval(ctx, admin.ID, client.ID, model.ApprovalStatusApproved))

	h := api.NewHandler(svc, zap.NewNop())
	return &testServer{
		t:      t,
		router: api.NewRouter(h, []string{"*"}),
		svc:    svc,
		admin:  admin,
		client: client,
	}
}

func (s *testServer) do(method, path string, actor int64, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(actor, 10))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) slot(start time.Time) *model.TrainingSlot {
	s.t.Helper()
	slot, err := s.svc.Slots.CreateSlot(context.Background(), start, start.Add(time.Hour), "")
	require.NoError(s.t, err)
	return slot
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingActor(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/slots?from=2024-06-03&to=2024-06-10", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBookingFlow(t *testing.T) {
	s := newTestServer(t)
	slot := s.slot(now.Add(72 * time.Hour))

	rec := s.do(http.MethodPost, "/api/bookings", s.client.ID, map[string]any{"slot_id": slot.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booking := decode[model.Booking](t, rec)
	assert.Equal(t, model.BookingStatusPending, booking.Status)

	rec = s.do(http.MethodPost, "/api/bookings", s.client.ID, map[string]any{"slot_id": slot.ID})
	assert.Equal(t, http.StatusConflict, rec.Code, "slot already taken")

	path := "/api/bookings/" + strconv.FormatInt(booking.ID, 10)

	rec = s.do(http.MethodPost, path+"/approve", s.client.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, path+"/approve", s.admin.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.BookingStatusBooked, decode[model.Booking](t, rec).Status)

	rec = s.do(http.MethodPost, path+"/complete", s.admin.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/clients/"+strconv.FormatInt(s.client.ID, 10), s.client.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	client := decode[model.Client](t, rec)
	assert.True(t, client.Balance.Equal(decimal.NewFromInt(-25)), client.Balance.String())
}

func TestCancelWithOverride(t *testing.T) {
	s := newTestServer(t)
	slot := s.slot(now.Add(72 * time.Hour))

	booking, err := s.svc.Bookings.AssignBooking(context.Background(), s.admin.ID, s.client.ID, slot.ID)
	require.NoError(t, err)
	_, err = s.svc.Proposals.ConfirmProposal(context.Background(), s.client.ID, booking.ID)
	require.NoError(t, err)

	path := "/api/bookings/" + strconv.FormatInt(booking.ID, 10) + "/cancel"

	rec := s.do(http.MethodPost, path, s.admin.ID, map[string]any{"fee_percent": 30})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, path, s.client.ID, map[string]any{"fee_percent": 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "override is admin only")

	rec = s.do(http.MethodPost, path, s.admin.ID, map[string]any{"fee_percent": 50})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[model.Booking](t, rec)
	assert.Equal(t, model.BookingStatusCancelled, cancelled.Status)
	require.True(t, cancelled.CancellationFee.Valid)
	assert.True(t, cancelled.CancellationFee.Decimal.Equal(decimal.RequireFromString("12.5")))
}

func TestProposalEndpoints(t *testing.T) {
	s := newTestServer(t)

	body := map[string]any{
		"client_id":  s.client.ID,
		"selections": []map[string]int{{"weekday": 2, "hour": 18, "minute": 0}},
		"weeks":      2,
	}
	rec := s.do(http.MethodPost, "/api/proposals/batch", s.client.ID, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/api/proposals/batch", s.admin.ID, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[service.ProposalResult](t, rec)
	require.Len(t, result.Created, 2)

	first := result.Created[0].ID
	rec = s.do(http.MethodPost, "/api/proposals/"+strconv.FormatInt(first, 10)+"/confirm", s.client.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/proposals/confirm-all", s.client.ID,
		map[string]any{"booking_ids": []int64{first, result.Created[1].ID}})
	require.Equal(t, http.StatusOK, rec.Code)
	outcomes := decode[[]service.ConfirmOutcome](t, rec)
	require.Len(t, outcomes, 2)
	assert.NotEmpty(t, outcomes[0].Error, "already confirmed")
	assert.Empty(t, outcomes[1].Error)

	rec = s.do(http.MethodPost, "/api/proposals/batch", s.admin.ID, body)
	assert.Equal(t, http.StatusConflict, rec.Code, "same slots conflict without skip")
}

func TestProposalValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/proposals/batch", s.admin.ID, map[string]any{
		"client_id":  s.client.ID,
		"selections": []map[string]int{{"weekday": 9, "hour": 18}},
		"weeks":      1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/proposals/batch", s.admin.ID, map[string]any{
		"client_id":  s.client.ID,
		"selections": []map[string]int{{"weekday": 1, "hour": 18}},
		"weeks":      3,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLedgerEndpoints(t *testing.T) {
	s := newTestServer(t)
	base := "/api/clients/" + strconv.FormatInt(s.client.ID, 10)

	rec := s.do(http.MethodPost, base+"/deposits", s.client.ID, map[string]any{"amount": "50"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, base+"/deposits", s.admin.ID, map[string]any{"amount": "50", "note": "cash"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, base+"/deposits", s.admin.ID, map[string]any{"amount": "-5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, base+"/adjustments", s.admin.ID, map[string]any{"amount": "-7.5"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, base+"/transactions?type=deposit", s.client.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[service.TransactionPage](t, rec)
	assert.Equal(t, 1, page.Total)

	rec = s.do(http.MethodGet, base+"/transactions?type=bogus", s.client.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, base+"/balance/verify", s.admin.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[service.BalanceReport](t, rec)
	assert.True(t, report.Consistent)
	assert.True(t, report.Stored.Equal(decimal.RequireFromString("42.5")))
}

func TestClientDataIsPrivate(t *testing.T) {
	s := newTestServer(t)
	other, err := s.svc.Clients.Create(context.Background(), service.NewClientInput{FullName: "Boris"})
	require.NoError(t, err)

	rec := s.do(http.MethodGet, "/api/clients/"+strconv.FormatInt(s.client.ID, 10)+"/transactions", other.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/clients/"+strconv.FormatInt(s.client.ID, 10)+"/bookings", s.admin.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/clients/9999", s.admin.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSlotsEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/slots", s.admin.ID, map[string]any{
		"start": now.Add(24 * time.Hour),
		"end":   now.Add(23 * time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/slots", s.admin.ID, map[string]any{
		"start": now.Add(24 * time.Hour),
		"end":   now.Add(25 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	slot := decode[model.TrainingSlot](t, rec)

	rec = s.do(http.MethodGet, "/api/slots?from=2024-06-03&to=2024-06-10", s.client.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.SlotWithBooking](t, rec), 1)

	rec = s.do(http.MethodDelete, "/api/slots/"+strconv.FormatInt(slot.ID, 10), s.admin.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodDelete, "/api/slots/"+strconv.FormatInt(slot.ID, 10), s.admin.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSweepEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/admin/sweep", s.client.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/api/admin/sweep", s.admin.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[service.SweepReport](t, rec).Checked)
}

func TestCancelAndRejectWithEmptyChunkedBody(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	send := func(path string, actor int64) *httptest.ResponseRecorder {
		// Reader без известной длины: ContentLength = -1, как у chunked запроса
		req := httptest.NewRequest(http.MethodPost, path, struct{ io.Reader }{strings.NewReader("")})
		req.Header.Set("X-User-ID", strconv.FormatInt(actor, 10))
		require.Equal(t, int64(-1), req.ContentLength)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}

	first, err := s.svc.Bookings.CreateBooking(ctx, s.client.ID, s.slot(now.Add(72*time.Hour)).ID)
	require.NoError(t, err)
	rec := send("/api/bookings/"+strconv.FormatInt(first.ID, 10)+"/reject", s.admin.ID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.BookingStatusCancelled, decode[model.Booking](t, rec).Status)

	second, err := s.svc.Bookings.CreateBooking(ctx, s.client.ID, s.slot(now.Add(96*time.Hour)).ID)
	require.NoError(t, err)
	rec = send("/api/bookings/"+strconv.FormatInt(second.ID, 10)+"/cancel", s.client.ID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.BookingStatusCancelled, decode[model.Booking](t, rec).Status)

	third, err := s.svc.Bookings.CreateBooking(ctx, s.client.ID, s.slot(now.Add(120*time.Hour)).ID)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/bookings/"+strconv.FormatInt(third.ID, 10)+"/cancel",
		struct{ io.Reader }{strings.NewReader("{not json")})
	req.Header.Set("X-User-ID", strconv.FormatInt(s.client.ID, 10))
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "malformed body is still rejected")
}
