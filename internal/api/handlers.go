package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/Freeeeeet/trainer_booking/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const actorHeader = "X-User-ID"

type actorKey struct{}

// Handler HTTP обработчики поверх сервисов бронирования
type Handler struct {
	svc      *service.Services
	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(svc *service.Services, logger *zap.Logger) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
		logger:   logger,
	}
}

// =============================================================================
// CLIENTS
// =============================================================================

// CreateClient POST /api/clients
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.admin(w, r); !ok {
		return
	}
	var req CreateClientRequest
	if !h.decode(w, r, &req) {
		return
	}

	client, err := h.svc.Clients.Create(r.Context(), service.NewClientInput{
		TelegramID: req.TelegramID,
		FullName:   req.FullName,
		ClientType: model.ClientType(req.ClientType),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

// GetClient GET /api/clients/{id}
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.selfOrAdmin(w, r)
	if !ok {
		return
	}
	client, err := h.svc.Clients.Get(r.Context(), clientID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// ClientBookings GET /api/clients/{id}/bookings
func (h *Handler) ClientBookings(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.selfOrAdmin(w, r)
	if !ok {
		return
	}
	schedule, err := h.svc.Bookings.ClientSchedule(r.Context(), clientID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// ClientTransactions GET /api/clients/{id}/transactions?type=&from=&to=&limit=&offset=
func (h *Handler) ClientTransactions(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.selfOrAdmin(w, r)
	if !ok {
		return
	}

	filter, err := parseTransactionFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	filter.ClientID = clientID

	page, err := h.svc.Ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Deposit POST /api/clients/{id}/deposits
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.balanceChange(w, r, h.svc.Ledger.Deposit)
}

// Adjust POST /api/clients/{id}/adjustments
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	h.balanceChange(w, r, h.svc.Ledger.Adjust)
}

// ReferralBonus POST /api/clients/{id}/referral-bonuses
func (h *Handler) ReferralBonus(w http.ResponseWriter, r *http.Request) {
	h.balanceChange(w, r, h.svc.Ledger.GrantReferralBonus)
}

type balanceFunc func(ctx context.Context, adminID, clientID int64, amount decimal.Decimal, note string) (*model.Transaction, error)

func (h *Handler) balanceChange(w http.ResponseWriter, r *http.Request, apply balanceFunc) {
	adminID, ok := h.admin(w, r)
	if !ok {
		return
	}
	clientID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !h.decode(w, r, &req) {
		return
	}

	txn, err := apply(r.Context(), adminID, clientID, req.Amount, req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// VerifyBalance GET /api/clients/{id}/balance/verify
func (h *Handler) VerifyBalance(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.admin(w, r); !ok {
		return
	}
	clientID, ok := pathID(w, r)
	if !ok {
		return
	}
	report, err := h.svc.Ledger.VerifyBalance(r.Context(), clientID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// SetApproval PUT /api/clients/{id}/approval
func (h *Handler) SetApproval(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ApprovalRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.Clients.SetApproval(r.Context(), actorID(r), clientID, model.ApprovalStatus(req.Status)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetClientType PUT /api/clients/{id}/type
func (h *Handler) SetClientType(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ClientTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.Clients.SetClientType(r.Context(), actorID(r), clientID, model.ClientType(req.Type)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SLOTS
// =============================================================================

// CreateSlot POST /api/slots
func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.admin(w, r); !ok {
		return
	}
	var req CreateSlotRequest
	if !h.decode(w, r, &req) {
		return
	}
	slot, err := h.svc.Slots.CreateSlot(r.Context(), req.Start, req.End, req.Notes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

// ListSlots GET /api/slots?from=&to=
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	from, err := parseTime(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from", err)
		return
	}
	to, err := parseTime(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to", err)
		return
	}
	if from == nil || to == nil {
		writeError(w, http.StatusBadRequest, "from and to are required", nil)
		return
	}

	slots, err := h.svc.Slots.SlotsInRange(r.Context(), *from, *to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

// DeleteSlot DELETE /api/slots/{id}
func (h *Handler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.admin(w, r); !ok {
		return
	}
	slotID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Slots.Delete(r.Context(), slotID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BOOKINGS
// =============================================================================

// CreateBooking POST /api/bookings
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !h.decode(w, r, &req) {
		return
	}
	booking, err := h.svc.Bookings.CreateBooking(r.Context(), actorID(r), req.SlotID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// AssignBooking POST /api/bookings/assign
func (h *Handler) AssignBooking(w http.ResponseWriter, r *http.Request) {
	var req AssignBookingRequest
	if !h.decode(w, r, &req) {
		return
	}
	booking, err := h.svc.Bookings.AssignBooking(r.Context(), actorID(r), req.ClientID, req.SlotID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// GetBooking GET /api/bookings/{id}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := h.svc.Bookings.GetBooking(r.Context(), bookingID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if booking.ClientID != actorID(r) {
		if err := h.svc.Clients.RequireAdmin(r.Context(), actorID(r)); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, booking)
}

// ApproveBooking POST /api/bookings/{id}/approve
func (h *Handler) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, h.svc.Bookings.ApproveBooking)
}

// RejectBooking POST /api/bookings/{id}/reject
func (h *Handler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	var req RejectBookingRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.bookingAction(w, r, func(ctx context.Context, adminID, bookingID int64) (*model.Booking, error) {
		return h.svc.Bookings.RejectBooking(ctx, adminID, bookingID, req.Reason)
	})
}

// CancelBooking POST /api/bookings/{id}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req CancelBookingRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	var override *service.FeeTier
	if req.FeePercent != nil {
		tier, err := service.ParseFeeTier(*req.FeePercent)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		override = &tier
	}

	h.bookingAction(w, r, func(ctx context.Context, actor, bookingID int64) (*model.Booking, error) {
		return h.svc.Bookings.CancelBooking(ctx, actor, bookingID, override)
	})
}

// CompleteBooking POST /api/bookings/{id}/complete
func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, h.svc.Bookings.CompleteBooking)
}

// MarkNoShow POST /api/bookings/{id}/no-show
func (h *Handler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, h.svc.Bookings.MarkNoShow)
}

type bookingFunc func(ctx context.Context, actorID, bookingID int64) (*model.Booking, error)

func (h *Handler) bookingAction(w http.ResponseWriter, r *http.Request, action bookingFunc) {
	bookingID, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := action(r.Context(), actorID(r), bookingID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// =============================================================================
// PROPOSALS
// =============================================================================

// ProposeBatch POST /api/proposals/batch
func (h *Handler) ProposeBatch(w http.ResponseWriter, r *http.Request) {
	var req ProposeBatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	selections := make([]service.WeeklySelection, len(req.Selections))
	for i, s := range req.Selections {
		selections[i] = service.WeeklySelection{
			Weekday: time.Weekday(s.Weekday),
			Hour:    s.Hour,
			Minute:  s.Minute,
		}
	}

	result, err := h.svc.Proposals.ProposeBatch(r.Context(), service.ProposalRequest{
		AdminID:       actorID(r),
		ClientID:      req.ClientID,
		Selections:    selections,
		Weeks:         req.Weeks,
		SkipConflicts: req.SkipConflicts,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusCreated
	if len(result.Created) == 0 && len(result.Conflicts) > 0 {
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

// ConfirmProposal POST /api/proposals/{id}/confirm
func (h *Handler) ConfirmProposal(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, h.svc.Proposals.ConfirmProposal)
}

// RejectProposal POST /api/proposals/{id}/reject
func (h *Handler) RejectProposal(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, h.svc.Proposals.RejectProposal)
}

// ConfirmAll POST /api/proposals/confirm-all
func (h *Handler) ConfirmAll(w http.ResponseWriter, r *http.Request) {
	var req ConfirmAllRequest
	if !h.decode(w, r, &req) {
		return
	}
	outcomes := h.svc.Proposals.ConfirmAll(r.Context(), actorID(r), req.BookingIDs)
	writeJSON(w, http.StatusOK, outcomes)
}

// =============================================================================
// ADMIN
// =============================================================================

// Sweep POST /api/admin/sweep
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.admin(w, r); !ok {
		return
	}
	report, err := h.svc.Sweeper.Sweep(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Health GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// requireActor достаёт ID пользователя из заголовка. Аутентификация выполняется снаружи.
func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(actorHeader), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusUnauthorized, "Missing or invalid "+actorHeader, nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, id)))
	})
}

func actorID(r *http.Request) int64 {
	id, _ := r.Context().Value(actorKey{}).(int64)
	return id
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id := actorID(r)
	if err := h.svc.Clients.RequireAdmin(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return 0, false
	}
	return id, true
}

// selfOrAdmin ID клиента из пути, если это сам пользователь или админ
func (h *Handler) selfOrAdmin(w http.ResponseWriter, r *http.Request) (int64, bool) {
	clientID, ok := pathID(w, r)
	if !ok {
		return 0, false
	}
	if clientID == actorID(r) {
		return clientID, true
	}
	if _, ok := h.admin(w, r); !ok {
		return 0, false
	}
	return clientID, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return h.validateBody(w, dst)
}

// decodeOptional как decode, но пустое тело (в том числе chunked) допустимо
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return h.validateBody(w, dst)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return h.validateBody(w, dst)
}

func (h *Handler) validateBody(w http.ResponseWriter, dst any) bool {
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// fail переводит доменную ошибку в HTTP статус
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, status, "Internal error", nil)
		return
	}
	writeError(w, status, err.Error(), nil)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotAdmin), errors.Is(err, service.ErrNotBookingOwner):
		return http.StatusForbidden
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func parseTransactionFilter(r *http.Request) (model.TransactionFilter, error) {
	q := r.URL.Query()
	var filter model.TransactionFilter

	for _, raw := range q["type"] {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, model.TransactionType(t))
			}
		}
	}

	var err error
	if filter.From, err = parseTime(q.Get("from")); err != nil {
		return filter, err
	}
	if filter.To, err = parseTime(q.Get("to")); err != nil {
		return filter, err
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			return filter, err
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil {
			return filter, err
		}
	}
	return filter, nil
}

// parseTime принимает RFC3339 или дату YYYY-MM-DD. Пустая строка - nil.
func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
