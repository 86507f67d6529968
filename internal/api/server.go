// Package api HTTP интерфейс ядра бронирования.
//
// Пользователь определяется заголовком X-User-ID, аутентификация выполняется
// перед сервисом (gateway или бот). Все маршруты /api требуют этот заголовок.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter создаёт роутер со всеми маршрутами
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", actorHeader},
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireActor)

		r.Route("/clients", func(r chi.Router) {
			r.Post("/", h.CreateClient)
			r.Get("/{id}", h.GetClient)
			r.Get("/{id}/bookings", h.ClientBookings)
			r.Get("/{id}/transactions", h.ClientTransactions)
			r.Get("/{id}/balance/verify", h.VerifyBalance)
			r.Post("/{id}/deposits", h.Deposit)
			r.Post("/{id}/adjustments", h.Adjust)
			r.Post("/{id}/referral-bonuses", h.ReferralBonus)
			r.Put("/{id}/approval", h.SetApproval)
			r.Put("/{id}/type", h.SetClientType)
		})

		r.Route("/slots", func(r chi.Router) {
			r.Get("/", h.ListSlots)
			r.Post("/", h.CreateSlot)
			r.Delete("/{id}", h.DeleteSlot)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.CreateBooking)
			r.Post("/assign", h.AssignBooking)
			r.Get("/{id}", h.GetBooking)
			r.Post("/{id}/approve", h.ApproveBooking)
			r.Post("/{id}/reject", h.RejectBooking)
			r.Post("/{id}/cancel", h.CancelBooking)
			r.Post("/{id}/complete", h.CompleteBooking)
			r.Post("/{id}/no-show", h.MarkNoShow)
		})

		r.Route("/proposals", func(r chi.Router) {
			r.Post("/batch", h.ProposeBatch)
			r.Post("/confirm-all", h.ConfirmAll)
			r.Post("/{id}/confirm", h.ConfirmProposal)
			r.Post("/{id}/reject", h.RejectProposal)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.Sweep)
		})
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
