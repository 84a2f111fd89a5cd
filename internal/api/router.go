package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/domain"
)

// RouterOptions — зависимости маршрутизатора.
type RouterOptions struct {
	Handler        *Handler
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration
	Logger         *log.Entry
}

// NewRouter собирает chi-маршрутизатор платёжного API.
func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/api/v1/transactions", opts.Handler.CreateTransaction)

	r.Route("/api/v1/transactions/{id}", func(r chi.Router) {
		r.With(Idempotency(opts.Idempotency, opts.IdempotencyTTL, opts.Logger)).
			Post("/payment", opts.Handler.ProcessPayment)
		r.Get("/status", opts.Handler.GetStatus)
		r.Post("/stock", opts.Handler.ReconcileStock)
		r.Get("/events", opts.Handler.ListEvents)
	})

	return r
}
