package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/cleanbook/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware мастера бронирования.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Healthz)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.GetCatalog)
		r.Get("/bookings/{id}", h.GetConfirmation)

		r.Post("/booking", h.StartBooking)

		r.Group(func(r chi.Router) {
			r.Use(h.cookies.Middleware)

			r.Get("/booking", h.GetBooking)
			r.Patch("/booking", h.UpdateBooking)
			r.Delete("/booking", h.Abandon)

			r.Post("/booking/next", h.Next)
			r.Post("/booking/back", h.Back)
			r.Post("/booking/rewind", h.Rewind)

			r.With(h.limiter.Middleware).Post("/booking/submit", h.Submit)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
