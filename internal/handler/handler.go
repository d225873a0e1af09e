// Package handler содержит HTTP-обработчики API мастера бронирования.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleanbook/internal/catalog"
	"github.com/mmeshcher/cleanbook/internal/middleware"
	"github.com/mmeshcher/cleanbook/internal/model"
	"github.com/mmeshcher/cleanbook/internal/pricing"
	"github.com/mmeshcher/cleanbook/internal/repository"
	"github.com/mmeshcher/cleanbook/internal/service"
	"github.com/mmeshcher/cleanbook/internal/session"
	"github.com/mmeshcher/cleanbook/internal/validation"
	"github.com/mmeshcher/cleanbook/internal/wizard"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Catalog(ctx context.Context) (*service.CatalogView, error)
	StartSession(ctx context.Context) (string, *service.Snapshot, error)
	View(ctx context.Context, sessionID string) (*service.Snapshot, error)
	UpdateDraft(ctx context.Context, sessionID string, p wizard.Patch) (*service.Snapshot, error)
	Next(ctx context.Context, sessionID string) (*service.Snapshot, error)
	Back(ctx context.Context, sessionID string) (*service.Snapshot, error)
	Rewind(ctx context.Context, sessionID string, step wizard.Step) (*service.Snapshot, error)
	Submit(ctx context.Context, sessionID string, details model.SubmitDetails) (string, error)
	Abandon(ctx context.Context, sessionID string) error
	GetBooking(ctx context.Context, id string) (*service.BookingView, error)
}

// Handler реализует HTTP-обработчики API мастера бронирования.
type Handler struct {
	service  Service
	logger   *zap.Logger
	cookies  *middleware.SessionCookies
	limiter  *middleware.RateLimiter
	gatherer prometheus.Gatherer
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, cookies *middleware.SessionCookies, limiter *middleware.RateLimiter, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		service:  s,
		logger:   logger,
		cookies:  cookies,
		limiter:  limiter,
		gatherer: gatherer,
	}
}

type errorResponse struct {
	Error  string            `json:"error"`
	Retry  bool              `json:"retry,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

type submitResponse struct {
	BookingID string `json:"booking_id"`
}

type rewindRequest struct {
	Step string `json:"step"`
}

type scheduleRequest struct {
	Date          string `json:"date"`
	ArrivalWindow string `json:"arrival_window"`
	Notes         string `json:"notes"`
}

type submitRequest struct {
	Contact  model.Contact   `json:"contact"`
	Schedule scheduleRequest `json:"schedule"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError сопоставляет ошибку бизнес-логики с HTTP-статусом.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		subErr     *wizard.SubmissionError
		detailsErr *validation.DetailsError
	)

	switch {
	case errors.Is(err, catalog.ErrCatalogUnavailable):
		h.logger.Warn("catalog unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "catalog is unavailable", Retry: true})
	case errors.Is(err, session.ErrSessionNotFound):
		h.cookies.Clear(w)
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "booking session not found"})
	case errors.As(err, &subErr):
		h.logger.Warn("booking submission failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: subErr.Message})
	case errors.As(err, &detailsErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid contact or schedule", Fields: detailsErr.Fields})
	case errors.Is(err, wizard.ErrInvalidPatch), errors.Is(err, wizard.ErrFieldNotEditable), errors.Is(err, pricing.ErrInvalidDraft):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, wizard.ErrSubmissionInFlight),
		errors.Is(err, wizard.ErrStepIncomplete),
		errors.Is(err, wizard.ErrInvalidTransition),
		errors.Is(err, wizard.ErrNotReviewing),
		errors.Is(err, wizard.ErrAlreadySubmitted):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrBookingNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "booking not found"})
	case errors.Is(err, service.ErrLookupUnsupported):
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err), zap.String("uri", r.RequestURI))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
	}
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

// Healthz отвечает 200, пока процесс обслуживает запросы.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// GetCatalog возвращает виды уборки и подписи шкалы чистоты.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Catalog(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// StartBooking начинает новую сессию мастера и выставляет cookie.
func (h *Handler) StartBooking(w http.ResponseWriter, r *http.Request) {
	id, snap, err := h.service.StartSession(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.cookies.Set(w, id)
	writeJSON(w, http.StatusCreated, snap)
}

// GetBooking возвращает текущее состояние черновика.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	snap, err := h.service.View(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// UpdateBooking применяет изменения полей черновика.
func (h *Handler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var p wizard.Patch
	if err := decodeJSON(r, &p); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	snap, err := h.service.UpdateDraft(r.Context(), id, p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Next переводит мастер на следующий шаг.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, h.service.Next)
}

// Back возвращает мастер на предыдущий шаг.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, h.service.Back)
}

// Rewind возвращает мастер на указанный пройденный шаг.
func (h *Handler) Rewind(w http.ResponseWriter, r *http.Request) {
	var req rewindRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	step, err := wizard.ParseStep(req.Step)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	h.navigate(w, r, func(ctx context.Context, id string) (*service.Snapshot, error) {
		return h.service.Rewind(ctx, id, step)
	})
}

func (h *Handler) navigate(w http.ResponseWriter, r *http.Request, move func(ctx context.Context, id string) (*service.Snapshot, error)) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	snap, err := move(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Submit отправляет черновик с контактами и расписанием в систему бронирований.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	date, err := time.Parse(time.DateOnly, strings.TrimSpace(req.Schedule.Date))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "invalid contact or schedule",
			Fields: map[string]string{"schedule.date": "expected YYYY-MM-DD"},
		})
		return
	}

	details := model.SubmitDetails{
		Contact: req.Contact,
		Schedule: model.Schedule{
			Date:          date,
			ArrivalWindow: req.Schedule.ArrivalWindow,
			Notes:         req.Schedule.Notes,
		},
	}

	bookingID, err := h.service.Submit(r.Context(), id, details)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.cookies.Clear(w)
	writeJSON(w, http.StatusCreated, submitResponse{BookingID: bookingID})
}

// Abandon удаляет черновик текущей сессии.
func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if err := h.service.Abandon(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// GetConfirmation возвращает созданное бронирование.
func (h *Handler) GetConfirmation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	view, err := h.service.GetBooking(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
