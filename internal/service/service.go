// Package service реализует бизнес-логику мастера бронирования уборки.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleanbook/internal/analytics"
	"github.com/mmeshcher/cleanbook/internal/catalog"
	"github.com/mmeshcher/cleanbook/internal/model"
	"github.com/mmeshcher/cleanbook/internal/pricing"
	"github.com/mmeshcher/cleanbook/internal/session"
	"github.com/mmeshcher/cleanbook/internal/summary"
	"github.com/mmeshcher/cleanbook/internal/wizard"
)

// ErrLookupUnsupported возвращается, если хранилище бронирований не умеет читать записи.
var ErrLookupUnsupported = errors.New("booking lookup not supported")

// BookingReader читает созданные бронирования.
type BookingReader interface {
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
}

// CatalogView содержит каталог в виде, отдаваемом клиенту.
type CatalogView struct {
	CleanTypes        []catalog.CleanTypeDef `json:"clean_types"`
	CleanlinessLabels []string               `json:"cleanliness_labels"`
	Steps             []wizard.Step          `json:"steps"`
}

// Snapshot объединяет состояние сессии и его представление.
type Snapshot struct {
	State   wizard.State `json:"state"`
	Summary summary.View `json:"summary"`
}

// BookingView объединяет сохранённое бронирование и его представление.
type BookingView struct {
	Booking model.Booking `json:"booking"`
	Summary summary.View  `json:"summary"`
}

// Service содержит бизнес-логику мастера бронирования.
type Service struct {
	catalogs *catalog.Provider
	sessions *session.Manager
	creator  wizard.BookingCreator
	reader   BookingReader
	sink     analytics.Sink
	logger   *zap.Logger
	now      func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithBookingReader подключает чтение созданных бронирований.
func WithBookingReader(r BookingReader) Option {
	return func(s *Service) { s.reader = r }
}

// WithAnalytics задаёт приёмник аналитики для новых сессий.
func WithAnalytics(sink analytics.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт сервис с каталогом, реестром сессий и системой создания бронирований.
func NewService(catalogs *catalog.Provider, sessions *session.Manager, creator wizard.BookingCreator, opts ...Option) *Service {
	s := &Service{
		catalogs: catalogs,
		sessions: sessions,
		creator:  creator,
		sink:     analytics.Nop{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if c, ok := s.creator.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Catalog возвращает каталог видов уборки.
func (s *Service) Catalog(ctx context.Context) (*CatalogView, error) {
	cat, err := s.catalogs.Get(ctx)
	if err != nil {
		return nil, err
	}
	steps := wizard.Steps()
	return &CatalogView{
		CleanTypes:        cat.CleanTypes(),
		CleanlinessLabels: cat.CleanlinessLabels(),
		Steps:             steps[:len(steps)-1],
	}, nil
}

// StartSession создаёт новую сессию мастера с черновиком по умолчанию.
func (s *Service) StartSession(ctx context.Context) (string, *Snapshot, error) {
	cat, err := s.catalogs.Get(ctx)
	if err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	store := wizard.NewStore(pricing.NewCalculator(cat), s.creator, s.storeOptions(id)...)
	s.sessions.Put(id, store)

	return id, s.snapshot(store.View(ctx), cat), nil
}

// View возвращает текущее состояние сессии и отмечает просмотр шага.
func (s *Service) View(ctx context.Context, sessionID string) (*Snapshot, error) {
	store, cat, err := s.store(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(store.View(ctx), cat), nil
}

// UpdateDraft применяет изменение полей черновика.
func (s *Service) UpdateDraft(ctx context.Context, sessionID string, p wizard.Patch) (*Snapshot, error) {
	store, cat, err := s.store(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st, err := store.Update(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.snapshot(st, cat), nil
}

// Next переводит мастер на следующий шаг.
func (s *Service) Next(ctx context.Context, sessionID string) (*Snapshot, error) {
	return s.navigate(ctx, sessionID, (*wizard.Store).Next)
}

// Back возвращает мастер на предыдущий шаг.
func (s *Service) Back(ctx context.Context, sessionID string) (*Snapshot, error) {
	return s.navigate(ctx, sessionID, (*wizard.Store).Back)
}

// Rewind возвращает мастер на указанный пройденный шаг.
func (s *Service) Rewind(ctx context.Context, sessionID string, step wizard.Step) (*Snapshot, error) {
	return s.navigate(ctx, sessionID, func(store *wizard.Store) (wizard.State, error) {
		return store.Rewind(step)
	})
}

func (s *Service) navigate(ctx context.Context, sessionID string, move func(*wizard.Store) (wizard.State, error)) (*Snapshot, error) {
	store, cat, err := s.store(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := move(store); err != nil {
		return nil, err
	}
	return s.snapshot(store.View(ctx), cat), nil
}

// Submit отправляет черновик в систему бронирований. После успеха сессия удаляется.
func (s *Service) Submit(ctx context.Context, sessionID string, details model.SubmitDetails) (string, error) {
	store, _, err := s.store(ctx, sessionID)
	if err != nil {
		return "", err
	}

	bookingID, err := store.Submit(ctx, details)
	if err != nil {
		return "", err
	}

	if err := s.sessions.Discard(ctx, sessionID); err != nil {
		s.logger.Warn("failed to discard submitted session", zap.String("session", sessionID), zap.Error(err))
	}
	return bookingID, nil
}

// Abandon удаляет сессию по просьбе пользователя.
func (s *Service) Abandon(ctx context.Context, sessionID string) error {
	return s.sessions.Discard(ctx, sessionID)
}

// GetBooking возвращает созданное бронирование для страницы подтверждения.
func (s *Service) GetBooking(ctx context.Context, id string) (*BookingView, error) {
	if s.reader == nil {
		return nil, ErrLookupUnsupported
	}

	b, err := s.reader.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	// Каталог нужен только для подписей; без него бронирование всё равно отдаётся.
	cat, _ := s.catalogs.Get(ctx)
	return &BookingView{Booking: *b, Summary: summary.BuildBooking(*b, cat)}, nil
}

func (s *Service) store(ctx context.Context, sessionID string) (*wizard.Store, *catalog.Catalog, error) {
	cat, err := s.catalogs.Get(ctx)
	if err != nil {
		return nil, nil, err
	}

	restore := func(id string, st wizard.State) (*wizard.Store, error) {
		return wizard.Restore(pricing.NewCalculator(cat), s.creator, st, s.storeOptions(id)...)
	}

	store, err := s.sessions.Get(ctx, sessionID, restore)
	if err != nil {
		return nil, nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return store, cat, nil
}

func (s *Service) storeOptions(sessionID string) []wizard.Option {
	return []wizard.Option{
		wizard.WithSessionID(sessionID),
		wizard.WithAnalytics(s.sink),
		wizard.WithClock(s.now),
	}
}

func (s *Service) snapshot(st wizard.State, cat *catalog.Catalog) *Snapshot {
	return &Snapshot{State: st, Summary: summary.Build(st, cat)}
}
