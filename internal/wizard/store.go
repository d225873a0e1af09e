// Package wizard хранит черновик бронирования одной сессии мастера и управляет переходами между шагами.
package wizard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/cleanbook/internal/analytics"
	"github.com/mmeshcher/cleanbook/internal/model"
	"github.com/mmeshcher/cleanbook/internal/pricing"
	"github.com/mmeshcher/cleanbook/internal/validation"
)

// BookingCreator описывает внешнюю систему создания бронирований.
type BookingCreator interface {
	CreateBooking(ctx context.Context, b model.Booking) (string, error)
}

// State хранит неизменяемый снимок сессии мастера.
type State struct {
	Step       Step               `json:"step"`
	Draft      model.BookingDraft `json:"draft"`
	Revision   uint64             `json:"revision"`
	Submitting bool               `json:"submitting"`
	LastError  string             `json:"last_error,omitempty"`
	BookingID  string             `json:"booking_id,omitempty"`
}

// CanAdvance сообщает, доступна ли кнопка «Далее» на текущем шаге.
func (s State) CanAdvance() bool {
	return !s.Submitting && stepComplete(s.Step, s.Draft) && s.Step != StepReviewSummary && s.Step != StepSubmitted
}

func (s State) clone() State {
	s.Draft = s.Draft.Clone()
	return s
}

func stepComplete(step Step, d model.BookingDraft) bool {
	switch step {
	case StepChooseType:
		return d.CleanType != model.CleanTypeUnset
	case StepSpecifySize:
		return d.Beds >= 0 && d.Baths >= 1
	case StepRateCleanliness:
		return d.Cleanliness.Rated()
	case StepDescribeHousehold:
		return true
	case StepReviewSummary:
		return d.Pricing != nil
	default:
		return false
	}
}

// Option настраивает Store.
type Option func(*Store)

// WithAnalytics задаёт приёмник аналитических событий.
func WithAnalytics(sink analytics.Sink) Option {
	return func(s *Store) { s.sink = analytics.Safe(sink) }
}

// WithSessionID задаёт идентификатор сессии для аналитики.
func WithSessionID(id string) Option {
	return func(s *Store) { s.sessionID = id }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator подменяет генератор идентификаторов бронирований.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// Store владеет черновиком одной сессии. Все изменения проходят через Update
// и фиксируются целиком под одной блокировкой вместе с пересчитанной стоимостью.
type Store struct {
	mu      sync.Mutex
	calc    *pricing.Calculator
	creator BookingCreator

	sink      analytics.Sink
	sessionID string
	now       func() time.Time
	newID     func() string

	state   State
	subs    map[int]chan State
	nextSub int
}

// NewStore создаёт хранилище с черновиком по умолчанию на первом шаге.
func NewStore(calc *pricing.Calculator, creator BookingCreator, opts ...Option) *Store {
	s := &Store{
		calc:    calc,
		creator: creator,
		sink:    analytics.Nop{},
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
		state:   State{Step: StepChooseType},
		subs:    make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore восстанавливает хранилище из сохранённого снимка. Стоимость пересчитывается заново.
func Restore(calc *pricing.Calculator, creator BookingCreator, st State, opts ...Option) (*Store, error) {
	if st.Step.index() < 0 {
		return nil, fmt.Errorf("restore: unknown step %q", st.Step)
	}

	s := NewStore(calc, creator, opts...)

	d := model.BookingDraft{}
	p := Patch{Kids: &st.Draft.Kids, Pets: &st.Draft.Pets}
	if st.Draft.CleanType != model.CleanTypeUnset {
		p.CleanType = &st.Draft.CleanType
		p.Beds = &st.Draft.Beds
		if st.Draft.Baths >= 1 {
			p.Baths = &st.Draft.Baths
		}
	}
	if st.Draft.Cleanliness != model.CleanlinessUnrated {
		p.Cleanliness = &st.Draft.Cleanliness
	}
	if _, err := p.apply(&d, calc.Catalog()); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	if err := s.reprice(&d); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	for _, passed := range stepOrder[:st.Step.index()] {
		if !stepComplete(passed, d) {
			return nil, fmt.Errorf("restore: %w: %s", ErrStepIncomplete, passed)
		}
	}

	s.state = State{
		Step:      st.Step,
		Draft:     d,
		Revision:  st.Revision,
		LastError: st.LastError,
		BookingID: st.BookingID,
	}
	return s, nil
}

// Snapshot возвращает текущий снимок без побочных эффектов.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// View возвращает снимок и отправляет событие просмотра шага.
func (s *Store) View(ctx context.Context) State {
	st := s.Snapshot()
	s.sink.Track(ctx, analytics.Event{
		Kind:      analytics.KindStepViewed,
		SessionID: s.sessionID,
		Step:      string(st.Step),
	})
	return st
}

// Subscribe возвращает канал снимков. Каждое зафиксированное изменение даёт не более одного
// уведомления; медленный подписчик видит только последний снимок. Функция отписки закрывает канал.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan State, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// Update является единственной точкой изменения черновика. Патч проверяется, сливается с текущим
// черновиком, и при изменении влияющих на цену полей стоимость пересчитывается до фиксации.
// Отклонённый патч оставляет состояние нетронутым.
func (s *Store) Update(ctx context.Context, p Patch) (State, error) {
	s.mu.Lock()

	if err := s.checkMutableLocked(); err != nil {
		s.mu.Unlock()
		return State{}, err
	}
	if err := p.checkEditable(s.state.Step); err != nil {
		s.mu.Unlock()
		return State{}, err
	}

	next := s.state.Draft.Clone()
	changed, err := p.apply(&next, s.calc.Catalog())
	if err != nil {
		s.mu.Unlock()
		return State{}, err
	}
	if len(changed) == 0 {
		st := s.state.clone()
		s.mu.Unlock()
		return st, nil
	}

	if err := s.reprice(&next); err != nil {
		s.mu.Unlock()
		return State{}, err
	}

	s.state.Draft = next
	s.state.LastError = ""
	st := s.commitLocked()
	cleanType := string(next.CleanType)
	s.mu.Unlock()

	for _, f := range changed {
		s.sink.Track(ctx, analytics.Event{
			Kind:      analytics.KindFieldSelected,
			SessionID: s.sessionID,
			Step:      string(st.Step),
			Field:     f,
			CleanType: cleanType,
		})
	}

	return st, nil
}

// Next переходит на следующий шаг, если обязательные поля текущего заполнены.
// С шага проверки дальше можно уйти только успешной отправкой.
func (s *Store) Next() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutableLocked(); err != nil {
		return State{}, err
	}
	if s.state.Step == StepReviewSummary {
		return State{}, fmt.Errorf("%w: submit the booking to finish", ErrInvalidTransition)
	}
	if !stepComplete(s.state.Step, s.state.Draft) {
		return State{}, fmt.Errorf("%w: %s", ErrStepIncomplete, s.state.Step)
	}

	s.state.Step = s.state.Step.next()
	return s.commitLocked(), nil
}

// Back возвращает на предыдущий шаг, сохраняя все введённые поля.
func (s *Store) Back() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutableLocked(); err != nil {
		return State{}, err
	}
	if s.state.Step == StepChooseType {
		return State{}, fmt.Errorf("%w: already on first step", ErrInvalidTransition)
	}

	s.state.Step = s.state.Step.prev()
	return s.commitLocked(), nil
}

// Rewind возвращает на любой из уже пройденных шагов. Переход вперёд не допускается.
func (s *Store) Rewind(target Step) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutableLocked(); err != nil {
		return State{}, err
	}
	if target.index() < 0 || target == StepSubmitted {
		return State{}, fmt.Errorf("%w: cannot rewind to %q", ErrInvalidTransition, target)
	}
	if target.index() > s.state.Step.index() {
		return State{}, fmt.Errorf("%w: %s is ahead of %s", ErrInvalidTransition, target, s.state.Step)
	}
	if target == s.state.Step {
		return s.state.clone(), nil
	}

	s.state.Step = target
	return s.commitLocked(), nil
}

// Submit передаёт черновик в систему создания бронирований. Одновременно допускается только
// одна отправка, повторов нет. При ошибке черновик и шаг сохраняются, а текст ошибки
// доступен в State.LastError.
func (s *Store) Submit(ctx context.Context, details model.SubmitDetails) (string, error) {
	s.mu.Lock()

	if err := s.checkMutableLocked(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	if s.state.Step != StepReviewSummary {
		s.mu.Unlock()
		return "", ErrNotReviewing
	}
	if s.state.Draft.Pricing == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: draft has no price", ErrStepIncomplete)
	}
	if err := validation.SubmitDetails(details, s.now()); err != nil {
		s.mu.Unlock()
		return "", err
	}

	d := s.state.Draft
	booking := model.Booking{
		ID:          s.newID(),
		CleanType:   d.CleanType,
		Beds:        d.Beds,
		Baths:       d.Baths,
		Cleanliness: d.Cleanliness,
		Kids:        d.Kids,
		Pets:        d.Pets,
		Pricing:     *d.Pricing.Clone(),
		Contact:     details.Contact,
		Schedule:    details.Schedule,
		CreatedAt:   s.now(),
	}

	s.state.Submitting = true
	s.commitLocked()
	s.mu.Unlock()

	id, err := s.createBooking(ctx, booking)

	s.mu.Lock()
	s.state.Submitting = false
	if err != nil {
		subErr := newSubmissionError(err)
		s.state.LastError = subErr.Message
		s.commitLocked()
		s.mu.Unlock()

		s.trackSubmit(ctx, analytics.KindSubmitFailed, booking.CleanType)
		return "", subErr
	}

	s.state.Step = StepSubmitted
	s.state.BookingID = id
	s.state.LastError = ""
	s.commitLocked()
	s.mu.Unlock()

	s.trackSubmit(ctx, analytics.KindSubmitSucceeded, booking.CleanType)
	return id, nil
}

// createBooking превращает панику внешней системы в обычную ошибку отправки,
// чтобы флаг Submitting не остался выставленным.
func (s *Store) createBooking(ctx context.Context, b model.Booking) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("booking creator panicked: %v", r)
		}
	}()
	return s.creator.CreateBooking(ctx, b)
}

func (s *Store) trackSubmit(ctx context.Context, kind analytics.Kind, t model.CleanType) {
	s.sink.Track(ctx, analytics.Event{
		Kind:      kind,
		SessionID: s.sessionID,
		Step:      string(StepReviewSummary),
		CleanType: string(t),
	})
}

func (s *Store) checkMutableLocked() error {
	if s.state.Submitting {
		return ErrSubmissionInFlight
	}
	if s.state.Step == StepSubmitted {
		return ErrAlreadySubmitted
	}
	return nil
}

// reprice выставляет стоимость по итоговому черновику или убирает её, если черновик ещё не оценить.
func (s *Store) reprice(d *model.BookingDraft) error {
	if !priceable(*d) {
		d.Pricing = nil
		return nil
	}
	res, err := s.calc.Calculate(*d)
	if err != nil {
		return fmt.Errorf("price draft: %w", err)
	}
	d.Pricing = &res
	return nil
}

// commitLocked увеличивает ревизию и уведомляет подписчиков одним снимком.
func (s *Store) commitLocked() State {
	s.state.Revision++
	st := s.state.clone()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st.clone()
	}
	return st
}
