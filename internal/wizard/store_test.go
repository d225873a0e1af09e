package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/cleanbook/internal/analytics"
	"github.com/mmeshcher/cleanbook/internal/catalog"
	"github.com/mmeshcher/cleanbook/internal/model"
	"github.com/mmeshcher/cleanbook/internal/pricing"
)

var testNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func testCalculator(t *testing.T) *pricing.Calculator {
	t.Helper()

	def := func(id model.CleanType, base int64) catalog.CleanTypeDef {
		return catalog.CleanTypeDef{
			ID:                     id,
			DisplayName:            string(id),
			Prices:                 catalog.PriceTable{BaseCents: base, PerBedCents: 1000, PerBathCents: 1500, MaxBeds: 5, MaxBaths: 4},
			CleanlinessBasisPoints: [5]int64{0, 0, 500, 1000, 2000},
			Kids:                   catalog.Surcharge{Label: "Kids", AmountCents: 1000},
			Pets:                   catalog.Surcharge{Label: "Pets", AmountCents: 1200},
		}
	}

	cat, err := catalog.New(
		[]string{"Spotless", "Tidy", "Lived-in", "Messy", "Disaster"},
		[]catalog.CleanTypeDef{def(model.CleanTypeStandard, 5000), def(model.CleanTypeDeep, 9000), def(model.CleanTypeMoveInOut, 12000)},
	)
	require.NoError(t, err)
	return pricing.NewCalculator(cat)
}

type stubCreator struct {
	mu      sync.Mutex
	id      string
	err     error
	calls   int
	last    model.Booking
	started chan struct{}
	release chan struct{}
}

func (c *stubCreator) CreateBooking(ctx context.Context, b model.Booking) (string, error) {
	c.mu.Lock()
	c.calls++
	c.last = b
	started, release := c.started, c.release
	id, err := c.id, c.err
	c.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	return id, err
}

type rejection struct{ msg string }

func (r rejection) Error() string       { return "rejected: " + r.msg }
func (r rejection) UserMessage() string { return r.msg }

type recordingSink struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recordingSink) Track(_ context.Context, e analytics.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) kinds() []analytics.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]analytics.Kind, 0, len(r.events))
	for _, e := range r.events {
		res = append(res, e.Kind)
	}
	return res
}

func ptr[T any](v T) *T { return &v }

func validDetails() model.SubmitDetails {
	return model.SubmitDetails{
		Contact: model.Contact{
			Name:       "Jane Doe",
			Email:      "jane@example.com",
			Phone:      "+15551234567",
			Address:    "1 Main St",
			PostalCode: "94107",
		},
		Schedule: model.Schedule{Date: testNow.AddDate(0, 0, 2), ArrivalWindow: "afternoon"},
	}
}

func newTestStore(t *testing.T, creator BookingCreator, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string { return "booking-1" }),
	}, opts...)
	return NewStore(testCalculator(t), creator, opts...)
}

// walkToReview проходит мастер до шага проверки с черновиком {standard, 2, 1, 3}.
func walkToReview(t *testing.T, s *Store) State {
	t.Helper()
	ctx := context.Background()

	_, err := s.Update(ctx, Patch{CleanType: ptr(model.CleanTypeStandard)})
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)

	_, err = s.Update(ctx, Patch{Beds: ptr(2), Baths: ptr(1)})
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)

	_, err = s.Update(ctx, Patch{Cleanliness: ptr(model.Cleanliness(3))})
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)

	st, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, StepReviewSummary, st.Step)
	return st
}

func TestNewStore_Defaults(t *testing.T) {
	s := newTestStore(t, &stubCreator{})

	st := s.Snapshot()
	assert.Equal(t, StepChooseType, st.Step)
	assert.Equal(t, model.BookingDraft{}, st.Draft)
	assert.False(t, st.CanAdvance())
}

func TestUpdate_ChoosingTypeRaisesBaths(t *testing.T) {
	s := newTestStore(t, &stubCreator{})

	st, err := s.Update(context.Background(), Patch{CleanType: ptr(model.CleanTypeDeep)})
	require.NoError(t, err)

	assert.Equal(t, model.CleanTypeDeep, st.Draft.CleanType)
	assert.Equal(t, 1, st.Draft.Baths)
	assert.Nil(t, st.Draft.Pricing, "draft without cleanliness rating is not priceable")
	assert.True(t, st.CanAdvance())
}

func TestUpdate_PricingAlwaysMatchesDraft(t *testing.T) {
	calc := testCalculator(t)
	s := NewStore(calc, &stubCreator{})
	ctx := context.Background()

	steps := []struct {
		patch   Patch
		advance bool
	}{
		{patch: Patch{CleanType: ptr(model.CleanTypeStandard)}, advance: true},
		{patch: Patch{Beds: ptr(3)}},
		{patch: Patch{Baths: ptr(2)}, advance: true},
		{patch: Patch{Cleanliness: ptr(model.Cleanliness(4))}, advance: true},
		{patch: Patch{Kids: ptr(true)}},
		{patch: Patch{Pets: ptr(true)}},
		{patch: Patch{Kids: ptr(false), Cleanliness: ptr(model.Cleanliness(2))}},
		{patch: Patch{CleanType: ptr(model.CleanTypeMoveInOut), Beds: ptr(1)}},
	}

	for i, step := range steps {
		st, err := s.Update(ctx, step.patch)
		require.NoError(t, err, "step %d", i)

		bare := st.Draft
		bare.Pricing = nil
		if priceable(bare) {
			want, err := calc.Calculate(bare)
			require.NoError(t, err)
			require.NotNil(t, st.Draft.Pricing, "step %d", i)
			assert.Equal(t, want, *st.Draft.Pricing, "step %d", i)
		} else {
			assert.Nil(t, st.Draft.Pricing, "step %d", i)
		}
		assert.Equal(t, st, s.Snapshot())

		if step.advance {
			_, err = s.Next()
			require.NoError(t, err)
		}
	}
}

func TestUpdate_RejectsFieldsOfLaterSteps(t *testing.T) {
	s := newTestStore(t, &stubCreator{})

	_, err := s.Update(context.Background(), Patch{Beds: ptr(2)})
	assert.ErrorIs(t, err, ErrFieldNotEditable)

	_, err = s.Update(context.Background(), Patch{CleanType: ptr(model.CleanTypeStandard), Pets: ptr(true)})
	assert.ErrorIs(t, err, ErrFieldNotEditable)

	assert.Equal(t, model.BookingDraft{}, s.Snapshot().Draft)
}

func TestUpdate_InvalidValuesLeaveStateUntouched(t *testing.T) {
	s := newTestStore(t, &stubCreator{})
	before := walkToReview(t, s)

	tests := []struct {
		name  string
		patch Patch
	}{
		{name: "unknown clean type", patch: Patch{CleanType: ptr(model.CleanType("unknown"))}},
		{name: "negative beds", patch: Patch{Beds: ptr(-1)}},
		{name: "too many beds", patch: Patch{Beds: ptr(6)}},
		{name: "zero baths", patch: Patch{Baths: ptr(0)}},
		{name: "cleanliness zero", patch: Patch{Cleanliness: ptr(model.Cleanliness(0))}},
		{name: "cleanliness six", patch: Patch{Cleanliness: ptr(model.Cleanliness(6))}},
		{name: "valid field with invalid field", patch: Patch{Kids: ptr(true), Baths: ptr(9)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Update(context.Background(), tt.patch)
			assert.ErrorIs(t, err, ErrInvalidPatch)
			assert.Equal(t, before, s.Snapshot())
		})
	}
}

func TestUpdate_NoChangeDoesNotNotify(t *testing.T) {
	s := newTestStore(t, &stubCreator{})
	_, err := s.Update(context.Background(), Patch{CleanType: ptr(model.CleanTypeStandard)})
	require.NoError(t, err)

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	st, err := s.Update(context.Background(), Patch{CleanType: ptr(model.CleanTypeStandard)})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Revision)

	select {
	case got := <-ch:
		t.Fatalf("unexpected notification: %+v", got)
	default:
	}
}

func TestSubscribe_OneMergedNotificationPerUpdate(t *testing.T) {
	s := newTestStore(t, &stubCreator{})
	walkToReview(t, s)

	ch, unsubscribe := s.Subscribe()

	st, err := s.Update(context.Background(), Patch{Kids: ptr(true), Pets: ptr(true), Beds: ptr(3)})
	require.NoError(t, err)

	got := <-ch
	assert.Equal(t, st, got)
	assert.True(t, got.Draft.Kids)
	assert.True(t, got.Draft.Pets)
	assert.Equal(t, 3, got.Draft.Beds)
	require.NotNil(t, got.Draft.Pricing)
	assert.Len(t, got.Draft.Pricing.Adjustments, 3)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected second notification: %+v", extra)
	default:
	}

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestSubscribe_SlowSubscriberSeesLatest(t *testing.T) {
	s := newTestStore(t, &stubCreator{})
	walkToReview(t, s)

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	_, err := s.Update(context.Background(), Patch{Beds: ptr(3)})
	require.NoError(t, err)
	last, err := s.Update(context.Background(), Patch{Beds: ptr(4)})
	require.NoError(t, err)

	got := <-ch
	assert.Equal(t, last, got)
}

func TestNext_RequiresStepFields(t *testing.T) {
	s := newTestStore(t, &stubCreator{})
	ctx := context.Background()

	_, err := s.Next()
	assert.ErrorIs(t, err, ErrStepIncomplete)

	_, err = s.Update(ctx, Patch{CleanType: ptr(model.CleanTypeStandard)})
	require.NoError(t, err)
	st, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, StepSpecifySize, st.Step)

	st, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, StepRateCleanliness, st.Step)

	_, err = s.Next()
	assert.ErrorIs(t, err, ErrStepIncomplete)
}

func TestNext_DoesNotLeaveReview(t *testing.T) {
	s := newTestStore(t, &stubCreator{})
	walkToReview(t, s)

	_, err := s.Next()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StepReviewSummary, s.Snapshot().Step)
}

func TestBack_OnFirstStep(t *testing.T) {
	s := newTestStore(t, &stubCreator{})

	_, err := s.Back()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNavigationKeepsState(t *testing.T) {
	s := newTestStore(t, &stubCreator{})
	review := walkToReview(t, s)

	st, err := s.Rewind(StepSpecifySize)
	require.NoError(t, err)
	assert.Equal(t, StepSpecifySize, st.Step)
	assert.Equal(t, review.Draft, st.Draft)

	for i := 0; i < 3; i++ {
		st, err = s.Next()
		require.NoError(t, err)
	}

	assert.Equal(t, StepReviewSummary, st.Step)
	assert.Equal(t, review.Draft, st.Draft)

	st, err = s.Back()
	require.NoError(t, err)
	assert.Equal(t, StepDescribeHousehold, st.Step)
	assert.Equal(t, review.Draft, st.Draft)
}

func TestRewind_RejectsForward(t *testing.T) {
	s := newTestStore(t, &stubCreator{})

	_, err := s.Rewind(StepReviewSummary)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Rewind(StepSubmitted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Rewind(Step("nowhere"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSubmit_Success(t *testing.T) {
	creator := &stubCreator{id: "remote-42"}
	sink := &recordingSink{}
	s := newTestStore(t, creator, WithAnalytics(sink), WithSessionID("sess"))
	review := walkToReview(t, s)

	id, err := s.Submit(context.Background(), validDetails())
	require.NoError(t, err)
	assert.Equal(t, "remote-42", id)

	st := s.Snapshot()
	assert.Equal(t, StepSubmitted, st.Step)
	assert.Equal(t, "remote-42", st.BookingID)
	assert.False(t, st.Submitting)

	assert.Equal(t, 1, creator.calls)
	assert.Equal(t, "booking-1", creator.last.ID)
	assert.Equal(t, *review.Draft.Pricing, creator.last.Pricing)
	assert.Equal(t, "jane@example.com", creator.last.Contact.Email)
	assert.Equal(t, testNow, creator.last.CreatedAt)

	_, err = s.Update(context.Background(), Patch{Kids: ptr(true)})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	_, err = s.Submit(context.Background(), validDetails())
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	assert.Contains(t, sink.kinds(), analytics.KindSubmitSucceeded)
}

func TestSubmit_FailurePreservesDraft(t *testing.T) {
	creator := &stubCreator{err: rejection{msg: "That date is fully booked."}}
	s := newTestStore(t, creator)
	review := walkToReview(t, s)

	_, err := s.Submit(context.Background(), validDetails())
	require.Error(t, err)

	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, "That date is fully booked.", subErr.Message)

	st := s.Snapshot()
	assert.Equal(t, StepReviewSummary, st.Step)
	assert.Equal(t, review.Draft, st.Draft)
	assert.Equal(t, "That date is fully booked.", st.LastError)
	assert.False(t, st.Submitting)

	creator.mu.Lock()
	creator.err = nil
	creator.id = "ok"
	creator.mu.Unlock()

	id, err := s.Submit(context.Background(), validDetails())
	require.NoError(t, err)
	assert.Equal(t, "ok", id)
	assert.Empty(t, s.Snapshot().LastError)
	assert.Equal(t, 2, creator.calls)
}

func TestSubmit_GenericFailureMessage(t *testing.T) {
	s := newTestStore(t, &stubCreator{err: errors.New("connection reset by peer")})
	walkToReview(t, s)

	_, err := s.Submit(context.Background(), validDetails())

	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, DefaultSubmissionMessage, subErr.Message)
	assert.NotContains(t, s.Snapshot().LastError, "connection")
}

type panickingCreator struct{}

func (panickingCreator) CreateBooking(context.Context, model.Booking) (string, error) {
	panic("nil map write")
}

func TestSubmit_CreatorPanicReleasesSubmission(t *testing.T) {
	s := newTestStore(t, panickingCreator{})
	walkToReview(t, s)

	_, err := s.Submit(context.Background(), validDetails())
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, DefaultSubmissionMessage, subErr.Message)

	st := s.Snapshot()
	assert.False(t, st.Submitting)
	assert.Equal(t, StepReviewSummary, st.Step)
	assert.Equal(t, DefaultSubmissionMessage, st.LastError)

	_, err = s.Update(context.Background(), Patch{Pets: ptr(true)})
	assert.NoError(t, err)
}

func TestSubmit_SingleInFlight(t *testing.T) {
	creator := &stubCreator{id: "one", started: make(chan struct{}), release: make(chan struct{})}
	s := newTestStore(t, creator)
	walkToReview(t, s)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), validDetails())
		done <- err
	}()

	<-creator.started
	assert.True(t, s.Snapshot().Submitting)

	_, err := s.Submit(context.Background(), validDetails())
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = s.Update(context.Background(), Patch{Pets: ptr(true)})
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = s.Back()
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(creator.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, creator.calls)
	assert.Equal(t, StepSubmitted, s.Snapshot().Step)
}

func TestSubmit_NotFromReview(t *testing.T) {
	s := newTestStore(t, &stubCreator{})

	_, err := s.Submit(context.Background(), validDetails())
	assert.ErrorIs(t, err, ErrNotReviewing)
}

func TestSubmit_InvalidDetailsDoNotCallCreator(t *testing.T) {
	creator := &stubCreator{}
	s := newTestStore(t, creator)
	review := walkToReview(t, s)

	details := validDetails()
	details.Contact.Email = "nope"

	_, err := s.Submit(context.Background(), details)
	require.Error(t, err)
	assert.Equal(t, 0, creator.calls)
	assert.Equal(t, review, s.Snapshot())
}

func TestView_TracksStep(t *testing.T) {
	sink := &recordingSink{}
	s := newTestStore(t, &stubCreator{}, WithAnalytics(sink))

	st := s.View(context.Background())
	assert.Equal(t, StepChooseType, st.Step)
	assert.Equal(t, []analytics.Kind{analytics.KindStepViewed}, sink.kinds())
}

func TestRestore(t *testing.T) {
	calc := testCalculator(t)
	s := NewStore(calc, &stubCreator{})
	review := walkToReview(t, s)

	saved := review
	saved.Draft.Pricing = &model.PricingResult{TotalCents: 1}

	restored, err := Restore(calc, &stubCreator{}, saved)
	require.NoError(t, err)

	st := restored.Snapshot()
	assert.Equal(t, review.Step, st.Step)
	assert.Equal(t, review.Draft, st.Draft, "pricing is recomputed, not trusted")
	assert.Equal(t, review.Revision, st.Revision)
}

func TestRestore_Inconsistent(t *testing.T) {
	calc := testCalculator(t)

	_, err := Restore(calc, &stubCreator{}, State{Step: StepReviewSummary, Draft: model.BookingDraft{CleanType: model.CleanTypeDeep, Baths: 1}})
	assert.ErrorIs(t, err, ErrStepIncomplete)

	_, err = Restore(calc, &stubCreator{}, State{Step: "bogus"})
	assert.Error(t, err)

	_, err = Restore(calc, &stubCreator{}, State{Step: StepChooseType, Draft: model.BookingDraft{CleanType: "unknown"}})
	assert.ErrorIs(t, err, ErrInvalidPatch)
}

func TestParseStep(t *testing.T) {
	for _, st := range Steps() {
		got, err := ParseStep(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}

	_, err := ParseStep("later")
	assert.Error(t, err)
}
