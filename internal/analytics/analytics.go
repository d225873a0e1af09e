// Package analytics содержит приёмники аналитических событий мастера бронирования.
// Ошибки приёмников никогда не влияют на работу мастера.
package analytics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Kind обозначает тип аналитического события.
type Kind string

const (
	KindStepViewed      Kind = "step_viewed"
	KindFieldSelected   Kind = "field_selected"
	KindSubmitSucceeded Kind = "submit_succeeded"
	KindSubmitFailed    Kind = "submit_failed"
)

// Event описывает одно событие мастера.
type Event struct {
	Kind      Kind
	SessionID string
	Step      string
	Field     string
	CleanType string
}

// Sink принимает события по принципу fire-and-forget.
type Sink interface {
	Track(ctx context.Context, e Event)
}

// Nop игнорирует все события.
type Nop struct{}

// Track ничего не делает.
func (Nop) Track(context.Context, Event) {}

type safeSink struct {
	next Sink
}

// Safe оборачивает приёмник так, что его паника не выходит за пределы Track.
func Safe(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return safeSink{next: s}
}

func (s safeSink) Track(ctx context.Context, e Event) {
	defer func() { _ = recover() }()
	s.next.Track(ctx, e)
}

// Multi рассылает событие во все приёмники по очереди, каждый изолирован через Safe.
func Multi(sinks ...Sink) Sink {
	wrapped := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			wrapped = append(wrapped, Safe(s))
		}
	}
	return wrapped
}

type multi []Sink

func (m multi) Track(ctx context.Context, e Event) {
	for _, s := range m {
		s.Track(ctx, e)
	}
}

// PrometheusSink считает события мастера в метриках Prometheus.
type PrometheusSink struct {
	stepViews   *prometheus.CounterVec
	selections  *prometheus.CounterVec
	submissions *prometheus.CounterVec
}

// NewPrometheusSink регистрирует метрики в указанном реестре.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	factory := promauto.With(reg)
	return &PrometheusSink{
		stepViews: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_wizard_step_views_total",
			Help: "Total number of wizard step views",
		}, []string{"step"}),

		selections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_wizard_selections_total",
			Help: "Total number of draft field changes",
		}, []string{"field"}),

		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_wizard_submissions_total",
			Help: "Total number of booking submissions by outcome and clean type",
		}, []string{"outcome", "clean_type"}),
	}
}

// Track обновляет счётчик, соответствующий типу события.
func (p *PrometheusSink) Track(_ context.Context, e Event) {
	switch e.Kind {
	case KindStepViewed:
		p.stepViews.WithLabelValues(e.Step).Inc()
	case KindFieldSelected:
		p.selections.WithLabelValues(e.Field).Inc()
	case KindSubmitSucceeded:
		p.submissions.WithLabelValues("success", e.CleanType).Inc()
	case KindSubmitFailed:
		p.submissions.WithLabelValues("failure", e.CleanType).Inc()
	}
}

// LogSink пишет события в журнал на уровне debug.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink создаёт приёмник, пишущий в zap.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Track пишет событие в журнал.
func (l *LogSink) Track(_ context.Context, e Event) {
	l.logger.Debug("wizard event",
		zap.String("kind", string(e.Kind)),
		zap.String("session", e.SessionID),
		zap.String("step", e.Step),
		zap.String("field", e.Field),
		zap.String("clean_type", e.CleanType),
	)
}
