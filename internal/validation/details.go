// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/cleanbook/internal/model"
)

// ErrInvalidDetails позволяет сопоставить DetailsError через errors.Is.
var ErrInvalidDetails = errors.New("invalid submit details")

// DetailsError перечисляет поля, не прошедшие проверку.
type DetailsError struct {
	Fields map[string]string
}

func (e *DetailsError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid submit details: " + strings.Join(parts, "; ")
}

// Is реализует сопоставление с ErrInvalidDetails.
func (e *DetailsError) Is(target error) bool {
	return target == ErrInvalidDetails
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// SubmitDetails проверяет контакты и расписание. Дата визита не может быть раньше текущего дня.
func SubmitDetails(d model.SubmitDetails, now time.Time) error {
	fields := make(map[string]string)

	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate details: %w", err)
		}
		for _, fe := range verrs {
			fields[fieldPath(fe.Namespace())] = "failed " + fe.Tag()
		}
	}

	// Сравниваются календарные даты: дата визита не привязана к часовому поясу сервера.
	if !d.Schedule.Date.IsZero() && calendarDay(d.Schedule.Date).Before(calendarDay(now)) {
		fields["schedule.date"] = "in the past"
	}

	if len(fields) > 0 {
		return &DetailsError{Fields: fields}
	}
	return nil
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fieldPath убирает имя корневой структуры: "SubmitDetails.contact.email" -> "contact.email".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
