package wizard

import (
	"errors"
	"fmt"
)

var (
	// ErrStepIncomplete возвращается, если обязательные поля текущего шага не заполнены.
	ErrStepIncomplete = errors.New("step is incomplete")
	// ErrInvalidTransition возвращается при недопустимом переходе между шагами.
	ErrInvalidTransition = errors.New("invalid step transition")
	// ErrFieldNotEditable возвращается при попытке изменить поле ещё не пройденного шага.
	ErrFieldNotEditable = errors.New("field is not editable on this step")
	// ErrInvalidPatch возвращается, если значение поля вне допустимого диапазона.
	ErrInvalidPatch = errors.New("invalid patch")
	// ErrSubmissionInFlight возвращается, пока предыдущая отправка не завершилась.
	ErrSubmissionInFlight = errors.New("submission in flight")
	// ErrNotReviewing возвращается при попытке отправить черновик не с шага проверки.
	ErrNotReviewing = errors.New("draft can only be submitted from review step")
	// ErrAlreadySubmitted возвращается при любом изменении уже отправленного черновика.
	ErrAlreadySubmitted = errors.New("booking already submitted")
)

// DefaultSubmissionMessage показывается пользователю, если система бронирования не дала пояснений.
const DefaultSubmissionMessage = "We couldn't create your booking right now. Please check your details and try again."

// SubmissionError возвращается, если система создания бронирований отклонила или не обработала черновик.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit booking: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// userMessager реализуют ошибки систем бронирования, несущие текст для пользователя.
type userMessager interface {
	UserMessage() string
}

func newSubmissionError(err error) *SubmissionError {
	msg := DefaultSubmissionMessage
	var um userMessager
	if errors.As(err, &um) && um.UserMessage() != "" {
		msg = um.UserMessage()
	}
	return &SubmissionError{Message: msg, Err: err}
}

func patchError(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidPatch, field, fmt.Sprintf(format, args...))
}
