package wizard

import "fmt"

// Step обозначает шаг мастера бронирования.
type Step string

const (
	StepChooseType        Step = "choose_type"
	StepSpecifySize       Step = "specify_size"
	StepRateCleanliness   Step = "rate_cleanliness"
	StepDescribeHousehold Step = "describe_household"
	StepReviewSummary     Step = "review_summary"
	StepSubmitted         Step = "submitted"
)

var stepOrder = []Step{
	StepChooseType,
	StepSpecifySize,
	StepRateCleanliness,
	StepDescribeHousehold,
	StepReviewSummary,
	StepSubmitted,
}

// Steps возвращает все шаги в порядке прохождения.
func Steps() []Step {
	return append([]Step(nil), stepOrder...)
}

// ParseStep разбирает имя шага.
func ParseStep(s string) (Step, error) {
	for _, st := range stepOrder {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown step %q", s)
}

func (s Step) index() int {
	for i, st := range stepOrder {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Step) next() Step {
	return stepOrder[s.index()+1]
}

func (s Step) prev() Step {
	return stepOrder[s.index()-1]
}
