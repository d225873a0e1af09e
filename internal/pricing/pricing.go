// Package pricing рассчитывает стоимость уборки по черновику бронирования.
package pricing

import (
	"errors"
	"fmt"

	"github.com/mmeshcher/cleanbook/internal/catalog"
	"github.com/mmeshcher/cleanbook/internal/model"
)

// ErrInvalidDraft позволяет сопоставить любую InvalidDraftError через errors.Is.
var ErrInvalidDraft = errors.New("invalid draft")

// InvalidDraftError возвращается, если черновик нельзя оценить.
type InvalidDraftError struct {
	Field  string
	Reason string
}

func (e *InvalidDraftError) Error() string {
	return fmt.Sprintf("invalid draft: %s: %s", e.Field, e.Reason)
}

// Is реализует сопоставление с ErrInvalidDraft.
func (e *InvalidDraftError) Is(target error) bool {
	return target == ErrInvalidDraft
}

func invalid(field, format string, args ...any) error {
	return &InvalidDraftError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Calculator реализует чистую функцию расчёта стоимости поверх загруженного каталога.
type Calculator struct {
	catalog *catalog.Catalog
}

// NewCalculator создаёт калькулятор для указанного каталога.
func NewCalculator(cat *catalog.Catalog) *Calculator {
	return &Calculator{catalog: cat}
}

// Catalog возвращает каталог, по которому ведётся расчёт.
func (c *Calculator) Catalog() *catalog.Catalog {
	return c.catalog
}

// Calculate возвращает подытог, надбавки и итог для черновика.
// Надбавки всегда идут в порядке: чистота, дети, животные.
func (c *Calculator) Calculate(d model.BookingDraft) (model.PricingResult, error) {
	def, err := c.definition(d.CleanType)
	if err != nil {
		return model.PricingResult{}, err
	}

	p := def.Prices
	if d.Beds < 0 || d.Beds > p.MaxBeds {
		return model.PricingResult{}, invalid("beds", "%d outside [0, %d]", d.Beds, p.MaxBeds)
	}
	if d.Baths < 1 || d.Baths > p.MaxBaths {
		return model.PricingResult{}, invalid("baths", "%d outside [1, %d]", d.Baths, p.MaxBaths)
	}
	if !d.Cleanliness.Rated() {
		return model.PricingResult{}, invalid("cleanliness", "%d outside [%d, %d]", d.Cleanliness, model.CleanlinessMin, model.CleanlinessMax)
	}

	subtotal := p.BaseCents + int64(d.Beds)*p.PerBedCents + int64(d.Baths)*p.PerBathCents

	var adjustments []model.Adjustment

	if bp := def.CleanlinessBasisPoints[d.Cleanliness-1]; bp != 0 {
		adjustments = append(adjustments, model.Adjustment{
			Label:       "Cleanliness: " + c.catalog.CleanlinessLabel(d.Cleanliness),
			AmountCents: roundHalfUp(subtotal*bp, 10000),
		})
	}
	if d.Kids && def.Kids.AmountCents != 0 {
		adjustments = append(adjustments, model.Adjustment{Label: def.Kids.Label, AmountCents: def.Kids.AmountCents})
	}
	if d.Pets && def.Pets.AmountCents != 0 {
		adjustments = append(adjustments, model.Adjustment{Label: def.Pets.Label, AmountCents: def.Pets.AmountCents})
	}

	total := subtotal
	for _, a := range adjustments {
		total += a.AmountCents
	}
	if total < 0 {
		total = 0
	}

	return model.PricingResult{
		SubtotalCents: subtotal,
		Adjustments:   adjustments,
		TotalCents:    total,
	}, nil
}

func (c *Calculator) definition(t model.CleanType) (catalog.CleanTypeDef, error) {
	switch t {
	case model.CleanTypeStandard, model.CleanTypeDeep, model.CleanTypeMoveInOut:
		def, ok := c.catalog.CleanType(t)
		if !ok {
			return catalog.CleanTypeDef{}, invalid("clean_type", "%q not in catalog", t)
		}
		return def, nil
	case model.CleanTypeUnset:
		return catalog.CleanTypeDef{}, invalid("clean_type", "not selected")
	default:
		return catalog.CleanTypeDef{}, invalid("clean_type", "unknown value %q", t)
	}
}

// roundHalfUp делит num на den (den > 0) с округлением половины вверх, в том числе для отрицательных значений.
func roundHalfUp(num, den int64) int64 {
	return floorDiv(2*num+den, 2*den)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
