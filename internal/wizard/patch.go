package wizard

import (
	"fmt"

	"github.com/mmeshcher/cleanbook/internal/catalog"
	"github.com/mmeshcher/cleanbook/internal/model"
)

// Patch перечисляет поля черновика, которые можно менять независимо. Nil означает «не менять».
// Расчёт стоимости в Patch не входит: его выполняет хранилище.
type Patch struct {
	CleanType   *model.CleanType   `json:"clean_type,omitempty"`
	Beds        *int               `json:"beds,omitempty"`
	Baths       *int               `json:"baths,omitempty"`
	Cleanliness *model.Cleanliness `json:"cleanliness,omitempty"`
	Kids        *bool              `json:"kids,omitempty"`
	Pets        *bool              `json:"pets,omitempty"`
}

// Empty сообщает, что патч ничего не меняет.
func (p Patch) Empty() bool {
	return p.CleanType == nil && p.Beds == nil && p.Baths == nil &&
		p.Cleanliness == nil && p.Kids == nil && p.Pets == nil
}

type patchField struct {
	name  string
	owner Step
	set   bool
}

func (p Patch) fields() []patchField {
	return []patchField{
		{name: "clean_type", owner: StepChooseType, set: p.CleanType != nil},
		{name: "beds", owner: StepSpecifySize, set: p.Beds != nil},
		{name: "baths", owner: StepSpecifySize, set: p.Baths != nil},
		{name: "cleanliness", owner: StepRateCleanliness, set: p.Cleanliness != nil},
		{name: "kids", owner: StepDescribeHousehold, set: p.Kids != nil},
		{name: "pets", owner: StepDescribeHousehold, set: p.Pets != nil},
	}
}

// checkEditable разрешает менять поля текущего и уже пройденных шагов.
func (p Patch) checkEditable(current Step) error {
	for _, f := range p.fields() {
		if f.set && f.owner.index() > current.index() {
			return fmt.Errorf("%w: %s belongs to %s, current step is %s", ErrFieldNotEditable, f.name, f.owner, current)
		}
	}
	return nil
}

// apply сливает патч в черновик и возвращает имена действительно изменённых полей.
func (p Patch) apply(d *model.BookingDraft, cat *catalog.Catalog) ([]string, error) {
	var changed []string

	if p.CleanType != nil {
		t := *p.CleanType
		if !t.Valid() {
			return nil, patchError("clean_type", "unknown value %q", t)
		}
		if _, ok := cat.CleanType(t); !ok {
			return nil, patchError("clean_type", "%q not offered", t)
		}
		if d.CleanType != t {
			d.CleanType = t
			changed = append(changed, "clean_type")
		}
	}

	if p.Beds != nil {
		if *p.Beds < 0 {
			return nil, patchError("beds", "must not be negative")
		}
		if d.Beds != *p.Beds {
			d.Beds = *p.Beds
			changed = append(changed, "beds")
		}
	}

	if p.Baths != nil {
		if *p.Baths < 1 {
			return nil, patchError("baths", "must be at least 1")
		}
		if d.Baths != *p.Baths {
			d.Baths = *p.Baths
			changed = append(changed, "baths")
		}
	}

	if p.Cleanliness != nil {
		if !p.Cleanliness.Rated() {
			return nil, patchError("cleanliness", "must be between %d and %d", model.CleanlinessMin, model.CleanlinessMax)
		}
		if d.Cleanliness != *p.Cleanliness {
			d.Cleanliness = *p.Cleanliness
			changed = append(changed, "cleanliness")
		}
	}

	if p.Kids != nil && d.Kids != *p.Kids {
		d.Kids = *p.Kids
		changed = append(changed, "kids")
	}

	if p.Pets != nil && d.Pets != *p.Pets {
		d.Pets = *p.Pets
		changed = append(changed, "pets")
	}

	// После выбора вида уборки санузлов не может быть меньше одного.
	if d.CleanType != model.CleanTypeUnset && d.Baths < 1 {
		d.Baths = 1
	}

	if d.CleanType != model.CleanTypeUnset {
		def, _ := cat.CleanType(d.CleanType)
		if d.Beds > def.Prices.MaxBeds {
			return nil, patchError("beds", "at most %d for %s", def.Prices.MaxBeds, def.DisplayName)
		}
		if d.Baths > def.Prices.MaxBaths {
			return nil, patchError("baths", "at most %d for %s", def.Prices.MaxBaths, def.DisplayName)
		}
	}

	return changed, nil
}

// priceable сообщает, заполнены ли все поля, нужные калькулятору.
func priceable(d model.BookingDraft) bool {
	return d.CleanType != model.CleanTypeUnset && d.Baths >= 1 && d.Cleanliness.Rated()
}
