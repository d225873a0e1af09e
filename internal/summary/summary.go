// Package summary формирует представление черновика для экрана проверки и подтверждения.
package summary

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/mmeshcher/cleanbook/internal/catalog"
	"github.com/mmeshcher/cleanbook/internal/model"
	"github.com/mmeshcher/cleanbook/internal/wizard"
)

// Line описывает строку расчёта стоимости.
type Line struct {
	Label       string `json:"label"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
}

// Progress описывает положение пользователя в мастере.
type Progress struct {
	Step    wizard.Step `json:"step"`
	Current int         `json:"current"`
	Total   int         `json:"total"`
}

// View содержит представление черновика только для чтения.
type View struct {
	Progress         Progress `json:"progress"`
	CleanType        string   `json:"clean_type,omitempty"`
	CleanTypeName    string   `json:"clean_type_name,omitempty"`
	Beds             int      `json:"beds"`
	Baths            int      `json:"baths"`
	Cleanliness      int      `json:"cleanliness"`
	CleanlinessLabel string   `json:"cleanliness_label,omitempty"`
	Kids             bool     `json:"kids"`
	Pets             bool     `json:"pets"`
	Lines            []Line   `json:"lines,omitempty"`
	Subtotal         string   `json:"subtotal,omitempty"`
	Total            string   `json:"total,omitempty"`
	CanAdvance       bool     `json:"can_advance"`
	Submitting       bool     `json:"submitting"`
	Error            string   `json:"error,omitempty"`
	BookingID        string   `json:"booking_id,omitempty"`
}

// Build строит представление по снимку состояния и каталогу.
func Build(st wizard.State, cat *catalog.Catalog) View {
	d := st.Draft

	v := View{
		Progress:    progress(st.Step),
		CleanType:   string(d.CleanType),
		Beds:        d.Beds,
		Baths:       d.Baths,
		Cleanliness: int(d.Cleanliness),
		Kids:        d.Kids,
		Pets:        d.Pets,
		CanAdvance:  st.CanAdvance(),
		Submitting:  st.Submitting,
		Error:       st.LastError,
		BookingID:   st.BookingID,
	}

	if cat != nil {
		if def, ok := cat.CleanType(d.CleanType); ok {
			v.CleanTypeName = def.DisplayName
		}
		v.CleanlinessLabel = cat.CleanlinessLabel(d.Cleanliness)
	}

	if p := d.Pricing; p != nil {
		v.Lines = append(v.Lines, Line{Label: "Subtotal", AmountCents: p.SubtotalCents, Amount: FormatMoney(p.SubtotalCents)})
		for _, a := range p.Adjustments {
			v.Lines = append(v.Lines, Line{Label: a.Label, AmountCents: a.AmountCents, Amount: FormatMoney(a.AmountCents)})
		}
		v.Subtotal = FormatMoney(p.SubtotalCents)
		v.Total = FormatMoney(p.TotalCents)
	}

	return v
}

// BuildBooking строит представление сохранённого бронирования для страницы подтверждения.
func BuildBooking(b model.Booking, cat *catalog.Catalog) View {
	pricing := b.Pricing
	st := wizard.State{
		Step: wizard.StepSubmitted,
		Draft: model.BookingDraft{
			CleanType:   b.CleanType,
			Beds:        b.Beds,
			Baths:       b.Baths,
			Cleanliness: b.Cleanliness,
			Kids:        b.Kids,
			Pets:        b.Pets,
			Pricing:     &pricing,
		},
		BookingID: b.ID,
	}
	return Build(st, cat)
}

// FormatMoney форматирует сумму в центах с разделителями разрядов.
func FormatMoney(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%s.%02d", sign, humanize.Comma(cents/100), cents%100)
}

func progress(step wizard.Step) Progress {
	steps := wizard.Steps()
	// Последний шаг («отправлено») не считается шагом ввода.
	total := len(steps) - 1
	for i, s := range steps {
		if s == step {
			cur := i + 1
			if cur > total {
				cur = total
			}
			return Progress{Step: step, Current: cur, Total: total}
		}
	}
	return Progress{Step: step, Total: total}
}
