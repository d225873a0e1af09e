// Package model содержит доменные сущности мастера бронирования уборки.
package model

import "time"

// CleanType описывает вид уборки из каталога услуг.
type CleanType string

const (
	CleanTypeUnset     CleanType = ""
	CleanTypeStandard  CleanType = "standard"
	CleanTypeDeep      CleanType = "deep"
	CleanTypeMoveInOut CleanType = "move_in_out"
)

// CleanTypes возвращает закрытый набор видов уборки в порядке показа.
func CleanTypes() []CleanType {
	return []CleanType{CleanTypeStandard, CleanTypeDeep, CleanTypeMoveInOut}
}

// Valid сообщает, входит ли значение в закрытый набор видов уборки.
func (t CleanType) Valid() bool {
	switch t {
	case CleanTypeStandard, CleanTypeDeep, CleanTypeMoveInOut:
		return true
	default:
		return false
	}
}

// Cleanliness хранит субъективную оценку исходного состояния жилья по шкале от 1 до 5.
// Нулевое значение означает, что оценка ещё не выставлена.
type Cleanliness int

const (
	CleanlinessUnrated Cleanliness = 0
	CleanlinessMin     Cleanliness = 1
	CleanlinessMax     Cleanliness = 5
)

// Rated сообщает, выставлена ли оценка в допустимом диапазоне.
func (c Cleanliness) Rated() bool {
	return c >= CleanlinessMin && c <= CleanlinessMax
}

// Adjustment описывает именованную надбавку или скидку к базовой цене.
type Adjustment struct {
	Label       string `json:"label"`
	AmountCents int64  `json:"amount_cents"`
}

// PricingResult содержит расчёт стоимости черновика в копейках (центах).
type PricingResult struct {
	SubtotalCents int64        `json:"subtotal_cents"`
	Adjustments   []Adjustment `json:"adjustments"`
	TotalCents    int64        `json:"total_cents"`
}

// Clone возвращает копию результата, не разделяющую срез надбавок.
func (p *PricingResult) Clone() *PricingResult {
	if p == nil {
		return nil
	}
	c := *p
	c.Adjustments = append([]Adjustment(nil), p.Adjustments...)
	return &c
}

// BookingDraft хранит незавершённый выбор пользователя в рамках одной сессии мастера.
type BookingDraft struct {
	CleanType   CleanType      `json:"clean_type"`
	Beds        int            `json:"beds"`
	Baths       int            `json:"baths"`
	Cleanliness Cleanliness    `json:"cleanliness"`
	Kids        bool           `json:"kids"`
	Pets        bool           `json:"pets"`
	Pricing     *PricingResult `json:"pricing,omitempty"`
}

// Clone возвращает глубокую копию черновика.
func (d BookingDraft) Clone() BookingDraft {
	d.Pricing = d.Pricing.Clone()
	return d
}

// Contact содержит контактные данные клиента, собираемые перед отправкой.
type Contact struct {
	Name       string `json:"name" validate:"required,max=200"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,e164"`
	Address    string `json:"address" validate:"required,max=500"`
	PostalCode string `json:"postal_code" validate:"required,alphanum,min=3,max=10"`
}

// Schedule описывает желаемую дату и окно прибытия.
type Schedule struct {
	Date          time.Time `json:"date" validate:"required"`
	ArrivalWindow string    `json:"arrival_window" validate:"required,oneof=morning afternoon evening"`
	Notes         string    `json:"notes,omitempty" validate:"max=1000"`
}

// SubmitDetails содержит данные с шагов вне ядра мастера, прикладываемые при отправке.
type SubmitDetails struct {
	Contact  Contact  `json:"contact"`
	Schedule Schedule `json:"schedule"`
}

// Booking описывает завершённую заявку, передаваемую в систему создания бронирований.
type Booking struct {
	ID          string        `json:"id"`
	CleanType   CleanType     `json:"clean_type"`
	Beds        int           `json:"beds"`
	Baths       int           `json:"baths"`
	Cleanliness Cleanliness   `json:"cleanliness"`
	Kids        bool          `json:"kids"`
	Pets        bool          `json:"pets"`
	Pricing     PricingResult `json:"pricing"`
	Contact     Contact       `json:"contact"`
	Schedule    Schedule      `json:"schedule"`
	CreatedAt   time.Time     `json:"created_at"`
}
