// Package catalog предоставляет каталог видов уборки, прайс-листы и подписи шкалы чистоты.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/cleanbook/internal/model"
)

// ErrCatalogUnavailable возвращается, если каталог не удалось загрузить.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// PriceTable задаёт базовую цену вида уборки в зависимости от размера жилья.
type PriceTable struct {
	BaseCents    int64 `yaml:"base_cents" json:"base_cents"`
	PerBedCents  int64 `yaml:"per_bed_cents" json:"per_bed_cents"`
	PerBathCents int64 `yaml:"per_bath_cents" json:"per_bath_cents"`
	MaxBeds      int   `yaml:"max_beds" json:"max_beds"`
	MaxBaths     int   `yaml:"max_baths" json:"max_baths"`
}

// Surcharge описывает фиксированную надбавку с подписью.
type Surcharge struct {
	Label       string `yaml:"label" json:"label"`
	AmountCents int64  `yaml:"amount_cents" json:"amount_cents"`
}

// CleanTypeDef описывает вид уборки и правила его тарификации.
type CleanTypeDef struct {
	ID          model.CleanType `yaml:"id" json:"id"`
	DisplayName string          `yaml:"display_name" json:"display_name"`
	Description string          `yaml:"description" json:"description,omitempty"`
	Prices      PriceTable      `yaml:"prices" json:"prices"`
	// CleanlinessBasisPoints задаёт надбавку к подытогу по уровням чистоты 1..5 в сотых долях процента.
	CleanlinessBasisPoints [5]int64  `yaml:"cleanliness_basis_points" json:"cleanliness_basis_points"`
	Kids                   Surcharge `yaml:"kids" json:"kids"`
	Pets                   Surcharge `yaml:"pets" json:"pets"`
}

type fileFormat struct {
	CleanlinessLabels []string       `yaml:"cleanliness_labels"`
	CleanTypes        []CleanTypeDef `yaml:"clean_types"`
}

// Catalog хранит каталог услуг, неизменяемый после загрузки.
type Catalog struct {
	labels [5]string
	types  map[model.CleanType]CleanTypeDef
	order  []model.CleanType
}

// New собирает каталог из определений и проверяет его целостность.
func New(labels []string, defs []CleanTypeDef) (*Catalog, error) {
	if len(labels) != 5 {
		return nil, fmt.Errorf("cleanliness labels: want 5, got %d", len(labels))
	}

	c := &Catalog{types: make(map[model.CleanType]CleanTypeDef, len(defs))}
	for i, l := range labels {
		if l == "" {
			return nil, fmt.Errorf("cleanliness label %d is empty", i+1)
		}
		c.labels[i] = l
	}

	for _, d := range defs {
		if !d.ID.Valid() {
			return nil, fmt.Errorf("unknown clean type %q", d.ID)
		}
		if _, dup := c.types[d.ID]; dup {
			return nil, fmt.Errorf("duplicate clean type %q", d.ID)
		}
		if err := validateDef(d); err != nil {
			return nil, fmt.Errorf("clean type %q: %w", d.ID, err)
		}
		c.types[d.ID] = d
		c.order = append(c.order, d.ID)
	}

	for _, t := range model.CleanTypes() {
		if _, ok := c.types[t]; !ok {
			return nil, fmt.Errorf("clean type %q missing from catalog", t)
		}
	}

	return c, nil
}

func validateDef(d CleanTypeDef) error {
	p := d.Prices
	if d.DisplayName == "" {
		return errors.New("display name is empty")
	}
	// Отрицательная цена за комнату нарушила бы монотонность подытога.
	if p.BaseCents < 0 || p.PerBedCents < 0 || p.PerBathCents < 0 {
		return errors.New("prices must not be negative")
	}
	if p.MaxBeds < 0 || p.MaxBaths < 1 {
		return errors.New("size limits out of range")
	}
	if d.Kids.AmountCents != 0 && d.Kids.Label == "" {
		return errors.New("kids surcharge has no label")
	}
	if d.Pets.AmountCents != 0 && d.Pets.Label == "" {
		return errors.New("pets surcharge has no label")
	}
	return nil
}

// Parse разбирает каталог в формате YAML.
func Parse(data []byte) (*Catalog, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(f.CleanlinessLabels, f.CleanTypes)
}

// LoadFile читает каталог из YAML-файла.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// CleanType возвращает определение вида уборки.
func (c *Catalog) CleanType(t model.CleanType) (CleanTypeDef, bool) {
	d, ok := c.types[t]
	return d, ok
}

// CleanTypes возвращает определения в порядке следования в каталоге.
func (c *Catalog) CleanTypes() []CleanTypeDef {
	res := make([]CleanTypeDef, 0, len(c.order))
	for _, t := range c.order {
		res = append(res, c.types[t])
	}
	return res
}

// CleanlinessLabel возвращает подпись уровня чистоты или пустую строку вне диапазона.
func (c *Catalog) CleanlinessLabel(level model.Cleanliness) string {
	if !level.Rated() {
		return ""
	}
	return c.labels[level-1]
}

// CleanlinessLabels возвращает все пять подписей шкалы.
func (c *Catalog) CleanlinessLabels() []string {
	return append([]string(nil), c.labels[:]...)
}

// Loader загружает каталог из внешнего источника.
type Loader func(ctx context.Context) (*Catalog, error)

// FileLoader возвращает загрузчик каталога из файла.
func FileLoader(path string) Loader {
	return func(ctx context.Context) (*Catalog, error) {
		return LoadFile(path)
	}
}

// Provider загружает каталог один раз и кэширует его. При неудаче следующий вызов повторяет загрузку.
type Provider struct {
	mu   sync.Mutex
	load Loader
	cat  *Catalog
}

// NewProvider создаёт провайдер каталога.
func NewProvider(load Loader) *Provider {
	return &Provider{load: load}
}

// Get возвращает загруженный каталог.
func (p *Provider) Get(ctx context.Context) (*Catalog, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cat != nil {
		return p.cat, nil
	}

	cat, err := p.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	p.cat = cat
	return cat, nil
}
