// Package catalog loads product seeds into a commerce backend.
//
// Seeds are YAML documents whose row keys follow the column headers of the
// product spreadsheet:
//
//	products:
//	  - ID: 1
//	    TIPO_PRENDA: Camiseta
//	    TALLA: M
//	    COLOR: Rojo
//	    CANTIDAD_DISPONIBLE: 120
//	    PRECIO_50_U: "1.250,00"
//	    PRECIO_100_U: 1100
//	    PRECIO_200_U: 990.5
//	    DISPONIBLE: Sí
//	    CATEGORÍA: Casual
//	    DESCRIPCIÓN: Algodón peinado
//
// Prices are given in currency units and stored in cents. String prices use
// "." as thousands separator and "," as decimal separator.
package catalog

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ggoodman/mcp-sse-commerce/commerce"
)

// Seed is the top-level seed document.
type Seed struct {
	Products []Row `yaml:"products"`
}

// Row is one spreadsheet row.
type Row struct {
	ID                 int64  `yaml:"ID"`
	TipoPrenda         string `yaml:"TIPO_PRENDA"`
	Talla              string `yaml:"TALLA"`
	Color              string `yaml:"COLOR"`
	CantidadDisponible int    `yaml:"CANTIDAD_DISPONIBLE"`
	Precio50U          Money  `yaml:"PRECIO_50_U"`
	Precio100U         Money  `yaml:"PRECIO_100_U"`
	Precio200U         Money  `yaml:"PRECIO_200_U"`
	Disponible         Flag   `yaml:"DISPONIBLE"`
	Categoria          string `yaml:"CATEGORÍA"`
	Descripcion        string `yaml:"DESCRIPCIÓN"`
}

// Money is a price in cents decoded from a number or a localized string.
type Money int64

func (m *Money) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: price must be a scalar", value.Line)
	}
	cents, err := ParseMoney(value.Value, value.ShortTag() == "!!str")
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*m = Money(cents)
	return nil
}

// ParseMoney converts a price to cents. Localized strings ("1.234,50")
// drop "." and treat "," as the decimal point; plain numbers are parsed as
// is. Empty input is zero.
func ParseMoney(s string, localized bool) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "~" || s == "null" {
		return 0, nil
	}
	if localized {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	return int64(math.Round(v * 100)), nil
}

// Flag decodes the DISPONIBLE column: numbers are true when non-zero,
// strings when they read as an affirmative.
type Flag bool

func (f *Flag) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: flag must be a scalar", value.Line)
	}
	*f = Flag(ParseFlag(value.Value))
	return nil
}

// ParseFlag reports whether s reads as an affirmative availability flag.
func ParseFlag(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n != 0
	}
	switch s {
	case "true", "t", "yes", "y", "si", "sí", "s":
		return true
	}
	return false
}

// ToProducts converts the seed rows. Rows without an ID are numbered by
// position (1-based).
func (s *Seed) ToProducts() []commerce.Product {
	out := make([]commerce.Product, 0, len(s.Products))
	for i, r := range s.Products {
		id := r.ID
		if id == 0 {
			id = int64(i + 1)
		}
		out = append(out, commerce.Product{
			ID:                 id,
			TipoPrenda:         strings.TrimSpace(r.TipoPrenda),
			Talla:              strings.TrimSpace(r.Talla),
			Color:              strings.TrimSpace(r.Color),
			CantidadDisponible: r.CantidadDisponible,
			Precio50UCents:     int64(r.Precio50U),
			Precio100UCents:    int64(r.Precio100U),
			Precio200UCents:    int64(r.Precio200U),
			Disponible:         bool(r.Disponible),
			Categoria:          strings.TrimSpace(r.Categoria),
			Descripcion:        strings.TrimSpace(r.Descripcion),
		})
	}
	return out
}

// Parse decodes a seed document.
func Parse(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}
	return &s, nil
}

// Load reads the seed at path and upserts its products into w. It returns
// the number of products written.
func Load(ctx context.Context, path string, w commerce.CatalogWriter) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog seed: %w", err)
	}
	seed, err := Parse(data)
	if err != nil {
		return 0, err
	}
	products := seed.ToProducts()
	if err := w.UpsertProducts(ctx, products); err != nil {
		return 0, fmt.Errorf("upsert products: %w", err)
	}
	return len(products), nil
}
