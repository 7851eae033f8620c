// Package taxonomy normalizes free-form measurement labels from size charts
// ("pit to pit", "Bust") into a fixed set of canonical categories ("chest").
package taxonomy

import (
	"fmt"
	"strings"

	"github.com/siestheapp/jester-remote/internal/models"
)

// Category is a canonical measurement category and its known textual
// variants. The canonical name is always one of its own variants.
type Category struct {
	Name     string   `json:"name"`
	Variants []string `json:"variants"`
}

// DefaultCategories returns the seed taxonomy of apparel measurement
// categories. Registration order matters: it is the documented tie-break for
// fuzzy matches.
func DefaultCategories() []Category {
	return []Category{
		{Name: "chest", Variants: []string{
			"chest", "chest width", "chest circumference", "bust",
			"chest measurement", "chest size", "bust measurement",
		}},
		{Name: "waist", Variants: []string{
			"waist", "waist size", "waist circumference",
			"waist measurement", "natural waist",
		}},
		{Name: "hip", Variants: []string{
			"hip", "hip measurement", "hip circumference",
			"hip size", "seat", "seat measurement",
		}},
		{Name: "inseam", Variants: []string{
			"inseam", "inseam length", "inside leg",
			"leg length", "inner leg measurement",
		}},
		{Name: "neck", Variants: []string{
			"neck", "neck size", "collar", "collar size",
			"neck circumference", "neck measurement",
		}},
		{Name: "sleeve", Variants: []string{
			"sleeve", "sleeve length", "arm length",
			"sleeve measurement", "arm measurement",
		}},
		{Name: "shoulder", Variants: []string{
			"shoulder", "shoulder width", "across shoulder",
			"shoulder measurement", "shoulder breadth",
		}},
	}
}

// NormalizeLabel lowercases, collapses internal whitespace runs to a single
// space, and trims. The result is the lookup key for both exact and fuzzy
// matching.
func NormalizeLabel(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}

// normalizeCategories validates and canonicalizes a category list:
// names and variants are normalized, the canonical name is added to its own
// variant set, duplicate variants within a category are collapsed, and a
// variant claimed by two categories is a configuration error.
func normalizeCategories(cats []Category) ([]Category, error) {
	seen := make(map[string]string) // variant -> owning category
	out := make([]Category, 0, len(cats))
	for _, cat := range cats {
		name := NormalizeLabel(cat.Name)
		if name == "" {
			return nil, fmt.Errorf("empty category name: %w", models.ErrInvalidArgument)
		}
		variants := make([]string, 0, len(cat.Variants)+1)
		have := make(map[string]bool)
		add := func(v string) error {
			v = NormalizeLabel(v)
			if v == "" || have[v] {
				return nil
			}
			if owner, ok := seen[v]; ok {
				return fmt.Errorf("variant %q claimed by both %q and %q: %w",
					v, owner, name, models.ErrInvalidArgument)
			}
			seen[v] = name
			have[v] = true
			variants = append(variants, v)
			return nil
		}
		if err := add(name); err != nil {
			return nil, err
		}
		for _, v := range cat.Variants {
			if err := add(v); err != nil {
				return nil, err
			}
		}
		out = append(out, Category{Name: name, Variants: variants})
	}
	return out, nil
}
