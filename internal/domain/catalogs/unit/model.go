// Package unit provides the units of measure of inventory items and the
// base-unit resolver used while composing import documents.
package unit

import (
	"github.com/shopspring/decimal"

	"dentalstock/internal/core/apperror"
)

// Definition is one unit of measure of an item (e.g. "hộp", "vỉ", "viên").
type Definition struct {
	ID   int64  `json:"id"`
	Name string `json:"unitName"`

	// ConversionRate is how many base units one of this unit holds.
	// The base unit has rate 1; every other unit has rate > 1.
	ConversionRate decimal.Decimal `json:"conversionRate"`

	// IsBase marks the unit quantities are recorded in.
	IsBase bool `json:"isBaseUnit"`

	DisplayOrder int `json:"displayOrder"`
}

// IsValidBase reports whether d can serve as an item's base unit.
func (d *Definition) IsValidBase() bool {
	return d != nil && d.ID > 0 && d.IsBase && d.ConversionRate.Equal(decimal.NewFromInt(1))
}

// ValidateSet checks the unit invariants of one item: exactly one unit is
// flagged base with rate 1, all others have rate > 1.
func ValidateSet(defs []Definition) error {
	if len(defs) == 0 {
		return apperror.NewValidation("item has no units").
			WithDetail("field", "units")
	}

	one := decimal.NewFromInt(1)
	bases := 0
	for i, d := range defs {
		if d.IsBase {
			bases++
			if !d.ConversionRate.Equal(one) {
				return apperror.NewValidation("base unit must have conversion rate 1").
					WithDetail("field", "conversionRate").
					WithDetail("unit", d.Name).
					WithDetail("index", i)
			}
			continue
		}
		if !d.ConversionRate.GreaterThan(one) {
			return apperror.NewValidation("non-base unit must have conversion rate greater than 1").
				WithDetail("field", "conversionRate").
				WithDetail("unit", d.Name).
				WithDetail("index", i)
		}
	}

	if bases != 1 {
		return apperror.NewValidation("item must have exactly one base unit").
			WithDetail("field", "isBaseUnit").
			WithDetail("count", bases)
	}
	return nil
}

// BaseOf returns the base unit of a validated set, or nil.
func BaseOf(defs []Definition) *Definition {
	for i := range defs {
		if defs[i].IsBase {
			return &defs[i]
		}
	}
	return nil
}

// ToBase converts qty expressed in unit d to base units. Fractional results
// are rejected since stock is counted in whole base units.
func ToBase(qty int64, d Definition) (int64, error) {
	if !d.ConversionRate.IsPositive() {
		return 0, apperror.NewValidation("conversion rate must be positive").
			WithDetail("field", "conversionRate").
			WithDetail("unit", d.Name)
	}
	result := decimal.NewFromInt(qty).Mul(d.ConversionRate)
	if !result.Equal(result.Truncate(0)) {
		return 0, apperror.NewValidation("quantity does not convert to a whole number of base units").
			WithDetail("field", "quantity").
			WithDetail("unit", d.Name).
			WithDetail("result", result.String())
	}
	return result.IntPart(), nil
}
