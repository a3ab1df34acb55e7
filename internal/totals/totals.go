// Package totals computes line, subtotal and document amounts.
//
// All arithmetic keeps full decimal precision; Round is applied only when a
// value leaves the system for display.
package totals

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount    = errors.New("totals: amount must not be negative")
	ErrPercentOutOfRange = errors.New("totals: percentage out of range")
)

var hundred = decimal.NewFromInt(100)

// Line is the priced part of a line item.
type Line struct {
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
}

// Validate checks quantity, unit price and discount bounds.
func (l Line) Validate() error {
	if l.Quantity.IsNegative() {
		return fmt.Errorf("%w: quantity %s", ErrNegativeAmount, l.Quantity)
	}
	if l.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price %s", ErrNegativeAmount, l.UnitPrice)
	}
	if l.DiscountPercent.IsNegative() || l.DiscountPercent.GreaterThan(hundred) {
		return fmt.Errorf("%w: line discount %s", ErrPercentOutOfRange, l.DiscountPercent)
	}
	return nil
}

// LineTotal returns quantity * unit price, less the line discount when positive.
func LineTotal(l Line) decimal.Decimal {
	gross := l.Quantity.Mul(l.UnitPrice)
	if l.DiscountPercent.IsPositive() {
		return gross.Mul(hundred.Sub(l.DiscountPercent)).Div(hundred)
	}
	return gross
}

// Lines returns each line total and their sum. It fails on the first invalid line.
func Lines(lines []Line) ([]decimal.Decimal, decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(lines))
	subtotal := decimal.Zero
	for i, l := range lines {
		if err := l.Validate(); err != nil {
			return nil, decimal.Zero, fmt.Errorf("line %d: %w", i+1, err)
		}
		out[i] = LineTotal(l)
		subtotal = subtotal.Add(out[i])
	}
	return out, subtotal, nil
}

// Result is the breakdown of a document total.
type Result struct {
	Subtotal      decimal.Decimal
	AfterDiscount decimal.Decimal
	TaxAmount     decimal.Decimal
	Total         decimal.Decimal
}

// Document applies the document discount, then tax, to subtotal.
// Discount must lie in [0, 100]; tax must not be negative.
func Document(subtotal, discountPercent, taxPercent decimal.Decimal) (Result, error) {
	if discountPercent.IsNegative() || discountPercent.GreaterThan(hundred) {
		return Result{}, fmt.Errorf("%w: discount %s", ErrPercentOutOfRange, discountPercent)
	}
	if taxPercent.IsNegative() {
		return Result{}, fmt.Errorf("%w: tax %s", ErrPercentOutOfRange, taxPercent)
	}
	after := subtotal.Mul(hundred.Sub(discountPercent)).Div(hundred)
	tax := after.Mul(taxPercent).Div(hundred)
	return Result{
		Subtotal:      subtotal,
		AfterDiscount: after,
		TaxAmount:     tax,
		Total:         after.Add(tax),
	}, nil
}

// Round returns d rounded to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
