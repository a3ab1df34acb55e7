// Package numbering allocates year-scoped document numbers of the form
// PREFIX-YYYY-NNNNNN.
package numbering

import (
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// Width is the number of digits in the counter part.
const Width = 6

// Series is one numbered column, e.g. invoices.number with prefix INV.
type Series struct {
	Prefix string
	Table  string
	Column string
}

// Format renders a number for prefix, year and counter.
func Format(prefix string, year, n int) string {
	return fmt.Sprintf("%s-%04d-%0*d", prefix, year, Width, n)
}

// YearPrefix returns the "PREFIX-YYYY-" part shared by all numbers of a year.
func YearPrefix(prefix string, year int) string {
	return fmt.Sprintf("%s-%04d-", prefix, year)
}

// Counter extracts the trailing counter of number.
func Counter(number string) (int, error) {
	i := strings.LastIndex(number, "-")
	if i < 0 || i == len(number)-1 {
		return 0, fmt.Errorf("numbering: malformed number %q", number)
	}
	n, err := strconv.Atoi(number[i+1:])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("numbering: malformed number %q", number)
	}
	return n, nil
}

// Next returns the number following the highest existing one for year.
// It falls back to counter 1 when the year has no number yet or the highest
// one cannot be parsed. Callers must run it in the transaction that inserts
// the new row and treat a unique violation as a retryable conflict.
func (s Series) Next(tx *gorm.DB, year int) (string, error) {
	yp := YearPrefix(s.Prefix, year)
	var last []string
	err := tx.Table(s.Table).
		Where(s.Column+" LIKE ?", yp+"%").
		Order(s.Column+" DESC").
		Limit(1).
		Pluck(s.Column, &last).Error
	if err != nil {
		return "", fmt.Errorf("numbering: read last %s: %w", s.Prefix, err)
	}
	if len(last) == 0 {
		return Format(s.Prefix, year, 1), nil
	}
	n, err := Counter(last[0])
	if err != nil {
		return Format(s.Prefix, year, 1), nil
	}
	return Format(s.Prefix, year, n+1), nil
}
