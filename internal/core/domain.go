package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// Column names used by the statement and mapping sheets.
const (
	LabelColumn    = "Voce"
	CategoryColumn = "Tipo"
)

type (
	// LineItem is one labeled statement row with a value per period.
	// Periods missing from Values read as zero.
	LineItem struct {
		Label  string
		Values map[string]decimal.Decimal
	}

	// Statement is a financial statement: ordered line items over named periods.
	Statement struct {
		Periods []string
		Items   []LineItem
	}

	// MappingEntry assigns a line item label to a reporting category.
	// An empty Category means the label is unmapped.
	MappingEntry struct {
		Label    string
		Category string
	}

	// Mapping is the ordered label → category table.
	Mapping []MappingEntry
)

var (
	ErrMissingPeriodColumn = errors.New("missing period column")
	ErrEmptyLabel          = errors.New("empty label")
)

// Value returns the amount for period, or zero when the item has none.
func (li LineItem) Value(period string) decimal.Decimal {
	if v, ok := li.Values[period]; ok {
		return v
	}
	return decimal.Zero
}

// HasPeriod reports whether name is one of the statement's period columns.
func (s Statement) HasPeriod(name string) bool {
	for _, p := range s.Periods {
		if p == name {
			return true
		}
	}
	return false
}

// Validate checks the entry has a label.
func (e MappingEntry) Validate() error {
	if normalizeLabel(e.Label) == "" {
		return ErrEmptyLabel
	}
	return nil
}

// Categories returns the distinct non-empty categories in first-seen order.
func (m Mapping) Categories() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, e := range m {
		key := normalizeLabel(e.Category)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(e.Category))
	}
	return out
}

// index builds the normalized label → category lookup. The first entry
// for a label wins, even when its category is empty.
func (m Mapping) index() map[string]string {
	idx := make(map[string]string, len(m))
	for _, e := range m {
		key := normalizeLabel(e.Label)
		if key == "" {
			continue
		}
		if _, ok := idx[key]; ok {
			continue
		}
		idx[key] = strings.TrimSpace(e.Category)
	}
	return idx
}

// normalizeLabel is the join key for labels and categories. Workbooks
// exported by different tools disagree on accent composition ("Marginalità").
func normalizeLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
