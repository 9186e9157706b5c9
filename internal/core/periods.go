package core

import (
	"fmt"
	"strings"
)

// maxSelectablePeriods limits the default selection to the first period
// columns of the sheet (actual, budget, forecast).
const maxSelectablePeriods = 3

// DefaultPeriods picks the comparison used when the caller does not choose:
// period 1 is the third period column (or the last one), period 2 the second
// (or the first). ok is false when there are no periods at all.
func DefaultPeriods(available []string) (p1, p2 string, ok bool) {
	candidates := available
	if len(candidates) > maxSelectablePeriods {
		candidates = candidates[:maxSelectablePeriods]
	}
	n := len(candidates)
	if n == 0 {
		return "", "", false
	}
	i1 := n - 1
	if n > 2 {
		i1 = 2
	}
	i2 := 0
	if n > 1 {
		i2 = 1
	}
	return candidates[i1], candidates[i2], true
}

// ResolvePeriods fills empty selections from DefaultPeriods and checks
// that both periods exist. Errors wrap ErrMissingPeriodColumn.
func ResolvePeriods(available []string, p1, p2 string) (string, string, error) {
	p1, p2 = strings.TrimSpace(p1), strings.TrimSpace(p2)
	if p1 == "" || p2 == "" {
		d1, d2, ok := DefaultPeriods(available)
		if !ok {
			return "", "", fmt.Errorf("%w: statement has no period columns", ErrMissingPeriodColumn)
		}
		if p1 == "" {
			p1 = d1
		}
		if p2 == "" {
			p2 = d2
		}
	}
	for _, p := range []string{p1, p2} {
		if !contains(available, p) {
			return "", "", fmt.Errorf("%w: %q not in %v", ErrMissingPeriodColumn, p, available)
		}
	}
	return p1, p2, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
