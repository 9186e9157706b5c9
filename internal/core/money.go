// Package core provides amount parsing and display formatting.
//
// Amounts are decimals end to end; floats only appear at the sheet
// boundary and are converted on read.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	hundred          = decimal.NewFromInt(100)

	// Italian grouping: "." every three digits from 1.000 up.
	thousands = message.NewPrinter(language.Italian)
)

// ParseAmount converts a spreadsheet number to a decimal.
//
// It accepts both decimal separators, thousands grouping, a leading sign,
// a currency symbol and accounting parentheses for negatives. When both
// separators appear the last one is the decimal separator; a repeated
// separator is grouping.
//
// Examples:
//
//	ParseAmount("1234.5")    -> 1234.5
//	ParseAmount("1.234,5")   -> 1234.5
//	ParseAmount("€ 1,234")   -> 1.234
//	ParseAmount("(1.234)")   -> -1.234
//	ParseAmount("1.234.567") -> 1234567
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("€", "", "$", "", " ", "", " ", "", "'", "").Replace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	dots, commas := strings.Count(s, "."), strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case commas == 1:
		s = strings.Replace(s, ",", ".", 1)
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// FormatThousands renders d as an integer grouped by thousands with "."
// (1234567.5 -> "1.234.568"). Halves round to even.
func FormatThousands(d decimal.Decimal) string {
	return thousands.Sprintf("%d", d.RoundBank(0).IntPart())
}

// FormatPercent renders a ratio with one decimal (0.2 -> "20.0%").
func FormatPercent(ratio decimal.Decimal) string {
	return ratio.Mul(hundred).StringFixedBank(1) + "%"
}
