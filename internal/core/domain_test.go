package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func item(label string, values map[string]string) LineItem {
	li := LineItem{Label: label, Values: map[string]decimal.Decimal{}}
	for k, v := range values {
		li.Values[k] = dec(v)
	}
	return li
}

func TestLineItemValueDefaultsToZero(t *testing.T) {
	li := item("Ricavi", map[string]string{"P1": "100"})
	if !li.Value("P1").Equal(dec("100")) {
		t.Fatalf("P1 = %s", li.Value("P1"))
	}
	if !li.Value("P2").IsZero() {
		t.Fatalf("missing period should read zero, got %s", li.Value("P2"))
	}
}

func TestMappingIndexFirstEntryWins(t *testing.T) {
	m := Mapping{
		{Label: "Ricavi", Category: "Vendite"},
		{Label: "Ricavi", Category: "Altri Opex"},
		{Label: "EBITDA", Category: ""},
		{Label: "EBITDA", Category: "Vendite"},
	}
	idx := m.index()
	if idx["Ricavi"] != "Vendite" {
		t.Fatalf("Ricavi -> %q", idx["Ricavi"])
	}
	if idx["EBITDA"] != "" {
		t.Fatalf("first EBITDA entry is unmapped, got %q", idx["EBITDA"])
	}
}

func TestMappingCategoriesFirstSeen(t *testing.T) {
	m := Mapping{
		{Label: "a", Category: "Vendite"},
		{Label: "b", Category: " Personale "},
		{Label: "c", Category: "Vendite"},
		{Label: "d", Category: ""},
	}
	got := m.Categories()
	want := []string{"Vendite", "Personale"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestNormalizeLabelComposesAccents(t *testing.T) {
	composed := "Marginalit\u00e0"
	decomposed := "Marginalita\u0300"
	if normalizeLabel(" "+decomposed+" ") != normalizeLabel(composed) {
		t.Fatalf("labels should normalize to the same key")
	}
}

func TestMappingEntryValidate(t *testing.T) {
	if err := (MappingEntry{Label: "  "}).Validate(); err != ErrEmptyLabel {
		t.Fatalf("expected ErrEmptyLabel, got %v", err)
	}
	if err := (MappingEntry{Label: "Ricavi"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}
