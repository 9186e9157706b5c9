package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cruscotto/internal/core"
	ports "cruscotto/internal/sheets"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "db", "cruscotto.db"))
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStatementRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.ReadStatement(ctx); !errors.Is(err, ports.ErrSheetNotFound) {
		t.Fatalf("expected ErrSheetNotFound before import, got %v", err)
	}

	stmt := core.Statement{
		Periods: []string{"Consuntivo 2024", "Budget 2025"},
		Items: []core.LineItem{
			{Label: "Ricavi", Values: map[string]decimal.Decimal{"Consuntivo 2024": d("1234.56"), "Budget 2025": d("1300")}},
			{Label: "Marketing", Values: map[string]decimal.Decimal{"Budget 2025": d("-40")}},
			{Label: "Nota", Values: map[string]decimal.Decimal{}},
			{Label: "Ricavi", Values: map[string]decimal.Decimal{"Budget 2025": d("1")}},
		},
	}
	if err := repo.ImportStatement(ctx, stmt); err != nil {
		t.Fatalf("import: %v", err)
	}

	got, err := repo.ReadStatement(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Periods) != 2 || got.Periods[1] != "Budget 2025" {
		t.Fatalf("periods = %v", got.Periods)
	}
	if len(got.Items) != 4 {
		t.Fatalf("items = %+v", got.Items)
	}
	if !got.Items[0].Value("Consuntivo 2024").Equal(d("1234.56")) {
		t.Fatalf("Ricavi 2024 = %s", got.Items[0].Value("Consuntivo 2024"))
	}
	if _, ok := got.Items[1].Values["Consuntivo 2024"]; ok {
		t.Fatalf("missing value should stay missing")
	}
	if got.Items[2].Label != "Nota" || len(got.Items[2].Values) != 0 {
		t.Fatalf("item without values = %+v", got.Items[2])
	}
	if got.Items[3].Label != "Ricavi" {
		t.Fatalf("duplicate labels must be kept in order: %+v", got.Items[3])
	}

	// A second import replaces the first.
	if err := repo.ImportStatement(ctx, core.Statement{Periods: []string{"X"}}); err != nil {
		t.Fatalf("reimport: %v", err)
	}
	got, _ = repo.ReadStatement(ctx)
	if len(got.Periods) != 1 || len(got.Items) != 0 {
		t.Fatalf("statement not replaced: %+v", got)
	}
	if _, ok, err := repo.LastImport(ctx); err != nil || !ok {
		t.Fatalf("last import: ok=%v err=%v", ok, err)
	}
}

func TestMappingRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	m := core.Mapping{{Label: "Ricavi", Category: "Vendite"}, {Label: "EBITDA"}}
	if err := repo.ImportMapping(ctx, m); err != nil {
		t.Fatalf("import: %v", err)
	}
	got, err := repo.ReadMapping(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0] != m[0] || got[1] != m[1] {
		t.Fatalf("mapping = %+v", got)
	}
}

func TestTableRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tbl := core.Table{
		Columns: []string{"Voce", "2025"},
		Rows: [][]core.Cell{
			{core.TextCell("Cassa"), core.NumberCell(d("100.5"))},
			{core.TextCell("Crediti"), core.BlankCell()},
		},
	}
	if err := repo.ImportTable(ctx, "Stato Patrimoniale", tbl); err != nil {
		t.Fatalf("import: %v", err)
	}
	got, err := repo.ReadTable(ctx, "Stato Patrimoniale")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Cell(0, 1).Kind != core.CellNumber || !got.Cell(0, 1).Number.Equal(d("100.5")) {
		t.Fatalf("number cell = %+v", got.Cell(0, 1))
	}
	if got.Cell(1, 1).Kind != core.CellBlank || got.Cell(1, 0).Text != "Crediti" {
		t.Fatalf("row 1 = %+v", got.Rows[1])
	}
	if _, err := repo.ReadTable(ctx, "Rendiconto Finanziario"); !errors.Is(err, ports.ErrSheetNotFound) {
		t.Fatalf("expected ErrSheetNotFound, got %v", err)
	}
}

func TestPublicationLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for _, id := range []string{"a", "b"} {
		if err := repo.CreatePublication(ctx, Publication{ID: id, Period1: "P1", Period2: "P2", ShowDetail: id == "b"}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	pending, err := repo.PendingPublications(ctx, 10)
	if err != nil || len(pending) != 2 || pending[0].ID != "a" {
		t.Fatalf("pending = %+v err=%v", pending, err)
	}
	if !pending[1].ShowDetail || pending[0].ShowDetail {
		t.Fatalf("show detail not stored: %+v", pending)
	}

	if err := repo.MarkPublished(ctx, "a", "Report!A1:F9"); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	if err := repo.MarkPublishFailed(ctx, "b", errors.New("quota exceeded")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	a, err := repo.GetPublication(ctx, "a")
	if err != nil || a.Status != StatusDone || a.SheetRef != "Report!A1:F9" || a.Attempts != 1 {
		t.Fatalf("a = %+v err=%v", a, err)
	}
	if !a.UpdatedAt.After(a.CreatedAt) {
		t.Fatalf("updated_at should move forward: %+v", a)
	}
	b, _ := repo.GetPublication(ctx, "b")
	if b.Status != StatusFailed || b.Error != "quota exceeded" {
		t.Fatalf("b = %+v", b)
	}

	if _, err := repo.GetPublication(ctx, "missing"); !errors.Is(err, ErrPublicationNotFound) {
		t.Fatalf("expected ErrPublicationNotFound, got %v", err)
	}
	if err := repo.MarkPublished(ctx, "missing", ""); !errors.Is(err, ErrPublicationNotFound) {
		t.Fatalf("expected ErrPublicationNotFound, got %v", err)
	}

	counts, err := repo.PublicationCounts(ctx)
	if err != nil || counts[StatusDone] != 1 || counts[StatusFailed] != 1 || counts[StatusPending] != 0 {
		t.Fatalf("counts = %v err=%v", counts, err)
	}
	recent, _ := repo.RecentPublications(ctx, 1)
	if len(recent) != 1 || recent[0].ID != "b" {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestRecordPublishAttemptKeepsPending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.CreatePublication(ctx, Publication{ID: "c", Period1: "P1", Period2: "P2"}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := repo.RecordPublishAttempt(ctx, "c", errors.New("timeout")); err != nil {
			t.Fatalf("record attempt: %v", err)
		}
	}

	c, err := repo.GetPublication(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != StatusPending || c.Attempts != 2 || c.Error != "timeout" {
		t.Fatalf("c = %+v", c)
	}
	pending, _ := repo.PendingPublications(ctx, 10)
	if len(pending) != 1 {
		t.Fatalf("pending = %+v", pending)
	}
}

func TestSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	if _, ok, err := SchemaVersion(path); err != nil || ok {
		t.Fatalf("fresh database: ok=%v err=%v", ok, err)
	}
	v, err := RunMigrations(path)
	if err != nil || v != 3 {
		t.Fatalf("migrate: v=%d err=%v", v, err)
	}
	if got, ok, err := SchemaVersion(path); err != nil || !ok || got != 3 {
		t.Fatalf("version = %d ok=%v err=%v", got, ok, err)
	}
}
