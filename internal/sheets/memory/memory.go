package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"cruscotto/internal/core"
	ports "cruscotto/internal/sheets"
)

// Default sheet names of the statement and mapping workbooks.
const (
	StatementSheet = "Conto Economico"
	MappingSheet   = "Conto_Economico"
	BalanceSheet   = "Stato Patrimoniale"
	CashFlowSheet  = "Rendiconto Finanziario"
)

// Published is a report handed to WriteReport.
type Published struct {
	Title  string
	Report core.FormattedReport
}

// Store keeps every sheet in memory. It backs local development and tests.
type Store struct {
	mu             sync.RWMutex
	statementSheet string
	mappingSheet   string
	tables         map[string]core.Table
	published      []Published
}

var (
	_ ports.Source       = (*Store)(nil)
	_ ports.ReportWriter = (*Store)(nil)
)

// New returns a store that reads the statement and mapping from the named
// tables.
func New(statementSheet, mappingSheet string, tables map[string]core.Table) *Store {
	s := &Store{
		statementSheet: statementSheet,
		mappingSheet:   mappingSheet,
		tables:         make(map[string]core.Table, len(tables)),
	}
	for name, t := range tables {
		s.tables[name] = t
	}
	return s
}

// NewDemo returns a store seeded with a small Italian income statement,
// its mapping, a balance sheet and a cash flow statement.
func NewDemo() *Store {
	return New(StatementSheet, MappingSheet, map[string]core.Table{
		StatementSheet: demoStatement(),
		MappingSheet:   demoMapping(),
		BalanceSheet:   demoBalanceSheet(),
		CashFlowSheet:  demoCashFlow(),
	})
}

// ReadStatement parses the statement sheet.
func (s *Store) ReadStatement(ctx context.Context) (core.Statement, error) {
	t, err := s.ReadTable(ctx, s.statementSheet)
	if err != nil {
		return core.Statement{}, err
	}
	return core.StatementFromTable(t), nil
}

// ReadMapping parses the mapping sheet.
func (s *Store) ReadMapping(ctx context.Context) (core.Mapping, error) {
	t, err := s.ReadTable(ctx, s.mappingSheet)
	if err != nil {
		return nil, err
	}
	return core.MappingFromTable(t), nil
}

// ReadTable returns a copy of the named table.
func (s *Store) ReadTable(_ context.Context, name string) (core.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return core.Table{}, fmt.Errorf("%w: %q", ports.ErrSheetNotFound, name)
	}
	return copyTable(t), nil
}

// PutTable replaces or adds a table.
func (s *Store) PutTable(name string, t core.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = copyTable(t)
}

// WriteReport records the report and returns a synthetic reference.
func (s *Store) WriteReport(_ context.Context, title string, r core.FormattedReport) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, Published{Title: title, Report: r})
	return fmt.Sprintf("mem:%d", len(s.published)), nil
}

// Published returns the reports written so far.
func (s *Store) Published() []Published {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Published(nil), s.published...)
}

func copyTable(t core.Table) core.Table {
	out := core.Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]core.Cell, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = append([]core.Cell(nil), r...)
	}
	return out
}

func text(s string) core.Cell { return core.TextCell(s) }
func num(v int64) core.Cell { return core.NumberCell(decimal.NewFromInt(v)) }
func blank() core.Cell { return core.BlankCell() }

func demoStatement() core.Table {
	return core.Table{
		Columns: []string{core.LabelColumn, "Consuntivo 2024", "Budget 2025", "Consuntivo 2025"},
		Rows: [][]core.Cell{
			{text("Ricavi Italia"), num(1_850_000), num(2_000_000), num(2_120_000)},
			{text("Ricavi Estero"), num(640_000), num(750_000), num(705_000)},
			{text("Costo del venduto"), num(-1_210_000), num(-1_330_000), num(-1_360_000)},
			{text("Marginalità Vendite lorda"), num(1_280_000), num(1_420_000), num(1_465_000)},
			{text("Stipendi"), num(-520_000), num(-560_000), num(-548_000)},
			{text("Contributi"), num(-160_000), num(-172_000), num(-169_000)},
			{text("Affitti"), num(-96_000), num(-96_000), num(-98_500)},
			{text("Consulenze"), num(-42_000), num(-35_000), num(-51_200)},
			{text("Marketing"), blank(), num(-40_000), num(-22_300)},
			{text("EBITDA"), num(462_000), num(517_000), num(576_000)},
			{text("Ammortamenti"), num(-88_000), num(-90_000), num(-91_400)},
			{text("EBIT"), num(374_000), num(427_000), num(484_600)},
			{text("Oneri finanziari"), num(-21_000), num(0), num(-18_700)},
			{text("EBT"), num(353_000), num(427_000), num(465_900)},
			{text("Imposte"), num(-98_000), num(-119_000), num(-130_100)},
			{text("Risultato di Gruppo"), num(255_000), num(308_000), num(335_800)},
		},
	}
}

func demoMapping() core.Table {
	return core.Table{
		Columns: []string{core.LabelColumn, core.CategoryColumn},
		Rows: [][]core.Cell{
			{text("Ricavi Italia"), text("Vendite")},
			{text("Ricavi Estero"), text("Vendite")},
			{text("Costo del venduto"), text("Costo del venduto")},
			{text("Stipendi"), text("Personale")},
			{text("Contributi"), text("Personale")},
			{text("Affitti"), text("Altri Opex")},
			{text("Consulenze"), text("Altri Opex")},
			{text("Marketing"), text("Altri Opex")},
			{text("Ammortamenti"), text("Ammortamenti")},
			{text("Oneri finanziari"), text("Gestione finanziaria")},
			{text("Imposte"), text("Imposte")},
		},
	}
}

func demoBalanceSheet() core.Table {
	return core.Table{
		Columns: []string{core.LabelColumn, "31/12/2024", "31/12/2025"},
		Rows: [][]core.Cell{
			{text("Immobilizzazioni"), num(1_240_000), num(1_198_600)},
			{text("Crediti verso clienti"), num(612_000), num(655_400)},
			{text("Disponibilità liquide"), num(188_000), blank()},
			{text("Patrimonio netto"), num(1_050_000), num(1_385_800)},
			{text("Debiti verso banche"), num(520_000), num(410_000)},
		},
	}
}

func demoCashFlow() core.Table {
	return core.Table{
		Columns: []string{"Ordine", core.LabelColumn, "2025"},
		Rows: [][]core.Cell{
			{num(3), text("Flusso da attività di finanziamento"), num(-110_000)},
			{num(1), text("Flusso della gestione operativa"), num(402_300)},
			{num(2), text("Flusso da attività di investimento"), num(-50_000)},
			{num(4), text("Variazione disponibilità liquide"), num(242_300)},
		},
	}
}
