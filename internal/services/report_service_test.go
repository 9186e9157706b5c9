package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cruscotto/internal/amqp"
	"cruscotto/internal/core"
	"cruscotto/internal/sheets/memory"
	"cruscotto/internal/storage"
)

type countingSource struct {
	*memory.Store
	statements atomic.Int32
}

func (c *countingSource) ReadStatement(ctx context.Context) (core.Statement, error) {
	c.statements.Add(1)
	return c.Store.ReadStatement(ctx)
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.ReportPublishMessage
	err  error
}

func (f *fakePublisher) PublishReportRequest(_ context.Context, msg *amqp.ReportPublishMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

type fakeStore struct {
	mu   sync.Mutex
	pubs map[string]storage.Publication
}

func newFakeStore() *fakeStore { return &fakeStore{pubs: map[string]storage.Publication{}} }

func (f *fakeStore) CreatePublication(_ context.Context, p storage.Publication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Status = storage.StatusPending
	f.pubs[p.ID] = p
	return nil
}

func (f *fakeStore) GetPublication(_ context.Context, id string) (storage.Publication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pubs[id]
	if !ok {
		return storage.Publication{}, storage.ErrPublicationNotFound
	}
	return p, nil
}

func (f *fakeStore) PendingPublications(_ context.Context, limit int) ([]storage.Publication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Publication
	for _, p := range f.pubs {
		if p.Status == storage.StatusPending && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) set(id, status, ref string, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pubs[id]
	if !ok {
		return storage.ErrPublicationNotFound
	}
	p.Status, p.SheetRef = status, ref
	if cause != nil {
		p.Error = cause.Error()
	}
	p.Attempts++
	f.pubs[id] = p
	return nil
}

func (f *fakeStore) MarkPublished(_ context.Context, id, ref string) error {
	return f.set(id, storage.StatusDone, ref, nil)
}

func (f *fakeStore) MarkPublishFailed(_ context.Context, id string, cause error) error {
	return f.set(id, storage.StatusFailed, "", cause)
}

func (f *fakeStore) RecordPublishAttempt(_ context.Context, id string, cause error) error {
	return f.set(id, storage.StatusPending, "", cause)
}

func testConfig() ReportConfig {
	return ReportConfig{
		DetailCategories: []string{"Vendite", "Altri Opex"},
		KPILabels:        []string{"Marginalità Vendite lorda", "EBITDA", "EBIT", "EBT", "Risultato di Gruppo"},
		BalanceSheet:     memory.BalanceSheet,
		CashFlowSheet:    memory.CashFlowSheet,
		TitlePrefix:      "Variance",
		CacheSize:        8,
		CacheTTL:         time.Minute,
	}
}

func TestReportServicePeriods(t *testing.T) {
	svc := NewReportService(memory.NewDemo(), nil, nil, testConfig())

	periods, err := svc.Periods(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Consuntivo 2024", "Budget 2025", "Consuntivo 2025"}
	if len(periods) != len(want) {
		t.Fatalf("periods = %v", periods)
	}
	for i := range want {
		if periods[i] != want[i] {
			t.Fatalf("periods = %v, want %v", periods, want)
		}
	}
}

func TestReportServiceDefaultReport(t *testing.T) {
	svc := NewReportService(memory.NewDemo(), nil, nil, testConfig())

	res, err := svc.Report(context.Background(), ReportQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Report.Period1 != "Consuntivo 2025" || res.Report.Period2 != "Budget 2025" {
		t.Fatalf("default periods = %q / %q", res.Report.Period1, res.Report.Period2)
	}
	if len(res.Report.Rows) != 12 {
		t.Fatalf("rows = %d, want 7 categories + 5 KPI", len(res.Report.Rows))
	}

	first := res.Formatted.Rows[0]
	if first.Category != "Vendite" || first.Period1 != "2.825.000" || first.Period2 != "2.750.000" || first.Delta != "75.000" {
		t.Fatalf("first row = %+v", first)
	}
	if first.DeltaPct == nil || *first.DeltaPct != "2.7%" {
		t.Fatalf("first delta pct = %v", first.DeltaPct)
	}
	if first.Label != nil {
		t.Fatalf("label column should be dropped without detail")
	}

	last := res.Report.Rows[len(res.Report.Rows)-1]
	if last.Kind != core.RowKPI || last.Label != "Risultato di Gruppo" {
		t.Fatalf("last row = %+v", last)
	}
}

func TestReportServiceDetail(t *testing.T) {
	svc := NewReportService(memory.NewDemo(), nil, nil, testConfig())

	res, err := svc.Report(context.Background(), ReportQuery{Period1: "Consuntivo 2025", Period2: "Consuntivo 2024", ShowDetail: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Report.Rows) != 17 {
		t.Fatalf("rows = %d, want 12 + 5 detail rows", len(res.Report.Rows))
	}
	if res.Report.Rows[1].Kind != core.RowDetail || res.Report.Rows[1].Label != "Ricavi Italia" {
		t.Fatalf("second row = %+v", res.Report.Rows[1])
	}
	if len(res.Formatted.Columns) != 6 {
		t.Fatalf("columns = %v", res.Formatted.Columns)
	}
}

func TestReportServiceMissingPeriod(t *testing.T) {
	svc := NewReportService(memory.NewDemo(), nil, nil, testConfig())

	_, err := svc.Report(context.Background(), ReportQuery{Period1: "Forecast 2026", Period2: "Budget 2025"})
	if !errors.Is(err, core.ErrMissingPeriodColumn) {
		t.Fatalf("expected ErrMissingPeriodColumn, got %v", err)
	}
}

func TestReportServiceCaching(t *testing.T) {
	src := &countingSource{Store: memory.NewDemo()}
	svc := NewReportService(src, nil, nil, testConfig())
	ctx := context.Background()

	first, err := svc.Report(ctx, ReportQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Fatal("first report should not be cached")
	}
	second, err := svc.Report(ctx, ReportQuery{Period1: "Consuntivo 2025", Period2: "Budget 2025"})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Fatal("explicit default periods should hit the cache")
	}
	if n := src.statements.Load(); n != 1 {
		t.Fatalf("statement read %d times, want 1", n)
	}

	svc.Invalidate()
	third, err := svc.Report(ctx, ReportQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if third.Cached || src.statements.Load() != 2 {
		t.Fatalf("invalidate should force a reload (cached=%v reads=%d)", third.Cached, src.statements.Load())
	}

	stats, ok := svc.CacheStats()
	if !ok || stats.Hits != 1 {
		t.Fatalf("stats = %+v ok=%v", stats, ok)
	}
}

func TestReportServiceReloadDropsCachedReports(t *testing.T) {
	store := memory.NewDemo()
	src := &countingSource{Store: store}
	svc := NewReportService(src, nil, nil, testConfig())
	ctx := context.Background()

	if _, err := svc.Report(ctx, ReportQuery{}); err != nil {
		t.Fatal(err)
	}

	stmt, err := store.ReadTable(ctx, memory.StatementSheet)
	if err != nil {
		t.Fatal(err)
	}
	stmt.Rows[0][3] = core.NumberCell(decimal.NewFromInt(2_121_000))
	store.PutTable(memory.StatementSheet, stmt)

	// Inputs expire while the report computed from them is still cached.
	svc.inputs.Delete(inputsKey)

	res, err := svc.Report(ctx, ReportQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Fatal("report computed from old inputs was served after a reload")
	}
	if got := res.Formatted.Rows[0].Period1; got != "2.826.000" {
		t.Fatalf("Vendite period 1 = %s, want the reloaded 2.826.000", got)
	}
	if n := src.statements.Load(); n != 2 {
		t.Fatalf("statement read %d times, want 2", n)
	}
}

func TestReportServiceCachingDisabled(t *testing.T) {
	src := &countingSource{Store: memory.NewDemo()}
	cfg := testConfig()
	cfg.CacheTTL = 0
	svc := NewReportService(src, nil, nil, cfg)

	for i := 0; i < 2; i++ {
		if _, err := svc.Report(context.Background(), ReportQuery{}); err != nil {
			t.Fatal(err)
		}
	}
	if src.statements.Load() != 2 {
		t.Fatalf("reads = %d, want 2", src.statements.Load())
	}
	if _, ok := svc.CacheStats(); ok {
		t.Fatal("cache stats should be unavailable")
	}
	if svc.Caches() != nil {
		t.Fatal("no caches expected")
	}
}

func TestReportServiceSheets(t *testing.T) {
	svc := NewReportService(memory.NewDemo(), nil, nil, testConfig())
	ctx := context.Background()

	bs, err := svc.BalanceSheet(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if bs.Rows[2][2] != "0" || bs.Rows[0][1] != "1.240.000" {
		t.Fatalf("balance sheet rows = %v", bs.Rows)
	}

	cf, err := svc.CashFlow(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cf.Columns) != 2 || cf.Rows[0][0] != "Flusso della gestione operativa" || cf.Rows[0][1] != "402.300" {
		t.Fatalf("cash flow = %+v", cf)
	}
}

func TestReportServiceMissingSheet(t *testing.T) {
	cfg := testConfig()
	cfg.CashFlowSheet = "Flussi"
	svc := NewReportService(memory.NewDemo(), nil, nil, cfg)

	if _, err := svc.CashFlow(context.Background()); err == nil {
		t.Fatal("expected error for a missing sheet")
	}
}

func TestRequestPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		svc := NewReportService(memory.NewDemo(), nil, nil, testConfig())
		if _, err := svc.RequestPublish(ctx, ReportQuery{}); !errors.Is(err, ErrPublishingDisabled) {
			t.Fatalf("expected ErrPublishingDisabled, got %v", err)
		}
	})

	t.Run("records and queues", func(t *testing.T) {
		pubr, store := &fakePublisher{}, newFakeStore()
		svc := NewReportService(memory.NewDemo(), pubr, store, testConfig())

		pub, err := svc.RequestPublish(ctx, ReportQuery{ShowDetail: true})
		if err != nil {
			t.Fatal(err)
		}
		if pub.ID == "" || pub.Period1 != "Consuntivo 2025" || pub.Period2 != "Budget 2025" || pub.Status != storage.StatusPending {
			t.Fatalf("publication = %+v", pub)
		}
		if _, err := store.GetPublication(ctx, pub.ID); err != nil {
			t.Fatalf("publication not stored: %v", err)
		}
		if len(pubr.msgs) != 1 || pubr.msgs[0].ID != pub.ID || !pubr.msgs[0].ShowDetail {
			t.Fatalf("messages = %+v", pubr.msgs)
		}
	})

	t.Run("queue failure keeps pending publication", func(t *testing.T) {
		store := newFakeStore()
		svc := NewReportService(memory.NewDemo(), &fakePublisher{err: errors.New("broker down")}, store, testConfig())

		pub, err := svc.RequestPublish(ctx, ReportQuery{})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		stored, _ := store.GetPublication(ctx, pub.ID)
		if stored.Status != storage.StatusPending {
			t.Fatalf("stored = %+v", stored)
		}
	})

	t.Run("queue failure without store", func(t *testing.T) {
		svc := NewReportService(memory.NewDemo(), &fakePublisher{err: errors.New("broker down")}, nil, testConfig())
		if _, err := svc.RequestPublish(ctx, ReportQuery{}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unknown period", func(t *testing.T) {
		store := newFakeStore()
		svc := NewReportService(memory.NewDemo(), &fakePublisher{}, store, testConfig())
		_, err := svc.RequestPublish(ctx, ReportQuery{Period1: "2030"})
		if !errors.Is(err, core.ErrMissingPeriodColumn) {
			t.Fatalf("expected ErrMissingPeriodColumn, got %v", err)
		}
		if len(store.pubs) != 0 {
			t.Fatalf("nothing should be stored: %+v", store.pubs)
		}
	})
}

func TestPublicationLookup(t *testing.T) {
	ctx := context.Background()

	svc := NewReportService(memory.NewDemo(), nil, nil, testConfig())
	if _, err := svc.Publication(ctx, "x"); !errors.Is(err, ErrPublishingDisabled) {
		t.Fatalf("expected ErrPublishingDisabled, got %v", err)
	}

	store := newFakeStore()
	svc = NewReportService(memory.NewDemo(), nil, store, testConfig())
	pub, err := svc.RequestPublish(ctx, ReportQuery{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.Publication(ctx, pub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != pub.ID || got.Status != storage.StatusPending {
		t.Fatalf("publication = %+v", got)
	}
}

func TestPublishWritesReport(t *testing.T) {
	src := memory.NewDemo()
	svc := NewReportService(src, nil, nil, testConfig())

	ref, err := svc.Publish(context.Background(), ReportQuery{Period1: "Budget 2025", Period2: "Consuntivo 2024"}, src)
	if err != nil {
		t.Fatal(err)
	}
	if ref != "mem:1" {
		t.Fatalf("ref = %q", ref)
	}
	published := src.Published()
	if len(published) != 1 || published[0].Title != "Variance Budget 2025 vs Consuntivo 2024" {
		t.Fatalf("published = %+v", published)
	}
}

func TestReportTitle(t *testing.T) {
	if got := ReportTitle("", "A", "B"); got != "A vs B" {
		t.Errorf("ReportTitle() = %q", got)
	}
	if got := ReportTitle(" Variance ", "A", "B"); got != "Variance A vs B" {
		t.Errorf("ReportTitle() = %q", got)
	}
}
