package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cruscotto/internal/amqp"
	"cruscotto/internal/cache"
	"cruscotto/internal/core"
	"cruscotto/internal/sheets"
	"cruscotto/internal/storage"
)

// ErrPublishingDisabled is returned by RequestPublish when neither a queue
// nor a publication store is configured.
var ErrPublishingDisabled = errors.New("report publishing is not configured")

const inputsKey = "inputs"

// ReportConfig holds the report settings shared by every request.
type ReportConfig struct {
	DetailCategories []string
	KPILabels        []string
	BalanceSheet     string
	CashFlowSheet    string
	// TitlePrefix names published reports, e.g. "Variance 2024 vs 2023".
	TitlePrefix string
	CacheSize   int
	// CacheTTL of zero disables caching.
	CacheTTL time.Duration
}

// ReportQuery selects the periods and the drill-down. Empty periods fall
// back to the default comparison.
type ReportQuery struct {
	Period1    string
	Period2    string
	ShowDetail bool
}

// ReportResult is a computed report with its display form.
type ReportResult struct {
	Report    core.Report
	Formatted core.FormattedReport
	Cached    bool
}

// ReportPublisher queues publish requests for the worker.
type ReportPublisher interface {
	PublishReportRequest(ctx context.Context, msg *amqp.ReportPublishMessage) error
}

// PublicationStore records publish requests and their outcome.
type PublicationStore interface {
	CreatePublication(ctx context.Context, p storage.Publication) error
	GetPublication(ctx context.Context, id string) (storage.Publication, error)
	PendingPublications(ctx context.Context, limit int) ([]storage.Publication, error)
	MarkPublished(ctx context.Context, id, ref string) error
	MarkPublishFailed(ctx context.Context, id string, cause error) error
	RecordPublishAttempt(ctx context.Context, id string, cause error) error
}

type inputs struct {
	statement core.Statement
	mapping   core.Mapping
	// generation changes on every read of the source; cached reports are
	// keyed by it.
	generation uint64
}

// ReportService loads the statement and mapping, computes variance reports
// and hands publish requests to the queue.
type ReportService struct {
	source    sheets.Source
	publisher ReportPublisher
	store     PublicationStore
	cfg       ReportConfig

	inputs      *cache.LRUCache[inputs]
	reports     *cache.LRUCache[core.Report]
	generations atomic.Uint64
}

// NewReportService wires a report service. publisher and store may be nil.
func NewReportService(source sheets.Source, publisher ReportPublisher, store PublicationStore, cfg ReportConfig) *ReportService {
	s := &ReportService{
		source:    source,
		publisher: publisher,
		store:     store,
		cfg:       cfg,
	}
	if cfg.CacheTTL > 0 {
		s.inputs = cache.NewLRUCache[inputs](1, cfg.CacheTTL)
		s.reports = cache.NewLRUCache[core.Report](cfg.CacheSize, cfg.CacheTTL)
	}
	return s
}

// Caches returns the caches to register with a cleanup manager.
func (s *ReportService) Caches() []cache.Cleaner {
	if s.inputs == nil {
		return nil
	}
	return []cache.Cleaner{s.inputs, s.reports}
}

// CacheStats reports report cache usage. ok is false when caching is off.
func (s *ReportService) CacheStats() (stats cache.Stats, ok bool) {
	if s.reports == nil {
		return cache.Stats{}, false
	}
	return s.reports.Stats(), true
}

// Invalidate drops cached inputs and reports, e.g. after a re-import.
func (s *ReportService) Invalidate() {
	if s.inputs == nil {
		return
	}
	s.inputs.Purge()
	s.reports.Purge()
}

// Periods lists the statement's period columns in sheet order.
func (s *ReportService) Periods(ctx context.Context) ([]string, error) {
	in, err := s.load(ctx, false)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), in.statement.Periods...), nil
}

// Report computes the variance report for q.
func (s *ReportService) Report(ctx context.Context, q ReportQuery) (*ReportResult, error) {
	return s.report(ctx, q, false)
}

func (s *ReportService) report(ctx context.Context, q ReportQuery, fresh bool) (*ReportResult, error) {
	in, err := s.load(ctx, fresh)
	if err != nil {
		return nil, err
	}
	p1, p2, err := core.ResolvePeriods(in.statement.Periods, q.Period1, q.Period2)
	if err != nil {
		return nil, err
	}

	key := reportKey(in.generation, p1, p2, q.ShowDetail)
	if s.reports != nil && !fresh {
		if rep, ok := s.reports.Get(key); ok {
			return &ReportResult{Report: rep, Formatted: rep.Format(), Cached: true}, nil
		}
	}

	rep, err := core.Compute(in.statement, in.mapping, core.ReportRequest{
		Period1:          p1,
		Period2:          p2,
		ShowDetail:       q.ShowDetail,
		DetailCategories: s.cfg.DetailCategories,
		KPILabels:        s.cfg.KPILabels,
	})
	if err != nil {
		return nil, err
	}
	if s.reports != nil {
		s.reports.Set(key, rep)
	}

	slog.DebugContext(ctx, "Report computed",
		"period_1", p1,
		"period_2", p2,
		"show_detail", q.ShowDetail,
		"rows", len(rep.Rows))

	return &ReportResult{Report: rep, Formatted: rep.Format()}, nil
}

// BalanceSheet reads and formats the balance sheet.
func (s *ReportService) BalanceSheet(ctx context.Context) (core.FormattedTable, error) {
	t, err := s.source.ReadTable(ctx, s.cfg.BalanceSheet)
	if err != nil {
		return core.FormattedTable{}, fmt.Errorf("load %s: %w", s.cfg.BalanceSheet, err)
	}
	return core.BalanceSheetView(t), nil
}

// CashFlow reads the cash flow sheet and orders it by its key column.
func (s *ReportService) CashFlow(ctx context.Context) (core.FormattedTable, error) {
	t, err := s.source.ReadTable(ctx, s.cfg.CashFlowSheet)
	if err != nil {
		return core.FormattedTable{}, fmt.Errorf("load %s: %w", s.cfg.CashFlowSheet, err)
	}
	return core.CashFlowView(t), nil
}

// RequestPublish validates q, records a pending publication and queues it.
// A queue failure is logged and left to the pending retry.
func (s *ReportService) RequestPublish(ctx context.Context, q ReportQuery) (storage.Publication, error) {
	if s.publisher == nil && s.store == nil {
		return storage.Publication{}, ErrPublishingDisabled
	}

	periods, err := s.Periods(ctx)
	if err != nil {
		return storage.Publication{}, err
	}
	p1, p2, err := core.ResolvePeriods(periods, q.Period1, q.Period2)
	if err != nil {
		return storage.Publication{}, err
	}

	pub := storage.Publication{
		ID:         uuid.NewString(),
		Period1:    p1,
		Period2:    p2,
		ShowDetail: q.ShowDetail,
		Status:     storage.StatusPending,
	}

	if s.store != nil {
		if err := s.store.CreatePublication(ctx, pub); err != nil {
			return storage.Publication{}, fmt.Errorf("save publication: %w", err)
		}
	}

	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, publication left for retry", "id", pub.ID)
		return pub, nil
	}

	msg := amqp.NewReportPublishMessage(pub.ID, p1, p2, q.ShowDetail)
	if err := s.publisher.PublishReportRequest(ctx, msg); err != nil {
		if s.store == nil {
			return storage.Publication{}, fmt.Errorf("queue publication: %w", err)
		}
		slog.ErrorContext(ctx, "Failed to publish report request",
			"id", pub.ID, "error", err)
	}
	return pub, nil
}

// Publication returns the state of a publish request.
func (s *ReportService) Publication(ctx context.Context, id string) (storage.Publication, error) {
	if s.store == nil {
		return storage.Publication{}, ErrPublishingDisabled
	}
	return s.store.GetPublication(ctx, id)
}

// Publish recomputes the report from fresh inputs and writes it with w.
func (s *ReportService) Publish(ctx context.Context, q ReportQuery, w sheets.ReportWriter) (string, error) {
	res, err := s.report(ctx, q, true)
	if err != nil {
		return "", err
	}
	ref, err := w.WriteReport(ctx, s.Title(res.Report), res.Formatted)
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return ref, nil
}

// Title names rep for publishing and downloads.
func (s *ReportService) Title(rep core.Report) string {
	return ReportTitle(s.cfg.TitlePrefix, rep.Period1, rep.Period2)
}

// ReportTitle names a published report.
func ReportTitle(prefix, p1, p2 string) string {
	title := fmt.Sprintf("%s vs %s", p1, p2)
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		title = prefix + " " + title
	}
	return title
}

// load reads the statement and mapping concurrently. fresh skips the
// cache but still refreshes it. Every read of the source drops the cached
// reports computed from earlier inputs.
func (s *ReportService) load(ctx context.Context, fresh bool) (inputs, error) {
	if s.inputs != nil && !fresh {
		if in, ok := s.inputs.Get(inputsKey); ok {
			return in, nil
		}
	}

	var in inputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stmt, err := s.source.ReadStatement(gctx)
		if err != nil {
			return fmt.Errorf("load statement: %w", err)
		}
		in.statement = stmt
		return nil
	})
	g.Go(func() error {
		m, err := s.source.ReadMapping(gctx)
		if err != nil {
			return fmt.Errorf("load mapping: %w", err)
		}
		in.mapping = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return inputs{}, err
	}

	in.generation = s.generations.Add(1)
	if s.inputs != nil {
		s.reports.Purge()
		s.inputs.Set(inputsKey, in)
	}
	return in, nil
}

func reportKey(generation uint64, p1, p2 string, detail bool) string {
	return strconv.FormatUint(generation, 10) + "|" + strconv.Quote(p1) + "|" + strconv.Quote(p2) + "|" + strconv.FormatBool(detail)
}
