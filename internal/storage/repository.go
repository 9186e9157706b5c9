package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"cruscotto/internal/core"
	ports "cruscotto/internal/sheets"

	_ "modernc.org/sqlite"
)

// Import names recorded in the imports table.
const (
	importStatement = "statement"
	importMapping   = "mapping"
)

// Publication statuses.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

var ErrPublicationNotFound = errors.New("publication not found")

// Publication tracks a request to write a report to the report sheet.
type Publication struct {
	ID         string
	Period1    string
	Period2    string
	ShowDetail bool
	Status     string
	SheetRef   string
	Error      string
	Attempts   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var _ ports.Source = (*SQLiteRepository)(nil)

// timeLayout sorts lexically; timestamps are always UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("SQLite schema ready", "db_path", dbPath, "version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().Format(timeLayout)
}

// ImportStatement replaces the stored statement.
func (r *SQLiteRepository) ImportStatement(ctx context.Context, stmt core.Statement) error {
	err := r.withTx(ctx, func(q *Queries) error {
		if err := q.ClearStatement(ctx); err != nil {
			return fmt.Errorf("clear statement: %w", err)
		}
		for i, p := range stmt.Periods {
			if err := q.InsertPeriod(ctx, int64(i), p); err != nil {
				return fmt.Errorf("insert period %q: %w", p, err)
			}
		}
		for i, item := range stmt.Items {
			if err := q.InsertItem(ctx, int64(i), item.Label); err != nil {
				return fmt.Errorf("insert item %q: %w", item.Label, err)
			}
			for _, p := range stmt.Periods {
				v, ok := item.Values[p]
				if !ok {
					continue
				}
				if err := q.InsertValue(ctx, int64(i), p, v.String()); err != nil {
					return fmt.Errorf("insert value %q/%q: %w", item.Label, p, err)
				}
			}
		}
		return q.TouchImport(ctx, importStatement, r.timestamp())
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Statement imported to SQLite",
		"periods", len(stmt.Periods),
		"items", len(stmt.Items))
	return nil
}

// ImportMapping replaces the stored mapping.
func (r *SQLiteRepository) ImportMapping(ctx context.Context, m core.Mapping) error {
	err := r.withTx(ctx, func(q *Queries) error {
		if err := q.ClearMappings(ctx); err != nil {
			return fmt.Errorf("clear mappings: %w", err)
		}
		for i, e := range m {
			if err := q.InsertMapping(ctx, int64(i), e.Label, e.Category); err != nil {
				return fmt.Errorf("insert mapping %q: %w", e.Label, err)
			}
		}
		return q.TouchImport(ctx, importMapping, r.timestamp())
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Mapping imported to SQLite", "entries", len(m))
	return nil
}

// ImportTable stores a raw sheet under name, replacing any previous copy.
func (r *SQLiteRepository) ImportTable(ctx context.Context, name string, t core.Table) error {
	payload, err := json.Marshal(encodeTable(t))
	if err != nil {
		return fmt.Errorf("encode table %q: %w", name, err)
	}
	if err := r.queries.UpsertSheetTable(ctx, name, string(payload), r.timestamp()); err != nil {
		return fmt.Errorf("store table %q: %w", name, err)
	}
	slog.InfoContext(ctx, "Sheet imported to SQLite", "sheet", name, "rows", len(t.Rows))
	return nil
}

// ReadStatement implements sheets.StatementReader
func (r *SQLiteRepository) ReadStatement(ctx context.Context) (core.Statement, error) {
	if _, err := r.queries.GetImport(ctx, importStatement); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Statement{}, fmt.Errorf("%w: statement not imported", ports.ErrSheetNotFound)
		}
		return core.Statement{}, fmt.Errorf("get statement import: %w", err)
	}

	periods, err := r.queries.ListPeriods(ctx)
	if err != nil {
		return core.Statement{}, fmt.Errorf("list periods: %w", err)
	}
	rows, err := r.queries.ListStatementValues(ctx)
	if err != nil {
		return core.Statement{}, fmt.Errorf("list statement values: %w", err)
	}

	stmt := core.Statement{Periods: periods}
	last := int64(-1)
	for _, row := range rows {
		if row.Position != last {
			stmt.Items = append(stmt.Items, core.LineItem{Label: row.Label, Values: map[string]decimal.Decimal{}})
			last = row.Position
		}
		if !row.Period.Valid {
			continue
		}
		amount, err := decimal.NewFromString(row.Amount.String)
		if err != nil {
			return core.Statement{}, fmt.Errorf("parse amount %q for %q: %w", row.Amount.String, row.Label, err)
		}
		stmt.Items[len(stmt.Items)-1].Values[row.Period.String] = amount
	}
	return stmt, nil
}

// ReadMapping implements sheets.MappingReader
func (r *SQLiteRepository) ReadMapping(ctx context.Context) (core.Mapping, error) {
	if _, err := r.queries.GetImport(ctx, importMapping); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: mapping not imported", ports.ErrSheetNotFound)
		}
		return nil, fmt.Errorf("get mapping import: %w", err)
	}
	rows, err := r.queries.ListMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	m := make(core.Mapping, len(rows))
	for i, row := range rows {
		m[i] = core.MappingEntry{Label: row.Label, Category: row.Category}
	}
	return m, nil
}

// ReadTable implements sheets.TableReader
func (r *SQLiteRepository) ReadTable(ctx context.Context, name string) (core.Table, error) {
	payload, err := r.queries.GetSheetTable(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Table{}, fmt.Errorf("%w: %q", ports.ErrSheetNotFound, name)
		}
		return core.Table{}, fmt.Errorf("get table %q: %w", name, err)
	}
	var st storedTable
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return core.Table{}, fmt.Errorf("decode table %q: %w", name, err)
	}
	return st.decode()
}

// LastImport returns when the statement was last imported.
func (r *SQLiteRepository) LastImport(ctx context.Context) (time.Time, bool, error) {
	at, err := r.queries.GetImport(ctx, importStatement)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get statement import: %w", err)
	}
	t, err := time.Parse(timeLayout, at)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse import time: %w", err)
	}
	return t, true, nil
}

// CreatePublication records a pending publication.
func (r *SQLiteRepository) CreatePublication(ctx context.Context, p Publication) error {
	err := r.queries.CreatePublication(ctx, CreatePublicationParams{
		ID:         p.ID,
		Period1:    p.Period1,
		Period2:    p.Period2,
		ShowDetail: p.ShowDetail,
		CreatedAt:  r.timestamp(),
	})
	if err != nil {
		return fmt.Errorf("create publication: %w", err)
	}
	slog.InfoContext(ctx, "Publication saved to SQLite",
		"id", p.ID,
		"period_1", p.Period1,
		"period_2", p.Period2)
	return nil
}

// GetPublication retrieves a single publication by ID.
func (r *SQLiteRepository) GetPublication(ctx context.Context, id string) (Publication, error) {
	row, err := r.queries.GetPublication(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Publication{}, fmt.Errorf("%w: %s", ErrPublicationNotFound, id)
		}
		return Publication{}, fmt.Errorf("get publication: %w", err)
	}
	return toPublication(row)
}

// PendingPublications returns the oldest pending publications.
func (r *SQLiteRepository) PendingPublications(ctx context.Context, limit int) ([]Publication, error) {
	rows, err := r.queries.ListPublicationsByStatus(ctx, StatusPending, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending publications: %w", err)
	}
	return toPublications(rows)
}

// RecentPublications returns the newest publications first.
func (r *SQLiteRepository) RecentPublications(ctx context.Context, limit int) ([]Publication, error) {
	rows, err := r.queries.ListRecentPublications(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	return toPublications(rows)
}

// MarkPublished marks a publication as written to ref.
func (r *SQLiteRepository) MarkPublished(ctx context.Context, id, ref string) error {
	if err := r.finish(ctx, id, StatusDone, ref, ""); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Publication marked as done", "id", id, "sheet_ref", ref)
	return nil
}

// MarkPublishFailed marks a publication as failed with cause.
func (r *SQLiteRepository) MarkPublishFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.finish(ctx, id, StatusFailed, "", msg); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Publication marked as failed", "id", id, "error", msg)
	return nil
}

// RecordPublishAttempt counts a failed attempt and leaves the publication
// pending for a later retry.
func (r *SQLiteRepository) RecordPublishAttempt(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.finish(ctx, id, StatusPending, "", msg); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Publication attempt failed, will retry", "id", id, "error", msg)
	return nil
}

func (r *SQLiteRepository) finish(ctx context.Context, id, status, ref, msg string) error {
	n, err := r.queries.FinishPublication(ctx, id, status, ref, msg, r.timestamp())
	if err != nil {
		return fmt.Errorf("update publication: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrPublicationNotFound, id)
	}
	return nil
}

// PublicationCounts returns the number of publications per status.
func (r *SQLiteRepository) PublicationCounts(ctx context.Context) (map[string]int64, error) {
	counts, err := r.queries.CountPublications(ctx)
	if err != nil {
		return nil, fmt.Errorf("count publications: %w", err)
	}
	return counts, nil
}

func toPublications(rows []PublicationRow) ([]Publication, error) {
	out := make([]Publication, 0, len(rows))
	for _, row := range rows {
		p, err := toPublication(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func toPublication(row PublicationRow) (Publication, error) {
	created, err := time.Parse(timeLayout, row.CreatedAt)
	if err != nil {
		return Publication{}, fmt.Errorf("parse created_at: %w", err)
	}
	updated, err := time.Parse(timeLayout, row.UpdatedAt)
	if err != nil {
		return Publication{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return Publication{
		ID:         row.ID,
		Period1:    row.Period1,
		Period2:    row.Period2,
		ShowDetail: row.ShowDetail,
		Status:     row.Status,
		SheetRef:   row.SheetRef,
		Error:      row.Error,
		Attempts:   int(row.Attempts),
		CreatedAt:  created,
		UpdatedAt:  updated,
	}, nil
}
