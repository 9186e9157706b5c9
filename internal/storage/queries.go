package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the SQL statements of the repository.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

var clearStatement = []string{
	`DELETE FROM statement_values`,
	`DELETE FROM statement_items`,
	`DELETE FROM statement_periods`,
}

func (q *Queries) ClearStatement(ctx context.Context) error {
	for _, stmt := range clearStatement {
		if _, err := q.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const insertPeriod = `INSERT INTO statement_periods (position, name) VALUES (?, ?)`

func (q *Queries) InsertPeriod(ctx context.Context, position int64, name string) error {
	_, err := q.db.ExecContext(ctx, insertPeriod, position, name)
	return err
}

const insertItem = `INSERT INTO statement_items (position, label) VALUES (?, ?)`

func (q *Queries) InsertItem(ctx context.Context, position int64, label string) error {
	_, err := q.db.ExecContext(ctx, insertItem, position, label)
	return err
}

const insertValue = `INSERT INTO statement_values (position, period, amount) VALUES (?, ?, ?)`

func (q *Queries) InsertValue(ctx context.Context, position int64, period, amount string) error {
	_, err := q.db.ExecContext(ctx, insertValue, position, period, amount)
	return err
}

const listPeriods = `SELECT name FROM statement_periods ORDER BY position`

func (q *Queries) ListPeriods(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listPeriods)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	return items, rows.Err()
}

type StatementValueRow struct {
	Position int64
	Label    string
	Period   sql.NullString
	Amount   sql.NullString
}

const listStatementValues = `
SELECT i.position, i.label, v.period, v.amount
FROM statement_items i
LEFT JOIN statement_values v ON v.position = i.position
ORDER BY i.position
`

func (q *Queries) ListStatementValues(ctx context.Context) ([]StatementValueRow, error) {
	rows, err := q.db.QueryContext(ctx, listStatementValues)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StatementValueRow
	for rows.Next() {
		var i StatementValueRow
		if err := rows.Scan(&i.Position, &i.Label, &i.Period, &i.Amount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const clearMappings = `DELETE FROM mappings`

func (q *Queries) ClearMappings(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, clearMappings)
	return err
}

const insertMapping = `INSERT INTO mappings (position, label, category) VALUES (?, ?, ?)`

func (q *Queries) InsertMapping(ctx context.Context, position int64, label, category string) error {
	_, err := q.db.ExecContext(ctx, insertMapping, position, label, category)
	return err
}

type MappingRow struct {
	Label    string
	Category string
}

const listMappings = `SELECT label, category FROM mappings ORDER BY position`

func (q *Queries) ListMappings(ctx context.Context) ([]MappingRow, error) {
	rows, err := q.db.QueryContext(ctx, listMappings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MappingRow
	for rows.Next() {
		var i MappingRow
		if err := rows.Scan(&i.Label, &i.Category); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const touchImport = `
INSERT INTO imports (name, imported_at) VALUES (?, ?)
ON CONFLICT(name) DO UPDATE SET imported_at = excluded.imported_at
`

func (q *Queries) TouchImport(ctx context.Context, name, at string) error {
	_, err := q.db.ExecContext(ctx, touchImport, name, at)
	return err
}

const getImport = `SELECT imported_at FROM imports WHERE name = ?`

func (q *Queries) GetImport(ctx context.Context, name string) (string, error) {
	var at string
	err := q.db.QueryRowContext(ctx, getImport, name).Scan(&at)
	return at, err
}

const upsertSheetTable = `
INSERT INTO sheet_tables (name, payload, imported_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, imported_at = excluded.imported_at
`

func (q *Queries) UpsertSheetTable(ctx context.Context, name, payload, at string) error {
	_, err := q.db.ExecContext(ctx, upsertSheetTable, name, payload, at)
	return err
}

const getSheetTable = `SELECT payload FROM sheet_tables WHERE name = ?`

func (q *Queries) GetSheetTable(ctx context.Context, name string) (string, error) {
	var payload string
	err := q.db.QueryRowContext(ctx, getSheetTable, name).Scan(&payload)
	return payload, err
}

type CreatePublicationParams struct {
	ID         string
	Period1    string
	Period2    string
	ShowDetail bool
	CreatedAt  string
}

const createPublication = `
INSERT INTO publications (id, period_1, period_2, show_detail, status, created_at, updated_at)
VALUES (?, ?, ?, ?, 'pending', ?, ?)
`

func (q *Queries) CreatePublication(ctx context.Context, arg CreatePublicationParams) error {
	_, err := q.db.ExecContext(ctx, createPublication,
		arg.ID, arg.Period1, arg.Period2, arg.ShowDetail, arg.CreatedAt, arg.CreatedAt)
	return err
}

type PublicationRow struct {
	ID         string
	Period1    string
	Period2    string
	ShowDetail bool
	Status     string
	SheetRef   string
	Error      string
	Attempts   int64
	CreatedAt  string
	UpdatedAt  string
}

const publicationColumns = `id, period_1, period_2, show_detail, status, sheet_ref, error, attempts, created_at, updated_at`

func scanPublication(s interface{ Scan(...any) error }) (PublicationRow, error) {
	var i PublicationRow
	err := s.Scan(&i.ID, &i.Period1, &i.Period2, &i.ShowDetail, &i.Status,
		&i.SheetRef, &i.Error, &i.Attempts, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getPublication = `SELECT ` + publicationColumns + ` FROM publications WHERE id = ?`

func (q *Queries) GetPublication(ctx context.Context, id string) (PublicationRow, error) {
	return scanPublication(q.db.QueryRowContext(ctx, getPublication, id))
}

const listPublicationsByStatus = `SELECT ` + publicationColumns + `
FROM publications WHERE status = ? ORDER BY created_at LIMIT ?`

func (q *Queries) ListPublicationsByStatus(ctx context.Context, status string, limit int64) ([]PublicationRow, error) {
	rows, err := q.db.QueryContext(ctx, listPublicationsByStatus, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PublicationRow
	for rows.Next() {
		i, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listRecentPublications = `SELECT ` + publicationColumns + `
FROM publications ORDER BY created_at DESC LIMIT ?`

func (q *Queries) ListRecentPublications(ctx context.Context, limit int64) ([]PublicationRow, error) {
	rows, err := q.db.QueryContext(ctx, listRecentPublications, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PublicationRow
	for rows.Next() {
		i, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const finishPublication = `
UPDATE publications
SET status = ?, sheet_ref = ?, error = ?, attempts = attempts + 1, updated_at = ?
WHERE id = ?
`

func (q *Queries) FinishPublication(ctx context.Context, id, status, ref, errMsg, at string) (int64, error) {
	res, err := q.db.ExecContext(ctx, finishPublication, status, ref, errMsg, at, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countPublications = `SELECT status, COUNT(*) FROM publications GROUP BY status`

func (q *Queries) CountPublications(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.QueryContext(ctx, countPublications)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
