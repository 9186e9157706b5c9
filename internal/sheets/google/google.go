package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"cruscotto/internal/core"
	ports "cruscotto/internal/sheets"
)

// Options names the spreadsheets and sheets a Client works with.
type Options struct {
	// SpreadsheetID holds the statement, balance sheet and cash flow sheets.
	SpreadsheetID string
	// MappingsSpreadsheetID holds the mapping sheet. Defaults to SpreadsheetID.
	MappingsSpreadsheetID string
	StatementSheet        string
	MappingSheet          string
	// ReportSpreadsheetID receives published reports. Defaults to SpreadsheetID.
	ReportSpreadsheetID string
}

type Client struct {
	svc  *gsheet.Service
	opts Options
}

// Ensure interface conformance
var (
	_ ports.Source       = (*Client)(nil)
	_ ports.ReportWriter = (*Client)(nil)
)

// New creates a Sheets client. Without client options it authenticates
// with the service account found in the environment.
func New(ctx context.Context, opts Options, clientOpts ...goption.ClientOption) (*Client, error) {
	opts.SpreadsheetID = strings.TrimSpace(opts.SpreadsheetID)
	if opts.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(opts.MappingsSpreadsheetID) == "" {
		opts.MappingsSpreadsheetID = opts.SpreadsheetID
	}
	if strings.TrimSpace(opts.ReportSpreadsheetID) == "" {
		opts.ReportSpreadsheetID = opts.SpreadsheetID
	}

	var (
		svc *gsheet.Service
		err error
	)
	if len(clientOpts) == 0 {
		svc, err = newSheetsService(ctx)
	} else {
		svc, err = gsheet.NewService(ctx, clientOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, opts: opts}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := serviceAccountCredentials(ctx)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func serviceAccountCredentials(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	// Also check the standard Google Cloud environment variable
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func (c *Client) ReadStatement(ctx context.Context) (core.Statement, error) {
	t, err := c.readSheet(ctx, c.opts.SpreadsheetID, c.opts.StatementSheet)
	if err != nil {
		return core.Statement{}, err
	}
	return core.StatementFromTable(t), nil
}

func (c *Client) ReadMapping(ctx context.Context) (core.Mapping, error) {
	t, err := c.readSheet(ctx, c.opts.MappingsSpreadsheetID, c.opts.MappingSheet)
	if err != nil {
		return nil, err
	}
	return core.MappingFromTable(t), nil
}

func (c *Client) ReadTable(ctx context.Context, name string) (core.Table, error) {
	return c.readSheet(ctx, c.opts.SpreadsheetID, name)
}

// readSheet fetches every value of a sheet unformatted, so amounts arrive
// as numbers regardless of the sheet's locale.
func (c *Client) readSheet(ctx context.Context, spreadsheetID, sheet string) (core.Table, error) {
	if c.svc == nil {
		return core.Table{}, errors.New("sheets service not initialized")
	}
	rng := quoteSheet(sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		if isMissingSheet(err) {
			return core.Table{}, fmt.Errorf("%w: %q", ports.ErrSheetNotFound, sheet)
		}
		return core.Table{}, fmt.Errorf("read %s: %w", rng, err)
	}
	return ports.ParseValues(resp.Values), nil
}

// WriteReport replaces the content of the sheet named title in the report
// spreadsheet, creating the sheet when needed.
func (c *Client) WriteReport(ctx context.Context, title string, r core.FormattedReport) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	sheet := strings.TrimSpace(title)
	if sheet == "" {
		sheet = "Report"
	}
	id := c.opts.ReportSpreadsheetID

	if err := c.ensureSheet(ctx, id, sheet); err != nil {
		return "", err
	}
	if _, err := c.svc.Spreadsheets.Values.Clear(id, quoteSheet(sheet), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear sheet %s: %w", sheet, err)
	}

	values := reportValues(r)
	rng := fmt.Sprintf("%s!A1", quoteSheet(sheet))
	resp, err := c.svc.Spreadsheets.Values.Update(id, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update sheet %s: %w", sheet, err)
	}
	if resp.UpdatedRange != "" {
		return resp.UpdatedRange, nil
	}
	return rng, nil
}

func (c *Client) ensureSheet(ctx context.Context, spreadsheetID, sheet string) error {
	ss, err := c.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == sheet {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}
	slog.InfoContext(ctx, "Created report sheet", "spreadsheet_id", spreadsheetID, "sheet", sheet)
	return nil
}

// reportValues lays out a report as the header row followed by one row
// per report line.
func reportValues(r core.FormattedReport) [][]any {
	records := r.Records()
	out := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		out[i] = row
	}
	return out
}

// quoteSheet returns an A1 range covering the whole sheet.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func isMissingSheet(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range")
}
