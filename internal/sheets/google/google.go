// Package google stores payment tables in tabs of a Google spreadsheet.
// Each tab holds a header row followed by one row per record.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"payments/internal/core"
	ports "payments/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet and the tab of each table.
type Config struct {
	SpreadsheetID string
	PaymentsSheet string
	BadDebtsSheet string
}

// valuesAPI is the subset of the Sheets values service the client needs.
type valuesAPI interface {
	Get(ctx context.Context, rng string) ([][]any, error)
	Clear(ctx context.Context, rng string) error
	Update(ctx context.Context, rng string, values [][]any) error
}

type Client struct {
	values valuesAPI
	cfg    Config
}

// New creates a client authenticated with service account credentials from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if cfg.PaymentsSheet == "" {
		cfg.PaymentsSheet = "Payments"
	}
	if cfg.BadDebtsSheet == "" {
		cfg.BadDebtsSheet = "Bad Debts"
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{values: &sheetValues{svc: svc, id: cfg.SpreadsheetID}, cfg: cfg}, nil
}

// Payments returns the store backed by the payments tab.
func (c *Client) Payments() *Sheet { return c.Sheet(c.cfg.PaymentsSheet) }

// BadDebts returns the store backed by the bad-debt tab.
func (c *Client) BadDebts() *Sheet { return c.Sheet(c.cfg.BadDebtsSheet) }

func (c *Client) Sheet(name string) *Sheet {
	return &Sheet{values: c.values, name: name}
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "scope", gsheet.SpreadsheetsScope)
	return service, nil
}

type sheetValues struct {
	svc *gsheet.Service
	id  string
}

func (v *sheetValues) Get(ctx context.Context, rng string) ([][]any, error) {
	resp, err := v.svc.Spreadsheets.Values.Get(v.id, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (v *sheetValues) Clear(ctx context.Context, rng string) error {
	_, err := v.svc.Spreadsheets.Values.Clear(v.id, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (v *sheetValues) Update(ctx context.Context, rng string, values [][]any) error {
	vr := &gsheet.ValueRange{Values: values}
	_, err := v.svc.Spreadsheets.Values.Update(v.id, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

var _ ports.SnapshotStore = (*Sheet)(nil)

// Sheet is one tab of the spreadsheet used as a payments table.
type Sheet struct {
	values valuesAPI
	name   string
}

func (s *Sheet) Name() string { return "sheets:" + s.name }

func (s *Sheet) Load(ctx context.Context) ([]core.PaymentRecord, error) {
	values, err := s.values.Get(ctx, sheetRange(s.name, "A:M"))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.name, err)
	}
	records, err := ports.DecodeRows(toRows(values))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.name, err)
	}
	return records, nil
}

// Save clears the tab and writes the header and every record from A1.
func (s *Sheet) Save(ctx context.Context, records []core.PaymentRecord) error {
	if err := s.values.Clear(ctx, sheetRange(s.name, "A:M")); err != nil {
		return fmt.Errorf("clear %s: %w", s.name, err)
	}
	if err := s.values.Update(ctx, sheetRange(s.name, "A1"), toValues(records)); err != nil {
		return fmt.Errorf("write %s: %w", s.name, err)
	}
	slog.InfoContext(ctx, "Sheet updated", "sheet", s.name, "records", len(records))
	return nil
}
