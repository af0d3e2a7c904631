package audit

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/storage"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/ratelimit"
)

// RepositorySink stores entries as AuditLogEntry rows
type RepositorySink struct {
	repo storage.Repository
}

// NewRepositorySink creates a database sink
func NewRepositorySink(repo storage.Repository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Name() string { return "repository" }

func (s *RepositorySink) Write(ctx context.Context, entry *models.AuditLogEntry) error {
	// Each sink gets its own copy; gorm assigns the primary key on insert
	row := *entry
	row.ID = 0
	return s.repo.AppendAudit(ctx, &row)
}

// SheetColumns defines the column headers for the audit sheet
var SheetColumns = []string{
	"Created At",
	"Action",
	"Topic ID",
	"Status",
	"Message",
	"Counts",
	"Error",
}

// SheetsSink mirrors audit entries into a Google Sheet for editors
type SheetsSink struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	limiter       *ratelimit.MultiLimiter
	log           *logger.Logger

	initialized bool
}

// NewSheetsSink creates a sheets sink from service account credentials. Extra
// options are passed to the sheets client.
func NewSheetsSink(ctx context.Context, cfg config.SheetsConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger, opts ...option.ClientOption) (*SheetsSink, error) {
	if len(opts) == 0 {
		credJSON := []byte(cfg.ServiceAccountJSON)
		if len(credJSON) == 0 {
			if cfg.CredentialsFile == "" {
				return nil, fmt.Errorf("no Google credentials provided: set credentials_file or service_account_json")
			}
			data, err := os.ReadFile(cfg.CredentialsFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read credentials file: %w", err)
			}
			credJSON = data
		}

		creds, err := google.CredentialsFromJSON(ctx, credJSON, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse google credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	sheetName := cfg.SheetName
	if sheetName == "" {
		sheetName = "Audit"
	}

	return &SheetsSink{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
		limiter:       limiter,
		log:           log.WithComponent("audit-sheets"),
	}, nil
}

func (s *SheetsSink) Name() string { return "sheets" }

// Write appends one row. The sheet and header row are created on first use.
func (s *SheetsSink) Write(ctx context.Context, entry *models.AuditLogEntry) error {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterSheets); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	if !s.initialized {
		if err := s.initializeSheet(ctx); err != nil {
			return err
		}
		s.initialized = true
	}

	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{rowFor(entry)},
	}
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A1", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append audit row: %w", err)
	}
	return nil
}

// initializeSheet creates the sheet and headers if they don't exist
func (s *SheetsSink) initializeSheet(ctx context.Context) error {
	if err := s.ensureSheetExists(ctx); err != nil {
		return err
	}

	readRange := fmt.Sprintf("%s!A1:G1", s.sheetName)
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(resp.Values) > 0 {
		return nil
	}

	headerRow := make([]interface{}, 0, len(SheetColumns))
	for _, col := range SheetColumns {
		headerRow = append(headerRow, col)
	}
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.sheetName+"!A1", &sheets.ValueRange{
		Values: [][]interface{}{headerRow},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	s.log.Info().Str("sheet", s.sheetName).Msg("Audit sheet headers initialized")
	return nil
}

func (s *SheetsSink) ensureSheetExists(ctx context.Context) error {
	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == s.sheetName {
			return nil
		}
	}

	s.log.Info().Str("sheet", s.sheetName).Msg("Creating audit sheet")
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: s.sheetName,
					},
				},
			},
		},
	}
	if _, err := s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	return nil
}

func rowFor(entry *models.AuditLogEntry) []interface{} {
	topicID := ""
	if entry.TopicID != nil {
		topicID = fmt.Sprintf("%d", *entry.TopicID)
	}
	return []interface{}{
		entry.CreatedAt.Format(time.RFC3339),
		string(entry.Action),
		topicID,
		string(entry.Meta.Status),
		entry.Meta.Message,
		formatCounts(entry.Meta.Counts),
		entry.Meta.Error,
	}
}

// formatCounts renders counts as "k=v" pairs in key order
func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

var (
	_ Sink = (*RepositorySink)(nil)
	_ Sink = (*SheetsSink)(nil)
)
