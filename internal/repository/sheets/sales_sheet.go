package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/restopos/internal/config"
	"github.com/mamadbah2/restopos/internal/domain/models"
)

// DateLayout is the format of the date column.
const DateLayout = "2006-01-02"

// SalesSheet is the spreadsheet tab daily sales are appended to, one row per
// day: date, bill count, revenue, line count.
type SalesSheet interface {
	AppendDailySales(ctx context.Context, report models.DailySales) error
	ExportedDays(ctx context.Context) (map[string]bool, error)
}

// GoogleSalesSheet implements SalesSheet with the Google Sheets API.
type GoogleSalesSheet struct {
	service       *sheetsapi.Service
	spreadsheetID string
	tab           string
	logger        *zap.Logger
}

// NewGoogleSalesSheet authenticates with the service account file and binds
// the configured spreadsheet tab.
func NewGoogleSalesSheet(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSalesSheet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled() {
		return nil, errors.New("sheets credentials path and spreadsheet id are required")
	}

	service, err := sheetsapi.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsPath),
		option.WithScopes(sheetsapi.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	tab := cfg.SalesTab
	if tab == "" {
		tab = "Sales"
	}
	return &GoogleSalesSheet{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		tab:           tab,
		logger:        logger.With(zap.String("tab", tab)),
	}, nil
}

// AppendDailySales adds the report as a new row below the last filled one.
func (s *GoogleSalesSheet) AppendDailySales(ctx context.Context, report models.DailySales) error {
	sheetRange := s.tab + "!A:D"
	payload := &sheetsapi.ValueRange{Values: [][]interface{}{SalesRow(report)}}

	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append sales row into %s: %w", sheetRange, err)
	}

	s.logger.Debug("sales row appended", zap.String("date", report.Date.Format(DateLayout)))
	return nil
}

// ExportedDays returns the dates already present in the date column.
func (s *GoogleSalesSheet) ExportedDays(ctx context.Context) (map[string]bool, error) {
	sheetRange := s.tab + "!A:A"
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, sheetRange).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheetRange, err)
	}
	return DaysInColumn(resp.Values), nil
}

// SalesRow renders a report as sheet cells.
func SalesRow(report models.DailySales) []interface{} {
	return []interface{}{
		report.Date.Format(DateLayout),
		report.BillCount,
		report.Revenue,
		report.Lines,
	}
}

// DaysInColumn collects the first cell of every row that parses as a date.
// Header rows and blanks are skipped.
func DaysInColumn(rows [][]interface{}) map[string]bool {
	days := make(map[string]bool, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, ok := row[0].(string)
		if !ok {
			continue
		}
		cell = strings.TrimSpace(cell)
		if _, err := time.Parse(DateLayout, cell); err == nil {
			days[cell] = true
		}
	}
	return days
}
