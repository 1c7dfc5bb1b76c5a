package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository"
	"github.com/mamadbah2/restopos/internal/repository/sheets"
)

// Service aggregates bills into daily sales and exports them to a spreadsheet.
type Service struct {
	bills    repository.BillStore
	sheet    sheets.SalesSheet
	location *time.Location
	logger   *zap.Logger
}

// NewService wires a new reporting service instance. A nil sheet disables
// exports but keeps DailySales available.
func NewService(bills repository.BillStore, sheet sheets.SalesSheet, location *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	return &Service{bills: bills, sheet: sheet, location: location, logger: logger}
}

// DailySales sums the bills created on the calendar day of ts, in the
// service's time zone.
func (s *Service) DailySales(ctx context.Context, ts time.Time) (models.DailySales, error) {
	local := ts.In(s.location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	end := start.AddDate(0, 0, 1)

	bills, err := s.bills.ListBillsCreatedBetween(ctx, start, end)
	if err != nil {
		return models.DailySales{}, fmt.Errorf("load bills of %s: %w", start.Format(sheets.DateLayout), err)
	}

	report := models.DailySales{Date: start, BillCount: len(bills)}
	for _, bill := range bills {
		report.Revenue += bill.Total()
		for _, food := range bill.Foods {
			report.Lines += food.Quantity
		}
	}
	return report, nil
}

// ExportDailySales appends the day's totals to the sales sheet. A day that
// already has a row is skipped so a re-run does not duplicate it.
func (s *Service) ExportDailySales(ctx context.Context, ts time.Time) (models.DailySales, error) {
	if s.sheet == nil {
		return models.DailySales{}, errors.New("sales export is not configured")
	}

	report, err := s.DailySales(ctx, ts)
	if err != nil {
		return models.DailySales{}, err
	}
	day := report.Date.Format(sheets.DateLayout)

	exported, err := s.sheet.ExportedDays(ctx)
	if err != nil {
		return models.DailySales{}, fmt.Errorf("load exported days: %w", err)
	}
	if exported[day] {
		s.logger.Info("daily sales already exported", zap.String("date", day))
		return report, nil
	}

	if err := s.sheet.AppendDailySales(ctx, report); err != nil {
		return models.DailySales{}, fmt.Errorf("export sales of %s: %w", day, err)
	}

	s.logger.Info("daily sales exported",
		zap.String("date", day),
		zap.Int("bills", report.BillCount),
		zap.Int64("revenue", report.Revenue),
	)
	return report, nil
}
