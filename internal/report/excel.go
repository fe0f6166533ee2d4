// Package report exports the current booking ledger as an Excel workbook for
// the branch staff, one sheet per branch.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/AlexBil-rar/tg-bot-EMKA/internal/models"
)

var headerColumns = []string{"Дата", "Время", "Имя", "Телефон", "ID клиента", "Создано"}

// BookingSource is the ledger surface the exporter reads.
type BookingSource interface {
	ListBookings(ctx context.Context) ([]models.Booking, error)
}

type Exporter struct {
	source BookingSource
	dir    string
	logger *zerolog.Logger
}

func NewExporter(source BookingSource, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{source: source, dir: dir, logger: logger}
}

// Export writes a dated workbook with one sheet per branch and returns its path.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	bookings, err := e.source.ListBookings(ctx)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}

	byBranch := make(map[string][]models.Booking)
	var branches []string
	for _, b := range bookings {
		if _, seen := byBranch[b.Branch]; !seen {
			branches = append(branches, b.Branch)
		}
		byBranch[b.Branch] = append(byBranch[b.Branch], b)
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})

	for i, branch := range branches {
		sheet := sheetName(branch)
		if i == 0 {
			f.SetSheetName("Sheet1", sheet)
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return "", fmt.Errorf("create sheet %s: %w", sheet, err)
			}
		}

		for col, name := range headerColumns {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			if err := f.SetCellValue(sheet, cell, name); err != nil {
				return "", err
			}
		}
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(headerColumns), 1)
		_ = f.SetCellStyle(sheet, startCell, endCell, bold)

		for row, b := range byBranch[branch] {
			values := []interface{}{
				b.Date, b.Time, b.Name, b.Phone, b.UserID,
				b.CreatedAt.Format("2006-01-02 15:04:05"),
			}
			for col, val := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
				if err := f.SetCellValue(sheet, cell, val); err != nil {
					return "", err
				}
			}
		}
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(e.dir, fmt.Sprintf("bookings_%s.xlsx", time.Now().Format("20060102")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}

	e.logger.Info().Str("path", path).Int("bookings", len(bookings)).Msg("Report exported")
	return path, nil
}

// Start writes a report once a day.
func (e *Exporter) Start(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Export(ctx); err != nil {
				e.logger.Error().Err(err).Msg("Report export failed")
			}
		}
	}
}

// sheetName keeps branch names within Excel's 31-character sheet limit.
func sheetName(branch string) string {
	runes := []rune(branch)
	if len(runes) > 31 {
		return string(runes[:31])
	}
	return branch
}
