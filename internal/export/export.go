package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"courtbook/internal/catalog"
	"courtbook/internal/database"
	"courtbook/internal/models"
	"courtbook/internal/timeutil"

	"github.com/xuri/excelize/v2"
)

// Exporter строит Excel-файл с расписанием кортов за период:
// колонки — даты, строки — корты, в ячейках — брони дня.
type Exporter struct {
	db      *database.DB
	catalog catalog.Provider
	path    string
}

func NewExporter(db *database.DB, provider catalog.Provider, path string) *Exporter {
	return &Exporter{db: db, catalog: provider, path: path}
}

// ScheduleFile сохраняет расписание в файл и возвращает его путь.
func (e *Exporter) ScheduleFile(ctx context.Context, startDate, endDate time.Time) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.buildWorkbook(ctx, startDate, endDate)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("schedule_%s_to_%s.xlsx",
		startDate.Format(timeutil.DateLayout),
		endDate.Format(timeutil.DateLayout))
	fullPath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(fullPath); err != nil {
		return "", fmt.Errorf("error saving export file: %w", err)
	}
	return fullPath, nil
}

func (e *Exporter) buildWorkbook(ctx context.Context, startDate, endDate time.Time) (*excelize.File, error) {
	bookings, err := e.db.BookingsByDateRange(ctx, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("error getting bookings: %w", err)
	}

	courts, err := e.catalog.Courts(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting courts: %w", err)
	}

	daily := make(map[string]map[int64][]models.Booking)
	for _, booking := range bookings {
		dateKey := booking.Date.Format(timeutil.DateLayout)
		if daily[dateKey] == nil {
			daily[dateKey] = make(map[int64][]models.Booking)
		}
		daily[dateKey][booking.CourtID] = append(daily[dateKey][booking.CourtID], booking)
	}

	f := excelize.NewFile()

	sheetName := "Schedule"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s",
		startDate.Format(timeutil.DateLayout), endDate.Format(timeutil.DateLayout)))

	// Заголовки дат по колонкам начиная с B2
	var dates []string
	for d := startDate; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(timeutil.DateLayout))
	}
	for i, dateKey := range dates {
		cell, _ := excelize.CoordinatesToCellName(i+2, 2)
		_ = f.SetCellValue(sheetName, cell, dateKey)
	}

	// Названия кортов по строкам начиная с A3
	for row, court := range courts {
		cell, _ := excelize.CoordinatesToCellName(1, row+3)
		_ = f.SetCellValue(sheetName, cell, court.Name)

		for col, dateKey := range dates {
			cellBookings := daily[dateKey][court.ID]
			if len(cellBookings) == 0 {
				continue
			}
			var parts []string
			for _, booking := range cellBookings {
				parts = append(parts, fmt.Sprintf("%s-%s user %d",
					booking.StartTime, booking.EndTime, booking.UserID))
			}
			cell, _ := excelize.CoordinatesToCellName(col+2, row+3)
			_ = f.SetCellValue(sheetName, cell, strings.Join(parts, "\n"))
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 25)
	lastCol, _ := excelize.ColumnNumberToName(len(dates) + 1)
	_ = f.SetColWidth(sheetName, "B", lastCol, 22)

	style, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", style)
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")

	_ = f.DeleteSheet("Sheet1")

	return f, nil
}
