package export

import (
	"fmt"
	"io"

	"shareit/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	SheetName   = "Bookings"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	timeLayout  = "02.01.2006 15:04"
)

var headers = []string{"ID", "Item", "Booker", "Start", "End", "Status"}

// BookingsXLSX пишет список бронирований в xlsx. state попадает в заголовок документа.
func BookingsXLSX(w io.Writer, bookings []models.BookingView, state models.Status) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("Bookings (%s)", state),
		Creator: "shareit",
	}); err != nil {
		return fmt.Errorf("set doc props: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(SheetName, "A1", lastHeader, headerStyle)

	for i, b := range bookings {
		row := i + 2
		values := []interface{}{
			b.ID,
			b.Item.Name,
			bookerLabel(b.Booker),
			b.Start.Format(timeLayout),
			b.End.Format(timeLayout),
			b.Status.String(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 8)
	_ = f.SetColWidth(SheetName, "B", "C", 25)
	_ = f.SetColWidth(SheetName, "D", "E", 18)
	_ = f.SetColWidth(SheetName, "F", "F", 12)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func bookerLabel(u models.UserRef) string {
	if u.Name == "" {
		return fmt.Sprintf("#%d", u.ID)
	}
	return fmt.Sprintf("%s (#%d)", u.Name, u.ID)
}
