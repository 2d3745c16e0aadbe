package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportTimelineExcel renders the transaction timeline of a date range as a
// spreadsheet. The caller owns streaming and closing the file.
func ExportTimelineExcel(ctx context.Context, fromDate time.Time, toDate time.Time) (*excelize.File, error) {
	entries, err := GetTransactionTimeline(ctx, fromDate, toDate)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheetName := "Timeline"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	// Add headers
	headings := []string{"DateTime", "Source", "Type", "Description", "PaymentType", "BankLabel", "Amount", "BeforeBalance", "AfterBalance", "Matched"}
	col := 'A'
	for _, h := range headings {
		f.SetCellValue(sheetName, string(col)+"1", h)
		col++
	}

	// Add data; amounts go out as exact decimal strings, never floats.
	for i, e := range entries {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+row, e.OccurredAt.Format("2006-01-02 15:04:05"))
		f.SetCellValue(sheetName, "B"+row, string(e.Source))
		f.SetCellValue(sheetName, "C"+row, e.Type)
		f.SetCellValue(sheetName, "D"+row, e.Description)
		f.SetCellValue(sheetName, "E"+row, string(e.PaymentType))
		f.SetCellValue(sheetName, "F"+row, e.BankLabel)
		f.SetCellValue(sheetName, "G"+row, e.Amount.String())
		f.SetCellValue(sheetName, "H"+row, e.BeforeBalance.String())
		f.SetCellValue(sheetName, "I"+row, e.AfterBalance.String())
		f.SetCellValue(sheetName, "J"+row, e.Matched)
	}

	return f, nil
}
