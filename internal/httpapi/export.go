package httpapi

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"snackkit/backend/internal/domain"
)

const (
	salesSheet   = "Sales"
	xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var salesHeader = []any{"Date", "Invoice #", "Bakery", "Phone", "Items", "Qty", "Total", "Status"}

// salesToXLSX writes one row per sale, newest first as given.
func salesToXLSX(sales []domain.Sale, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", salesSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(salesSheet, "A1", &salesHeader); err != nil {
		return nil, err
	}

	for i, sale := range sales {
		names := make([]string, 0, len(sale.Items))
		for _, item := range sale.Items {
			names = append(names, fmt.Sprintf("%s x%d", item.Name, item.Qty))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{
			sale.CreatedAt.In(loc).Format("2006-01-02 15:04"),
			sale.InvoiceNumber,
			sale.BakerySnapshot.Name,
			sale.BakerySnapshot.Phone,
			strings.Join(names, ", "),
			sale.TotalQty(),
			sale.TotalAmount.InexactFloat64(),
			string(sale.Status),
		}
		if err := f.SetSheetRow(salesSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func dailyReportToCSV(days []domain.DailySummary) string {
	lines := []string{"date,revenue,qty,bakeries"}
	for _, day := range days {
		lines = append(lines, fmt.Sprintf("%s,%s,%d,%d", day.Date, day.Revenue.StringFixed(2), day.Qty, day.Bakeries))
	}
	return strings.Join(lines, "\n") + "\n"
}

func monthlyReportToCSV(months []domain.MonthlySummary) string {
	lines := []string{"month,revenue,qty,days"}
	for _, month := range months {
		lines = append(lines, fmt.Sprintf("%s,%s,%d,%d", month.Month, month.Revenue.StringFixed(2), month.Qty, month.Days))
	}
	return strings.Join(lines, "\n") + "\n"
}
