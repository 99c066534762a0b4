package reconcile

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const reportSheet = "Import"

var reportHeader = []interface{}{"File", "Status", "NF-e Number", "NF-e Key", "Products Imported", "Error", "Item Errors"}

// WriteBatchReport writes one xlsx row per batch file, in input order.
func WriteBatchReport(w io.Writer, results []FileResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(reportSheet, "A1", &reportHeader); err != nil {
		return err
	}
	for i, r := range results {
		status := "error"
		switch {
		case r.Success:
			status = "imported"
		case r.Duplicate:
			status = "duplicate"
		}
		row := []interface{}{
			r.Label,
			status,
			r.InvoiceNumber,
			r.InvoiceKey,
			r.ProductsImported,
			r.Error,
			strings.Join(r.ItemErrors, "; "),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return err
		}
	}

	ok, failed := Counts(results)
	summaryCell, err := excelize.CoordinatesToCellName(1, len(results)+3)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(reportSheet, summaryCell, fmt.Sprintf("%d imported, %d failed", ok, failed)); err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}
