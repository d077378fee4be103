package excelimport

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Pre-check limits. The validation endpoint is stricter than the import
// itself: 200 rows against the import's 500, plus a total-amount ceiling.
const (
	ValidateMaxRows  = 200
	ValidateMaxTotal = 500000.0
)

// Required headers for the validation pre-check. Unlike the tolerant import
// resolver, the pre-check demands these exact column names.
var requiredHeaders = []string{
	"Статья ДДС",
	"Сумма",
	"Получатель",
	"Номер заявки",
	"Дата заявки",
}

// ValidationSummary is the pre-check result shown to the user before they
// commit to the import.
type ValidationSummary struct {
	RowCount    int     `json:"row_count"`
	TotalAmount float64 `json:"total_amount"`
}

// Validate performs the pre-import check on an uploaded file: size cap,
// mandatory headers, row limit and total-amount limit. It never writes
// anything; a passing file may still produce per-row skips during import.
func (p *Parser) Validate(fileBytes []byte, maxRows int, maxTotal float64) (*ValidationSummary, error) {
	if int64(len(fileBytes)) > MaxFileSize {
		return nil, &ValidationError{Reason: "file exceeds the 5 MB limit"}
	}
	if maxRows <= 0 {
		maxRows = ValidateMaxRows
	}
	if maxTotal <= 0 {
		maxTotal = ValidateMaxTotal
	}

	f, err := excelize.OpenReader(bytes.NewReader(fileBytes))
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("cannot read workbook: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ValidationError{Reason: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, &ValidationError{Reason: "file has no header row"}
	}

	headers := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		headers[strings.TrimSpace(h)] = i
	}

	var missing []string
	for _, required := range requiredHeaders {
		if _, ok := headers[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
		}
	}

	amountIdx := headers["Сумма"]
	summary := &ValidationSummary{}

	for _, row := range rows[1:] {
		if rowBlank(row) {
			continue
		}
		summary.RowCount++
		if amountIdx < len(row) {
			summary.TotalAmount += ParseAmount(row[amountIdx])
		}
	}

	if summary.RowCount > maxRows {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("file contains %d rows, exceeding the %d row limit", summary.RowCount, maxRows),
		}
	}
	if summary.TotalAmount > maxTotal {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("total amount %.2f exceeds the %.2f limit", summary.TotalAmount, maxTotal),
		}
	}

	return summary, nil
}

func rowBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
