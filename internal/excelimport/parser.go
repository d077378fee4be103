package excelimport

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// MaxFileSize is the hard cap on uploaded spreadsheet size.
const MaxFileSize = 5 * 1024 * 1024

// DefaultMaxRows bounds how many data rows a single import may contain.
const DefaultMaxRows = 500

// Row is one normalized spreadsheet row. Unresolved or invalid fields come
// back as zero values; dates stay raw strings until the caller builds the
// request, so a bad date only fails that row.
type Row struct {
	Article       string
	Amount        float64
	Recipient     string
	RequestNumber string
	RequestDate   string
	Status        string
	Organization  string
	Department    string
	Priority      string
	Purpose       string
	PaymentDate   string
	Applicant     string
}

// empty reports whether every resolved field of the row is blank. Such rows
// are skipped silently, counted neither as imported nor as errors.
func (r Row) empty() bool {
	return r.Amount == 0 &&
		r.Article == "" && r.Recipient == "" && r.RequestNumber == "" &&
		r.RequestDate == "" && r.Status == "" && r.Organization == "" &&
		r.Department == "" && r.Priority == "" && r.Purpose == "" &&
		r.PaymentDate == "" && r.Applicant == ""
}

// Logical spreadsheet fields and the header spellings the payment registers
// are known to export. Header matching is tolerant, see resolveColumns.
type fieldSpec struct {
	name    string
	aliases []string
}

var fieldSpecs = []fieldSpec{
	{"article", []string{"Статья движения денежных средств", "Статья ДДС"}},
	{"amount", []string{"Сумма"}},
	{"recipient", []string{"Получатель"}},
	{"request_number", []string{"Номер заявки", "Заявка"}},
	{"request_date", []string{"Дата заявки"}},
	{"status", []string{"Статус"}},
	{"organization", []string{"Организация"}},
	{"department", []string{"Подразделение"}},
	{"priority", []string{"Приоритет"}},
	{"purpose", []string{"Назначение платежа", "Назначение"}},
	{"payment_date", []string{"Дата оплаты"}},
	{"applicant", []string{"Заявитель"}},
}

// RequestDateLayout is the date format the registers export: "09.10.2025 23:59:59".
const RequestDateLayout = "02.01.2006 15:04:05"

// Parser turns uploaded spreadsheet bytes into normalized rows. Request
// dates are interpreted in the configured timezone.
type Parser struct {
	location *time.Location
	logger   *zap.Logger
}

// NewParser creates a parser. timezone is an IANA name, e.g. "Europe/Moscow".
func NewParser(timezone string, logger *zap.Logger) (*Parser, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load import timezone %q: %w", timezone, err)
	}
	return &Parser{location: loc, logger: logger}, nil
}

// ParseRequestDate parses a register-format date in the import timezone.
func (p *Parser) ParseRequestDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(RequestDateLayout, value, p.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid request date %q: %w", value, err)
	}
	return t, nil
}

// Parse opens the workbook and returns a reader over its data rows.
//
// It fails with a ValidationError when the file exceeds the size cap or has
// no header row, and with a plain error when the workbook container itself
// cannot be parsed. A maxRows violation is reported by the reader during
// iteration, since the reader streams rows rather than materializing them.
func (p *Parser) Parse(fileBytes []byte, maxRows int) (*RowReader, error) {
	if int64(len(fileBytes)) > MaxFileSize {
		return nil, &ValidationError{Reason: "file exceeds the 5 MB limit"}
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	f, err := excelize.OpenReader(bytes.NewReader(fileBytes))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, &ValidationError{Reason: "workbook has no sheets"}
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	if !rows.Next() {
		rows.Close()
		f.Close()
		return nil, &ValidationError{Reason: "file has no header row"}
	}
	headers, err := rows.Columns()
	if err != nil {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("read header row: %w", err)
	}

	columns := resolveColumns(headers)
	for _, spec := range fieldSpecs {
		if columns[spec.name] < 0 {
			p.logger.Warn("Import column not found, field will be empty",
				zap.String("field", spec.name),
				zap.Strings("aliases", spec.aliases))
		}
	}

	return &RowReader{
		file:    f,
		rows:    rows,
		columns: columns,
		maxRows: maxRows,
	}, nil
}

// resolveColumns maps each logical field to a header index. For every field
// the aliases are tried in three passes of decreasing strictness:
// case-insensitive exact match, substring containment, then whole-word
// overlap. Fields with no matching header resolve to -1.
func resolveColumns(headers []string) map[string]int {
	folded := make([]string, len(headers))
	for i, h := range headers {
		folded[i] = strings.ToLower(strings.TrimSpace(h))
	}

	columns := make(map[string]int, len(fieldSpecs))
	for _, spec := range fieldSpecs {
		columns[spec.name] = findColumn(folded, spec.aliases)
	}
	return columns
}

func findColumn(headers []string, aliases []string) int {
	type matchFn func(header, alias string) bool
	passes := []matchFn{
		func(header, alias string) bool { return header == alias },
		func(header, alias string) bool { return strings.Contains(header, alias) },
		func(header, alias string) bool {
			for _, word := range strings.Fields(alias) {
				if containsWord(header, word) {
					return true
				}
			}
			return false
		},
	}

	for _, match := range passes {
		for i, header := range headers {
			if header == "" {
				continue
			}
			for _, alias := range aliases {
				if match(header, strings.ToLower(alias)) {
					return i
				}
			}
		}
	}
	return -1
}

func containsWord(header, word string) bool {
	for _, hw := range strings.Fields(header) {
		if hw == word {
			return true
		}
	}
	return false
}

// RowReader streams normalized rows out of one sheet. It is finite and
// non-restartable: once exhausted it must be discarded. Callers must Close
// it to release the underlying workbook.
type RowReader struct {
	file    *excelize.File
	rows    *excelize.Rows
	columns map[string]int
	maxRows int

	current  Row
	seenRows int
	err      error
	closed   bool
}

// Next advances to the next non-empty data row. It returns false when the
// sheet is exhausted or a fatal error occurred; check Err afterwards.
func (r *RowReader) Next() bool {
	if r.err != nil || r.closed {
		return false
	}

	for r.rows.Next() {
		r.seenRows++
		if r.seenRows > r.maxRows {
			r.err = &ValidationError{Reason: fmt.Sprintf("file contains more than %d rows", r.maxRows)}
			return false
		}

		cells, err := r.rows.Columns()
		if err != nil {
			r.err = fmt.Errorf("read row %d: %w", r.seenRows+1, err)
			return false
		}

		row := r.buildRow(cells)
		if row.empty() {
			continue
		}

		r.current = row
		return true
	}

	if err := r.rows.Error(); err != nil {
		r.err = fmt.Errorf("iterate rows: %w", err)
	}
	return false
}

// Row returns the row produced by the last successful Next.
func (r *RowReader) Row() Row {
	return r.current
}

// Position returns the sheet row number of the last row Next produced,
// counting the header as row 1 and including blank rows it skipped over.
func (r *RowReader) Position() int {
	return r.seenRows + 1
}

// Err returns the fatal error that stopped iteration, if any.
func (r *RowReader) Err() error {
	return r.err
}

// Close releases the workbook resources.
func (r *RowReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.rows.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

func (r *RowReader) buildRow(cells []string) Row {
	return Row{
		Article:       r.cell(cells, "article"),
		Amount:        ParseAmount(r.cell(cells, "amount")),
		Recipient:     r.cell(cells, "recipient"),
		RequestNumber: r.cell(cells, "request_number"),
		RequestDate:   r.cell(cells, "request_date"),
		Status:        r.cell(cells, "status"),
		Organization:  r.cell(cells, "organization"),
		Department:    r.cell(cells, "department"),
		Priority:      r.cell(cells, "priority"),
		Purpose:       r.cell(cells, "purpose"),
		PaymentDate:   r.cell(cells, "payment_date"),
		Applicant:     r.cell(cells, "applicant"),
	}
}

func (r *RowReader) cell(cells []string, field string) string {
	idx := r.columns[field]
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

// ParseAmount coerces a register-formatted amount to a float. The registers
// use comma as the decimal separator and spaces (sometimes non-breaking) as
// thousands separators: "12 345,67" -> 12345.67. Anything unparseable
// coerces to 0 instead of failing the row.
func ParseAmount(value string) float64 {
	cleaned := strings.NewReplacer(" ", "", " ", "", ",", ".").Replace(value)
	if cleaned == "" {
		return 0
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return amount
}
