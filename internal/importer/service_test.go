package importer

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/excelimport"
	"github.com/finflow/expense-approval/internal/models"
)

type fakeImportStore struct {
	imports    map[string]*models.Import
	markFailed map[string]string
}

func newFakeImportStore() *fakeImportStore {
	return &fakeImportStore{
		imports:    make(map[string]*models.Import),
		markFailed: make(map[string]string),
	}
}

func (f *fakeImportStore) Create(imp *models.Import) error {
	copied := *imp
	f.imports[imp.ID] = &copied
	return nil
}

func (f *fakeImportStore) UpdateOutcome(id, status string, importedCount, skippedCount int, errorMessage string) error {
	imp := f.imports[id]
	imp.Status = status
	imp.ImportedCount = importedCount
	imp.SkippedCount = skippedCount
	imp.ErrorMessage = errorMessage
	return nil
}

func (f *fakeImportStore) MarkFailed(id string, errorMessage string) error {
	f.markFailed[id] = errorMessage
	if imp, ok := f.imports[id]; ok {
		imp.Status = models.ImportStatusFailed
		imp.ErrorMessage = errorMessage
	}
	return nil
}

func (f *fakeImportStore) GetByID(id string) (*models.Import, error) {
	return f.imports[id], nil
}

type fakeRequestStore struct {
	created []*models.Request
	listErr error
}

func (f *fakeRequestStore) Create(tx *sql.Tx, request *models.Request) error {
	f.created = append(f.created, request)
	return nil
}

func (f *fakeRequestStore) ListByImportID(importID string) ([]*models.Request, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var result []*models.Request
	for _, req := range f.created {
		if req.ImportID == importID {
			result = append(result, req)
		}
	}
	return result, nil
}

type fakeUserStore struct {
	users map[string]*models.User
}

func (f *fakeUserStore) GetByID(id string) (*models.User, error) {
	return f.users[id], nil
}

// fakeTx mimics rollback by discarding rows created inside a failed run.
type fakeTx struct {
	store *fakeRequestStore
}

func (f *fakeTx) WithTransaction(fn func(*sql.Tx) error) error {
	before := len(f.store.created)
	if err := fn(nil); err != nil {
		f.store.created = f.store.created[:before]
		return err
	}
	return nil
}

type fakeNotifier struct {
	calls []struct {
		imp      *models.Import
		requests []*models.Request
	}
}

func (f *fakeNotifier) NotifyImportCompleted(imp *models.Import, requests []*models.Request, initiator *models.User) {
	f.calls = append(f.calls, struct {
		imp      *models.Import
		requests []*models.Request
	}{imp, requests})
}

type fakeKeywords struct {
	keywords map[string][]string
}

func (f *fakeKeywords) ListByCategory(category string) ([]*models.CategoryKeyword, error) {
	var result []*models.CategoryKeyword
	for _, kw := range f.keywords[category] {
		result = append(result, &models.CategoryKeyword{Category: category, Keyword: kw})
	}
	return result, nil
}

type fixture struct {
	service  *Service
	imports  *fakeImportStore
	requests *fakeRequestStore
	notifier *fakeNotifier
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	parser, err := excelimport.NewParser("UTC", zap.NewNop())
	require.NoError(t, err)

	imports := newFakeImportStore()
	requests := &fakeRequestStore{}
	notifier := &fakeNotifier{}
	keywords := &fakeKeywords{keywords: map[string][]string{
		models.EmployeeCategoryLivingExpenses: {"питание", "проживание"},
	}}
	users := &fakeUserStore{users: map[string]*models.User{}}

	service := NewService(
		imports, requests, users, &fakeTx{store: requests},
		parser, keywords, notifier, cfg, zap.NewNop())

	return &fixture{service: service, imports: imports, requests: requests, notifier: notifier}
}

func buildWorkbook(t *testing.T, rows [][]interface{}) FileUpload {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	return FileUpload{
		Name:    "register.xlsx",
		Size:    int64(buf.Len()),
		Content: buf.Bytes(),
	}
}

var registerHeaders = []interface{}{
	"Статья ДДС", "Сумма", "Получатель", "Номер заявки", "Дата заявки",
	"Назначение платежа", "Приоритет", "Заявитель",
}

func employee() *models.User {
	return &models.User{
		ID:       "u1",
		FullName: "Иванов Иван",
		Role:     models.RoleEmployee,
		IsActive: true,
	}
}

func TestImportExcelCreatesClassifiedRequests(t *testing.T) {
	fx := newFixture(t, Config{})
	file := buildWorkbook(t, [][]interface{}{
		registerHeaders,
		{"Аренда", "1 000,50", "ООО Ромашка", "З-001", "09.10.2025 12:00:00", "Питание сотрудников", "2", "Петров П.П."},
		{"Техника", "500,00", "АО Сервер", "З-002", "10.10.2025 12:00:00", "Закупка серверов", "", ""},
	})

	paymentDate := time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
	imp, err := fx.service.ImportExcel(employee(), paymentDate, "", "октябрьский реестр", []FileUpload{file})
	require.NoError(t, err)

	assert.Equal(t, models.ImportStatusCompleted, imp.Status)
	assert.Equal(t, 2, imp.ImportedCount)
	assert.Equal(t, 0, imp.SkippedCount)
	assert.Empty(t, imp.ErrorMessage)

	require.Len(t, fx.requests.created, 2)
	first := fx.requests.created[0]
	assert.Equal(t, models.SourceEmployee, first.Source)
	assert.Equal(t, models.RequestStatusDraft, first.Status)
	assert.Equal(t, models.EmployeeCategoryLivingExpenses, first.EmployeeCategory)
	assert.Equal(t, "Петров П.П.", first.Applicant)
	assert.Equal(t, 2, first.Priority)
	assert.Equal(t, 1000.50, first.Amount)
	require.NotNil(t, first.PaymentDate)
	assert.Equal(t, paymentDate, *first.PaymentDate)

	second := fx.requests.created[1]
	assert.Equal(t, models.EmployeeCategorySubdivisions, second.EmployeeCategory)
	// No applicant column value falls back to the uploading user.
	assert.Equal(t, "Иванов Иван", second.Applicant)

	require.Len(t, fx.notifier.calls, 1)
	assert.Len(t, fx.notifier.calls[0].requests, 2)
}

func TestImportExcelTreasuryCarriesImportType(t *testing.T) {
	fx := newFixture(t, Config{})
	file := buildWorkbook(t, [][]interface{}{
		registerHeaders,
		{"Графики", "100,00", "ООО Ромашка", "З-001", "09.10.2025 12:00:00", "", "", ""},
	})

	treasury := &models.User{ID: "t1", FullName: "Казначей", Role: models.RoleTreasury, IsActive: true}
	_, err := fx.service.ImportExcel(treasury, time.Now(), models.TreasuryTypeSchedules, "", []FileUpload{file})
	require.NoError(t, err)

	require.Len(t, fx.requests.created, 1)
	req := fx.requests.created[0]
	assert.Equal(t, models.SourceTreasury, req.Source)
	assert.Equal(t, models.TreasuryTypeSchedules, req.TreasuryImportType)
	assert.Empty(t, req.EmployeeCategory)
}

func TestImportExcelSkipsBadRows(t *testing.T) {
	fx := newFixture(t, Config{})
	file := buildWorkbook(t, [][]interface{}{
		registerHeaders,
		{"Аренда", "100,00", "ООО Ромашка", "З-001", "не дата", "", "", ""},
		{"Аренда", "200,00", "ООО Ромашка", "З-002", "09.10.2025 12:00:00", "", "", ""},
	})

	imp, err := fx.service.ImportExcel(employee(), time.Now(), "", "", []FileUpload{file})
	require.NoError(t, err)

	assert.Equal(t, models.ImportStatusCompleted, imp.Status)
	assert.Equal(t, 1, imp.ImportedCount)
	assert.Equal(t, 1, imp.SkippedCount)
	assert.Contains(t, imp.ErrorMessage, "row 2")
	require.Len(t, fx.requests.created, 1)
	assert.Equal(t, "З-002", fx.requests.created[0].RequestNumber)
}

func TestImportExcelErrorRowNumbersCountBlankRows(t *testing.T) {
	fx := newFixture(t, Config{})
	file := buildWorkbook(t, [][]interface{}{
		registerHeaders,
		{"", "", "", "", "", "", "", ""},
		{"Аренда", "100,00", "ООО Ромашка", "З-001", "не дата", "", "", ""},
	})

	imp, err := fx.service.ImportExcel(employee(), time.Now(), "", "", []FileUpload{file})
	require.NoError(t, err)

	// Sheet row 3, not data row 2: the summary must point at the cell the
	// user sees in the spreadsheet.
	assert.Contains(t, imp.ErrorMessage, "row 3")
}

func TestImportExcelCapsErrorSummary(t *testing.T) {
	rows := [][]interface{}{registerHeaders}
	for i := 0; i < 8; i++ {
		rows = append(rows, []interface{}{
			"Аренда", "100,00", "ООО Ромашка", fmt.Sprintf("З-%03d", i), "не дата", "", "", "",
		})
	}
	fx := newFixture(t, Config{})

	imp, err := fx.service.ImportExcel(employee(), time.Now(), "", "", []FileUpload{buildWorkbook(t, rows)})
	require.NoError(t, err)

	assert.Equal(t, 8, imp.SkippedCount)
	assert.Len(t, strings.Split(imp.ErrorMessage, "; "), maxErrorSummary)
}

func TestImportExcelRejectsTooManyFiles(t *testing.T) {
	fx := newFixture(t, Config{MaxFilesPerBatch: 2})
	file := buildWorkbook(t, [][]interface{}{registerHeaders})

	_, err := fx.service.ImportExcel(employee(), time.Now(), "", "", []FileUpload{file, file, file})
	require.Error(t, err)
	assert.True(t, excelimport.IsValidationError(err))
	assert.Empty(t, fx.imports.imports)
}

func TestImportExcelRejectsEmptyUpload(t *testing.T) {
	fx := newFixture(t, Config{})

	_, err := fx.service.ImportExcel(employee(), time.Now(), "", "", nil)
	require.Error(t, err)
	assert.True(t, excelimport.IsValidationError(err))
}

func TestImportExcelSkipsOversizedFile(t *testing.T) {
	fx := newFixture(t, Config{})
	ok := buildWorkbook(t, [][]interface{}{
		registerHeaders,
		{"Аренда", "100,00", "ООО Ромашка", "З-001", "09.10.2025 12:00:00", "", "", ""},
	})
	huge := FileUpload{Name: "huge.xlsx", Size: excelimport.MaxFileSize + 1}

	imp, err := fx.service.ImportExcel(employee(), time.Now(), "", "", []FileUpload{huge, ok})
	require.NoError(t, err)

	assert.Equal(t, models.ImportStatusCompleted, imp.Status)
	assert.Equal(t, 1, imp.ImportedCount)
	assert.Equal(t, 1, imp.SkippedCount)
	assert.Contains(t, imp.ErrorMessage, "huge.xlsx")
}

func TestImportExcelRowLimitFailsWholeImport(t *testing.T) {
	fx := newFixture(t, Config{MaxRows: 2})
	file := buildWorkbook(t, [][]interface{}{
		registerHeaders,
		{"Аренда", "100,00", "ООО Ромашка", "З-001", "09.10.2025 12:00:00", "", "", ""},
		{"Аренда", "100,00", "ООО Ромашка", "З-002", "09.10.2025 12:00:00", "", "", ""},
		{"Аренда", "100,00", "ООО Ромашка", "З-003", "09.10.2025 12:00:00", "", "", ""},
	})

	imp, err := fx.service.ImportExcel(employee(), time.Now(), "", "", []FileUpload{file})
	require.Error(t, err)

	assert.Equal(t, models.ImportStatusFailed, imp.Status)
	assert.Contains(t, fx.imports.markFailed, imp.ID)
	// The violation rolls back every row of the batch, not just the overflow.
	assert.Empty(t, fx.requests.created)
	assert.Empty(t, fx.notifier.calls)
}

func TestImportExcelEmptyFileSkippedNotFatal(t *testing.T) {
	fx := newFixture(t, Config{})
	blank := buildWorkbook(t, [][]interface{}{
		registerHeaders,
		{"", "", "", "", "", "", "", ""},
	})
	good := buildWorkbook(t, [][]interface{}{
		registerHeaders,
		{"Аренда", "100,00", "ООО Ромашка", "З-001", "09.10.2025 12:00:00", "", "", ""},
	})

	imp, err := fx.service.ImportExcel(employee(), time.Now(), "", "", []FileUpload{good, blank})
	require.NoError(t, err)

	// The blank file is counted as skipped; the other file's rows commit.
	assert.Equal(t, models.ImportStatusCompleted, imp.Status)
	assert.Equal(t, 1, imp.ImportedCount)
	assert.Equal(t, 1, imp.SkippedCount)
	assert.Contains(t, imp.ErrorMessage, "contains no data")
	require.Len(t, fx.requests.created, 1)
	assert.NotContains(t, fx.imports.markFailed, imp.ID)
	assert.Len(t, fx.notifier.calls, 1)
}

func TestNotifyImportRerunsFanOut(t *testing.T) {
	fx := newFixture(t, Config{})
	file := buildWorkbook(t, [][]interface{}{
		registerHeaders,
		{"Аренда", "100,00", "ООО Ромашка", "З-001", "09.10.2025 12:00:00", "", "", ""},
	})

	imp, err := fx.service.ImportExcel(employee(), time.Now(), "", "", []FileUpload{file})
	require.NoError(t, err)
	require.Len(t, fx.notifier.calls, 1)

	require.NoError(t, fx.service.NotifyImport(imp.ID))
	require.Len(t, fx.notifier.calls, 2)
	assert.Len(t, fx.notifier.calls[1].requests, 1)
}

func TestNotifyImportUnknownIDIsNoop(t *testing.T) {
	fx := newFixture(t, Config{})

	require.NoError(t, fx.service.NotifyImport("missing"))
	assert.Empty(t, fx.notifier.calls)
}
