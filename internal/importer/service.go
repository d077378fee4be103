package importer

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/categorization"
	"github.com/finflow/expense-approval/internal/excelimport"
	"github.com/finflow/expense-approval/internal/models"
)

// maxErrorSummary caps how many row errors are kept on the Import record.
const maxErrorSummary = 5

// FileUpload is one uploaded spreadsheet.
type FileUpload struct {
	Name    string
	Size    int64
	Content []byte
}

// ImportStore persists import records.
type ImportStore interface {
	Create(imp *models.Import) error
	UpdateOutcome(id, status string, importedCount, skippedCount int, errorMessage string) error
	MarkFailed(id string, errorMessage string) error
	GetByID(id string) (*models.Import, error)
}

// RequestStore persists requests produced by the import.
type RequestStore interface {
	Create(tx *sql.Tx, request *models.Request) error
	ListByImportID(importID string) ([]*models.Request, error)
}

// TxRunner executes a function inside one datastore transaction.
type TxRunner interface {
	WithTransaction(fn func(*sql.Tx) error) error
}

// UserStore resolves the import initiator for delayed notification runs.
type UserStore interface {
	GetByID(id string) (*models.User, error)
}

// RetryQueue re-queues the notification fan-out for an import whose first
// attempt failed. Enqueue reports whether the job was accepted.
type RetryQueue interface {
	Enqueue(importID string) bool
}

// BatchNotifier fans out import-completion notifications to approvers.
type BatchNotifier interface {
	NotifyImportCompleted(imp *models.Import, requests []*models.Request, initiator *models.User)
}

// Config bounds one import run.
type Config struct {
	MaxFileSize      int64
	MaxRows          int
	MaxFilesPerBatch int
}

// Service runs the Excel import pipeline: validate the upload, stream rows
// out of each workbook, build and classify a request per row, and fan out a
// batched notification once the import lands.
//
// Row-level failures never abort the batch; they increment the skip counter
// and feed the capped error summary. Workbook parse failures and row-count
// violations abort the whole import, which is marked failed with no partial
// request rows committed.
type Service struct {
	imports    ImportStore
	requests   RequestStore
	users      UserStore
	tx         TxRunner
	parser     *excelimport.Parser
	matcher    *categorization.Matcher
	dispatcher BatchNotifier
	retry      RetryQueue
	cfg        Config
	logger     *zap.Logger
}

// NewService creates an import service.
func NewService(
	imports ImportStore,
	requests RequestStore,
	users UserStore,
	tx TxRunner,
	parser *excelimport.Parser,
	keywords categorization.KeywordSource,
	dispatcher BatchNotifier,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = excelimport.MaxFileSize
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = excelimport.DefaultMaxRows
	}
	if cfg.MaxFilesPerBatch <= 0 {
		cfg.MaxFilesPerBatch = 10
	}
	return &Service{
		imports:    imports,
		requests:   requests,
		users:      users,
		tx:         tx,
		parser:     parser,
		matcher:    categorization.NewMatcher(keywords),
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// ImportExcel ingests one upload batch on behalf of user. importType is the
// treasury bucket for treasury-side special imports, empty for employee
// uploads. The returned Import record carries the outcome: terminal status,
// counts and the truncated error summary.
func (s *Service) ImportExcel(
	user *models.User,
	paymentDate time.Time,
	importType string,
	comment string,
	files []FileUpload,
) (*models.Import, error) {
	if len(files) == 0 {
		return nil, &excelimport.ValidationError{Reason: "no files uploaded"}
	}
	if len(files) > s.cfg.MaxFilesPerBatch {
		return nil, &excelimport.ValidationError{
			Reason: fmt.Sprintf("at most %d files per upload", s.cfg.MaxFilesPerBatch),
		}
	}

	imp := &models.Import{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		FileName:    joinFileNames(files),
		FileSize:    totalSize(files),
		PaymentDate: paymentDate,
		ImportType:  importType,
		Comment:     comment,
		Status:      models.ImportStatusProcessing,
	}
	if err := s.imports.Create(imp); err != nil {
		return nil, fmt.Errorf("create import record: %w", err)
	}

	s.logger.Info("Import started",
		zap.String("import_id", imp.ID),
		zap.String("user_id", user.ID),
		zap.Int("files", len(files)))

	var imported, skipped int
	var rowErrors []string

	err := s.tx.WithTransaction(func(tx *sql.Tx) error {
		for _, file := range files {
			if file.Size > s.cfg.MaxFileSize {
				rowErrors = appendError(rowErrors, fmt.Sprintf("file %s exceeds the 5 MB limit", file.Name))
				skipped++
				continue
			}

			if err := s.importFile(tx, imp, user, file, &imported, &skipped, &rowErrors); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Import failed",
			zap.String("import_id", imp.ID),
			zap.Error(err))
		if markErr := s.imports.MarkFailed(imp.ID, err.Error()); markErr != nil {
			s.logger.Error("Failed to mark import failed",
				zap.String("import_id", imp.ID),
				zap.Error(markErr))
		}
		imp.Status = models.ImportStatusFailed
		imp.ErrorMessage = err.Error()
		return imp, err
	}

	imp.Status = models.ImportStatusCompleted
	imp.ImportedCount = imported
	imp.SkippedCount = skipped
	imp.ErrorMessage = strings.Join(rowErrors, "; ")

	if err := s.imports.UpdateOutcome(imp.ID, imp.Status, imported, skipped, imp.ErrorMessage); err != nil {
		return imp, fmt.Errorf("record import outcome: %w", err)
	}

	s.logger.Info("Import completed",
		zap.String("import_id", imp.ID),
		zap.Int("imported", imported),
		zap.Int("skipped", skipped))

	s.notifyDeputies(imp, user)

	return imp, nil
}

// importFile streams one workbook's rows into requests. A returned error is
// fatal for the whole import.
func (s *Service) importFile(
	tx *sql.Tx,
	imp *models.Import,
	user *models.User,
	file FileUpload,
	imported, skipped *int,
	rowErrors *[]string,
) error {
	reader, err := s.parser.Parse(file.Content, s.cfg.MaxRows)
	if err != nil {
		return fmt.Errorf("file %s: %w", file.Name, err)
	}
	defer reader.Close()

	dataRows := 0
	for reader.Next() {
		dataRows++
		request, err := s.buildRequest(imp, user, reader.Row())
		if err != nil {
			*rowErrors = appendError(*rowErrors, fmt.Sprintf("file %s row %d: %v", file.Name, reader.Position(), err))
			*skipped++
			continue
		}

		if err := s.requests.Create(tx, request); err != nil {
			return fmt.Errorf("file %s: %w", file.Name, err)
		}
		*imported++
	}
	if err := reader.Err(); err != nil {
		return fmt.Errorf("file %s: %w", file.Name, err)
	}
	if dataRows == 0 {
		*rowErrors = appendError(*rowErrors, fmt.Sprintf("file %s contains no data", file.Name))
		*skipped++
	}

	return nil
}

// buildRequest turns a normalized row into a classified draft request.
func (s *Service) buildRequest(imp *models.Import, user *models.User, row excelimport.Row) (*models.Request, error) {
	requestDate, err := s.parser.ParseRequestDate(row.RequestDate)
	if err != nil {
		return nil, err
	}

	source := models.SourceEmployee
	treasuryType := ""
	if user.Role == models.RoleTreasury {
		source = models.SourceTreasury
		treasuryType = imp.ImportType
	}

	applicant := row.Applicant
	if applicant == "" {
		applicant = user.FullName
	}

	priority := 0
	if row.Priority != "" {
		if p, err := strconv.Atoi(row.Priority); err == nil {
			priority = p
		}
	}

	paymentDate := imp.PaymentDate
	request := &models.Request{
		ID:                 uuid.NewString(),
		Article:            row.Article,
		Amount:             row.Amount,
		Recipient:          row.Recipient,
		RequestNumber:      row.RequestNumber,
		RequestDate:        requestDate,
		Status:             models.RequestStatusDraft,
		Organization:       row.Organization,
		Department:         row.Department,
		Priority:           priority,
		Purpose:            row.Purpose,
		PaymentDate:        &paymentDate,
		Applicant:          applicant,
		Category:           models.CategorySubdivisions,
		ImportType:         models.TreasuryTypeRegular,
		TreasuryImportType: treasuryType,
		Source:             source,
		CreatedBy:          user.ID,
		ImportID:           imp.ID,
	}

	decision, err := categorization.Decide(request, s.matcher)
	if err != nil {
		return nil, err
	}
	decision.Apply(request)

	return request, nil
}

// SetRetryQueue attaches the background queue used to re-run a failed
// notification fan-out. Without one, fan-out failures are logged and lost.
func (s *Service) SetRetryQueue(retry RetryQueue) {
	s.retry = retry
}

// notifyDeputies runs the post-import fan-out. Failures are logged inside
// the dispatcher and never propagate to the import result.
func (s *Service) notifyDeputies(imp *models.Import, initiator *models.User) {
	requests, err := s.requests.ListByImportID(imp.ID)
	if err != nil {
		s.logger.Error("Failed to load imported requests for notification",
			zap.String("import_id", imp.ID),
			zap.Error(err))
		if s.retry != nil {
			s.retry.Enqueue(imp.ID)
		}
		return
	}
	s.dispatcher.NotifyImportCompleted(imp, requests, initiator)
}

// NotifyImport re-runs the deputy fan-out for a stored import. Used by the
// retry worker when the inline fan-out after ImportExcel could not run.
func (s *Service) NotifyImport(importID string) error {
	imp, err := s.imports.GetByID(importID)
	if err != nil {
		return fmt.Errorf("load import %s: %w", importID, err)
	}
	if imp == nil {
		return nil
	}

	initiator, err := s.users.GetByID(imp.UserID)
	if err != nil {
		return fmt.Errorf("load import initiator: %w", err)
	}

	requests, err := s.requests.ListByImportID(importID)
	if err != nil {
		return fmt.Errorf("load imported requests: %w", err)
	}
	if len(requests) == 0 {
		return nil
	}

	s.dispatcher.NotifyImportCompleted(imp, requests, initiator)
	return nil
}

func appendError(errors []string, msg string) []string {
	if len(errors) >= maxErrorSummary {
		return errors
	}
	return append(errors, msg)
}

func joinFileNames(files []FileUpload) string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return strings.Join(names, ", ")
}

func totalSize(files []FileUpload) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}
