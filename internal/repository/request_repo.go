package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/finflow/expense-approval/internal/models"
	"go.uber.org/zap"
)

// RequestFilter narrows down request listings.
type RequestFilter struct {
	Status    string
	Category  string
	CreatedBy string
	Source    models.Source
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// RequestRepository handles request persistence
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

const requestColumns = `
	id, article, amount, recipient, request_number, request_date, status,
	organization, department, priority, purpose, payment_date, applicant,
	category, import_type, employee_category, treasury_import_type, source,
	created_by, approval_process_id, import_id, paid_at, created_at, updated_at`

// Create inserts a new request. When tx is nil the write goes through the
// pooled connection directly.
func (r *RequestRepository) Create(tx *sql.Tx, request *models.Request) error {
	query := `
		INSERT INTO requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now

	args := []interface{}{
		request.ID,
		request.Article,
		request.Amount,
		request.Recipient,
		request.RequestNumber,
		request.RequestDate,
		request.Status,
		request.Organization,
		request.Department,
		request.Priority,
		request.Purpose,
		request.PaymentDate,
		request.Applicant,
		request.Category,
		request.ImportType,
		nullString(request.EmployeeCategory),
		nullString(request.TreasuryImportType),
		string(request.Source),
		request.CreatedBy,
		nullString(request.ApprovalProcessID),
		nullString(request.ImportID),
		request.PaidAt,
		request.CreatedAt,
		request.UpdatedAt,
	}

	var err error
	if tx != nil {
		_, err = tx.Exec(query, args...)
	} else {
		_, err = r.db.Exec(query, args...)
	}

	if err != nil {
		r.logger.Error("Failed to create request",
			zap.String("request_number", request.RequestNumber),
			zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}

	return nil
}

// GetByID retrieves a request by ID. Returns nil when not found.
func (r *RequestRepository) GetByID(id string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = ?`

	request, err := scanRequest(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	return request, nil
}

// List returns requests matching the filter, newest first.
func (r *RequestRepository) List(filter RequestFilter) ([]*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE 1=1`
	var args []interface{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter.CreatedBy != "" {
		query += " AND created_by = ?"
		args = append(args, filter.CreatedBy)
	}
	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, string(filter.Source))
	}
	if filter.StartDate != nil {
		query += " AND created_at >= ?"
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += " AND created_at <= ?"
		args = append(args, *filter.EndDate)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	return r.queryRequests(query, args...)
}

// ListAll returns every request. Used by the batch recategorization pass.
func (r *RequestRepository) ListAll() ([]*models.Request, error) {
	return r.queryRequests(`SELECT ` + requestColumns + ` FROM requests ORDER BY created_at`)
}

// ListByImportID returns all requests produced by one import.
func (r *RequestRepository) ListByImportID(importID string) ([]*models.Request, error) {
	return r.queryRequests(
		`SELECT `+requestColumns+` FROM requests WHERE import_id = ? ORDER BY created_at`,
		importID,
	)
}

// ListRecentPendingByCategory returns pending requests in a category created
// after the cutoff. Feeds the notification batching window.
func (r *RequestRepository) ListRecentPendingByCategory(category string, since time.Time) ([]*models.Request, error) {
	return r.queryRequests(
		`SELECT `+requestColumns+` FROM requests
		 WHERE category = ? AND status = ? AND created_at >= ?
		 ORDER BY created_at`,
		category, models.RequestStatusPending, since,
	)
}

// UpdateClassification persists the categorizer's decision for one request.
func (r *RequestRepository) UpdateClassification(tx *sql.Tx, id, employeeCategory, treasuryImportType string) error {
	query := `
		UPDATE requests
		SET employee_category = ?, treasury_import_type = ?, updated_at = ?
		WHERE id = ?
	`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, nullString(employeeCategory), nullString(treasuryImportType), time.Now(), id)
	} else {
		_, err = r.db.Exec(query, nullString(employeeCategory), nullString(treasuryImportType), time.Now(), id)
	}

	if err != nil {
		r.logger.Error("Failed to update request classification",
			zap.String("id", id),
			zap.Error(err))
		return fmt.Errorf("failed to update classification: %w", err)
	}

	return nil
}

// UpdateStatus moves a request to a new status.
func (r *RequestRepository) UpdateStatus(tx *sql.Tx, id, status string) error {
	query := `UPDATE requests SET status = ?, updated_at = ? WHERE id = ?`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, status, time.Now(), id)
	} else {
		_, err = r.db.Exec(query, status, time.Now(), id)
	}

	if err != nil {
		r.logger.Error("Failed to update request status",
			zap.String("id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update status: %w", err)
	}

	return nil
}

// MarkPaid records the payment date and moves the request to for_payment.
func (r *RequestRepository) MarkPaid(id string, paidAt time.Time) error {
	query := `UPDATE requests SET status = ?, paid_at = ?, updated_at = ? WHERE id = ?`

	_, err := r.db.Exec(query, models.RequestStatusForPayment, paidAt, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to mark request paid", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark request paid: %w", err)
	}

	return nil
}

// Delete removes a request. Callers enforce the drafts-only rule.
func (r *RequestRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM requests WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete request", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete request: %w", err)
	}
	return nil
}

// SumAmountByImportID aggregates the total amount of an import's requests.
func (r *RequestRepository) SumAmountByImportID(importID string) (float64, error) {
	var total sql.NullFloat64
	err := r.db.QueryRow(
		`SELECT SUM(amount) FROM requests WHERE import_id = ?`, importID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum import amounts: %w", err)
	}
	return total.Float64, nil
}

func (r *RequestRepository) queryRequests(query string, args ...interface{}) ([]*models.Request, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to query requests", zap.Error(err))
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.Request
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, request)
	}

	return requests, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var request models.Request
	var source string
	var paymentDate, paidAt sql.NullTime
	var employeeCategory, treasuryImportType, approvalProcessID, importID sql.NullString

	err := row.Scan(
		&request.ID,
		&request.Article,
		&request.Amount,
		&request.Recipient,
		&request.RequestNumber,
		&request.RequestDate,
		&request.Status,
		&request.Organization,
		&request.Department,
		&request.Priority,
		&request.Purpose,
		&paymentDate,
		&request.Applicant,
		&request.Category,
		&request.ImportType,
		&employeeCategory,
		&treasuryImportType,
		&source,
		&request.CreatedBy,
		&approvalProcessID,
		&importID,
		&paidAt,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	request.Source, err = models.ParseSource(source)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", request.ID, err)
	}
	if paymentDate.Valid {
		request.PaymentDate = &paymentDate.Time
	}
	if paidAt.Valid {
		request.PaidAt = &paidAt.Time
	}
	request.EmployeeCategory = employeeCategory.String
	request.TreasuryImportType = treasuryImportType.String
	request.ApprovalProcessID = approvalProcessID.String
	request.ImportID = importID.String

	return &request, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
