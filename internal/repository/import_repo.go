package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/finflow/expense-approval/internal/models"
	"go.uber.org/zap"
)

// ImportRepository handles import record persistence
type ImportRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewImportRepository creates a new import repository
func NewImportRepository(db *sql.DB, logger *zap.Logger) *ImportRepository {
	return &ImportRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a fresh import record, normally in processing state.
func (r *ImportRepository) Create(imp *models.Import) error {
	query := `
		INSERT INTO imports (
			id, user_id, file_name, file_size, payment_date, import_type, comment,
			status, error_message, imported_count, skipped_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if imp.CreatedAt.IsZero() {
		imp.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(query,
		imp.ID,
		imp.UserID,
		imp.FileName,
		imp.FileSize,
		imp.PaymentDate,
		nullString(imp.ImportType),
		nullString(imp.Comment),
		imp.Status,
		nullString(imp.ErrorMessage),
		imp.ImportedCount,
		imp.SkippedCount,
		imp.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create import record",
			zap.String("file_name", imp.FileName),
			zap.Error(err))
		return fmt.Errorf("failed to create import: %w", err)
	}

	return nil
}

// GetByID retrieves an import record. Returns nil when not found.
func (r *ImportRepository) GetByID(id string) (*models.Import, error) {
	query := `
		SELECT id, user_id, file_name, file_size, payment_date, import_type, comment,
			status, error_message, imported_count, skipped_count, created_at
		FROM imports WHERE id = ?
	`

	imp, err := scanImport(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get import", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get import: %w", err)
	}

	return imp, nil
}

// ListByUser returns a user's import history, newest first.
func (r *ImportRepository) ListByUser(userID string, limit, offset int) ([]*models.Import, error) {
	query := `
		SELECT id, user_id, file_name, file_size, payment_date, import_type, comment,
			status, error_message, imported_count, skipped_count, created_at
		FROM imports
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Query(query, userID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list imports", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	var imports []*models.Import
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		imports = append(imports, imp)
	}

	return imports, rows.Err()
}

// UpdateOutcome records how the import finished: terminal status, row counts
// and the truncated error summary.
func (r *ImportRepository) UpdateOutcome(id, status string, importedCount, skippedCount int, errorMessage string) error {
	query := `
		UPDATE imports
		SET status = ?, imported_count = ?, skipped_count = ?, error_message = ?
		WHERE id = ?
	`

	_, err := r.db.Exec(query, status, importedCount, skippedCount, nullString(errorMessage), id)
	if err != nil {
		r.logger.Error("Failed to update import outcome",
			zap.String("id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update import outcome: %w", err)
	}

	return nil
}

// MarkFailed flags the import as failed with the fatal error text. The row
// counts are left untouched: a late failure (retry exhaustion) happens after
// the import's rows already committed, and their counts stay meaningful.
func (r *ImportRepository) MarkFailed(id string, errorMessage string) error {
	_, err := r.db.Exec(
		`UPDATE imports SET status = ?, error_message = ? WHERE id = ?`,
		models.ImportStatusFailed, nullString(errorMessage), id,
	)
	if err != nil {
		r.logger.Error("Failed to mark import failed",
			zap.String("id", id),
			zap.Error(err))
		return fmt.Errorf("failed to mark import failed: %w", err)
	}
	return nil
}

// DeleteOlderThan removes terminal import records past the retention cutoff.
func (r *ImportRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(
		`DELETE FROM imports WHERE created_at < ? AND status IN (?, ?)`,
		cutoff, models.ImportStatusCompleted, models.ImportStatusFailed,
	)
	if err != nil {
		r.logger.Error("Failed to delete old imports", zap.Error(err))
		return 0, fmt.Errorf("failed to delete old imports: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

func scanImport(row rowScanner) (*models.Import, error) {
	var imp models.Import
	var importType, comment, errorMessage sql.NullString

	err := row.Scan(
		&imp.ID,
		&imp.UserID,
		&imp.FileName,
		&imp.FileSize,
		&imp.PaymentDate,
		&importType,
		&comment,
		&imp.Status,
		&errorMessage,
		&imp.ImportedCount,
		&imp.SkippedCount,
		&imp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	imp.ImportType = importType.String
	imp.Comment = comment.String
	imp.ErrorMessage = errorMessage.String

	return &imp, nil
}
