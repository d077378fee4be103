package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/finflow/expense-approval/internal/models"
	"go.uber.org/zap"
)

// KeywordRepository handles category keyword persistence. The keyword table
// is the matcher's only input; it is passed in explicitly rather than read
// from process-wide state so tests can pin a fixed keyword set.
type KeywordRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewKeywordRepository creates a new keyword repository
func NewKeywordRepository(db *sql.DB, logger *zap.Logger) *KeywordRepository {
	return &KeywordRepository{
		db:     db,
		logger: logger,
	}
}

// ListByCategory returns all keywords configured for one category.
func (r *KeywordRepository) ListByCategory(category string) ([]*models.CategoryKeyword, error) {
	query := `
		SELECT id, category, keyword, weight, created_at, updated_at
		FROM category_keywords
		WHERE category = ?
		ORDER BY id
	`

	rows, err := r.db.Query(query, category)
	if err != nil {
		r.logger.Error("Failed to list keywords", zap.String("category", category), zap.Error(err))
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	defer rows.Close()

	var keywords []*models.CategoryKeyword
	for rows.Next() {
		var kw models.CategoryKeyword
		if err := rows.Scan(&kw.ID, &kw.Category, &kw.Keyword, &kw.Weight, &kw.CreatedAt, &kw.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan keyword: %w", err)
		}
		keywords = append(keywords, &kw)
	}

	return keywords, rows.Err()
}

// Create adds a keyword to a category.
func (r *KeywordRepository) Create(kw *models.CategoryKeyword) error {
	now := time.Now()
	if kw.CreatedAt.IsZero() {
		kw.CreatedAt = now
	}
	kw.UpdatedAt = now
	if kw.Weight == 0 {
		kw.Weight = 1
	}

	result, err := r.db.Exec(
		`INSERT INTO category_keywords (category, keyword, weight, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		kw.Category, kw.Keyword, kw.Weight, kw.CreatedAt, kw.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create keyword",
			zap.String("category", kw.Category),
			zap.String("keyword", kw.Keyword),
			zap.Error(err))
		return fmt.Errorf("failed to create keyword: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	kw.ID = id

	return nil
}

// Delete removes a keyword by id.
func (r *KeywordRepository) Delete(id int64) error {
	_, err := r.db.Exec(`DELETE FROM category_keywords WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete keyword", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete keyword: %w", err)
	}
	return nil
}
