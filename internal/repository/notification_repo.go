package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finflow/expense-approval/internal/models"
	"go.uber.org/zap"
)

// NotificationRepository handles batch notification persistence
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a batch notification row. Categories are stored as a JSON
// array in a single column.
func (r *NotificationRepository) Create(n *models.BatchNotification) error {
	categories, err := json.Marshal(n.Categories)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO user_notifications (
			id, user_id, notification_type, title, message,
			request_count, categories, total_amount, import_id, is_read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		n.ID,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		n.RequestCount,
		string(categories),
		n.TotalAmount,
		nullString(n.ImportID),
		n.IsRead,
		n.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.String("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// ListByUser returns a user's notifications, newest first.
func (r *NotificationRepository) ListByUser(userID string, limit, offset int) ([]*models.BatchNotification, error) {
	query := `
		SELECT id, user_id, notification_type, title, message,
			request_count, categories, total_amount, import_id, is_read, created_at
		FROM user_notifications
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Query(query, userID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.BatchNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// CountUnread returns the unread notification count for the header badge.
func (r *NotificationRepository) CountUnread(userID string) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM user_notifications WHERE user_id = ? AND is_read = 0`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flags one notification as read.
func (r *NotificationRepository) MarkRead(id, userID string) error {
	_, err := r.db.Exec(
		`UPDATE user_notifications SET is_read = 1 WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		r.logger.Error("Failed to mark notification read", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

func scanNotification(row rowScanner) (*models.BatchNotification, error) {
	var n models.BatchNotification
	var categories string
	var importID sql.NullString

	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.RequestCount,
		&categories,
		&n.TotalAmount,
		&importID,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(categories), &n.Categories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
	}
	n.ImportID = importID.String

	return &n, nil
}
