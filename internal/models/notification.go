package models

import "time"

// Notification types surfaced in the header badge.
const (
	NotificationTypeNewRequests    = "new_requests_for_approval"
	NotificationTypeBatchApproval  = "batch_requests_for_approval"
	NotificationTypeBatchApproved  = "batch_requests_approved"
	NotificationTypeBatchRejected  = "batch_requests_rejected"
	NotificationTypeBatchProcessed = "batch_requests_processed"
	NotificationTypeTreasury       = "treasury_notification"
)

// BatchNotification summarizes a group of requests for one approver. One row
// is written per approver per batch event, never one per request. Immutable
// after creation apart from the read flag.
type BatchNotification struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	RequestCount int       `json:"request_count"`
	Categories   []string  `json:"categories"`
	TotalAmount  float64   `json:"total_amount"`
	ImportID     string    `json:"import_id,omitempty"`
	IsRead       bool      `json:"is_read"`
	CreatedAt    time.Time `json:"created_at"`
}
