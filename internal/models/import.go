package models

import "time"

// Import statuses. An import record is created in processing state and is
// terminal once completed or failed.
const (
	ImportStatusProcessing = "processing"
	ImportStatusCompleted  = "completed"
	ImportStatusFailed     = "failed"
)

// Import tracks one Excel upload: which user ran it, what was uploaded and
// how the row processing went. Its counts and truncated error summary are
// the only feedback channel for import outcomes.
type Import struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	FileName      string    `json:"file_name"`
	FileSize      int64     `json:"file_size"`
	PaymentDate   time.Time `json:"payment_date"`
	ImportType    string    `json:"import_type,omitempty"`
	Comment       string    `json:"comment,omitempty"`
	Status        string    `json:"status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ImportedCount int       `json:"imported_count"`
	SkippedCount  int       `json:"skipped_count"`
	CreatedAt     time.Time `json:"created_at"`
}
