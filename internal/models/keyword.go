package models

import "time"

// CategoryKeyword maps a keyword to a classification category. Matching is
// existence-only substring containment; Weight is reserved for a future
// scoring extension and is ignored by the current matcher.
type CategoryKeyword struct {
	ID        int64     `json:"id"`
	Category  string    `json:"category"`
	Keyword   string    `json:"keyword"`
	Weight    int       `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
