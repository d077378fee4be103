package models

import (
	"fmt"
	"time"
)

// Request statuses. A request is created as a draft, moves to pending when
// submitted for approval, and ends up approved, queued for payment or
// rejected. Only drafts may be edited or deleted.
const (
	RequestStatusDraft              = "draft"
	RequestStatusPending            = "pending"
	RequestStatusApprovedForPayment = "approved_for_payment"
	RequestStatusForPayment         = "for_payment"
	RequestStatusRejected           = "rejected"
)

// Source identifies where a request originated. The source decides which
// classification field is authoritative: employee requests carry
// EmployeeCategory, treasury imports carry TreasuryImportType.
type Source string

const (
	SourceEmployee Source = "employee"
	SourceTreasury Source = "treasury"
)

// ParseSource converts a raw source string into a Source.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceEmployee, SourceTreasury:
		return Source(s), nil
	default:
		return "", fmt.Errorf("unknown request source: %q", s)
	}
}

// Employee classification buckets assigned by the keyword categorizer.
const (
	EmployeeCategoryLivingExpenses = "living_expenses"
	EmployeeCategorySubdivisions   = "subdivisions"
)

// Treasury import classification buckets, supplied explicitly at import time.
const (
	TreasuryTypeRegular            = "regular"
	TreasuryTypeNonTransferable    = "non_transferable"
	TreasuryTypeSchedules          = "schedules"
	TreasuryTypeApprovedByDirector = "approved_by_director"
)

// CategorySubdivisions is the default workflow category for freshly
// imported requests before keyword classification runs.
const CategorySubdivisions = "subdivisions"

// Request is a single payment request submitted for approval, either entered
// directly by an employee or produced by the Excel import pipeline.
type Request struct {
	ID                 string     `json:"id"`
	Article            string     `json:"article"`
	Amount             float64    `json:"amount"`
	Recipient          string     `json:"recipient"`
	RequestNumber      string     `json:"request_number"`
	RequestDate        time.Time  `json:"request_date"`
	Status             string     `json:"status"`
	Organization       string     `json:"organization"`
	Department         string     `json:"department"`
	Priority           int        `json:"priority,omitempty"`
	Purpose            string     `json:"purpose"`
	PaymentDate        *time.Time `json:"payment_date,omitempty"`
	Applicant          string     `json:"applicant"`
	Category           string     `json:"category"`
	ImportType         string     `json:"import_type"`
	EmployeeCategory   string     `json:"employee_category,omitempty"`
	TreasuryImportType string     `json:"treasury_import_type,omitempty"`
	Source             Source     `json:"source"`
	CreatedBy          string     `json:"created_by"`
	ApprovalProcessID  string     `json:"approval_process_id,omitempty"`
	ImportID           string     `json:"import_id,omitempty"`
	PaidAt             *time.Time `json:"paid_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ClassificationText is the text the keyword matcher inspects.
func (r *Request) ClassificationText() string {
	return r.Article + " " + r.Purpose
}
