package categorization

import (
	"fmt"

	"github.com/finflow/expense-approval/internal/models"
)

// Decision is the outcome of classifying one request. Exactly one of the
// two fields is meaningful, selected by the request's source.
type Decision struct {
	EmployeeCategory   string
	TreasuryImportType string
}

// Changes reports whether applying the decision would alter the request's
// stored classification.
func (d Decision) Changes(req *models.Request) bool {
	return req.EmployeeCategory != d.EmployeeCategory ||
		req.TreasuryImportType != d.TreasuryImportType
}

// Apply copies the decision onto the request's classification fields.
func (d Decision) Apply(req *models.Request) {
	req.EmployeeCategory = d.EmployeeCategory
	req.TreasuryImportType = d.TreasuryImportType
}

// Decide computes the classification for a request without touching the
// datastore.
//
// Employee requests are matched against the living_expenses keyword
// category; a hit classifies them as living_expenses, a miss (or an empty
// keyword table) falls back to subdivisions. Treasury requests keep the
// import type supplied at import time, defaulting to non_transferable when
// it was never set.
//
// The decision is re-evaluated on every call rather than cached, so a
// changed keyword table can legitimately flip an employee category.
func Decide(req *models.Request, matcher *Matcher) (Decision, error) {
	switch req.Source {
	case models.SourceEmployee:
		configured, err := matcher.HasKeywords(models.EmployeeCategoryLivingExpenses)
		if err != nil {
			return Decision{}, err
		}
		if !configured {
			return Decision{EmployeeCategory: models.EmployeeCategorySubdivisions}, nil
		}

		matched, err := matcher.Matches(req.ClassificationText(), models.EmployeeCategoryLivingExpenses)
		if err != nil {
			return Decision{}, err
		}
		category := models.EmployeeCategorySubdivisions
		if matched {
			category = models.EmployeeCategoryLivingExpenses
		}
		return Decision{EmployeeCategory: category}, nil

	case models.SourceTreasury:
		importType := req.TreasuryImportType
		if importType == "" {
			importType = models.TreasuryTypeNonTransferable
		}
		return Decision{TreasuryImportType: importType}, nil

	default:
		return Decision{}, fmt.Errorf("cannot categorize request %s: unknown source %q", req.ID, req.Source)
	}
}
