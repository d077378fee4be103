package categorization

import (
	"database/sql"
	"fmt"

	"github.com/finflow/expense-approval/internal/models"
	"go.uber.org/zap"
)

// RequestStore is the slice of the request repository the categorization
// service needs: enumerate requests and persist classification decisions.
type RequestStore interface {
	ListAll() ([]*models.Request, error)
	UpdateClassification(tx *sql.Tx, id, employeeCategory, treasuryImportType string) error
}

// Stats summarizes a batch recategorization run. Only actual value
// transitions count; re-assigning the same bucket is not an update.
type Stats struct {
	LivingExpenses int `json:"living_expenses"`
	Subdivisions   int `json:"subdivisions"`
	TotalUpdated   int `json:"total_updated"`
}

// Service applies classification decisions to stored requests. The decision
// itself is pure (see Decide); this adapter is the only place categorization
// touches the datastore.
type Service struct {
	requests RequestStore
	matcher  *Matcher
	logger   *zap.Logger
}

// NewService creates a categorization service.
func NewService(requests RequestStore, keywords KeywordSource, logger *zap.Logger) *Service {
	return &Service{
		requests: requests,
		matcher:  NewMatcher(keywords),
		logger:   logger,
	}
}

// Categorize classifies one request and commits the result. The request's
// in-memory classification fields are updated to match what was stored.
func (s *Service) Categorize(req *models.Request) error {
	decision, err := Decide(req, s.matcher)
	if err != nil {
		return err
	}

	decision.Apply(req)

	if err := s.requests.UpdateClassification(nil, req.ID, req.EmployeeCategory, req.TreasuryImportType); err != nil {
		return fmt.Errorf("persist classification for %s: %w", req.ID, err)
	}

	return nil
}

// RecategorizeAll re-applies classification to every stored request and
// reports how many changed bucket, broken down by target bucket. Running it
// twice with an unchanged keyword table yields TotalUpdated == 0 on the
// second pass.
func (s *Service) RecategorizeAll() (Stats, error) {
	requests, err := s.requests.ListAll()
	if err != nil {
		return Stats{}, fmt.Errorf("list requests: %w", err)
	}

	var stats Stats
	for _, req := range requests {
		oldCategory := req.EmployeeCategory

		if err := s.Categorize(req); err != nil {
			return stats, err
		}

		if req.EmployeeCategory != oldCategory {
			stats.TotalUpdated++
			switch req.EmployeeCategory {
			case models.EmployeeCategoryLivingExpenses:
				stats.LivingExpenses++
			case models.EmployeeCategorySubdivisions:
				stats.Subdivisions++
			}
		}
	}

	s.logger.Info("Recategorization finished",
		zap.Int("total", len(requests)),
		zap.Int("updated", stats.TotalUpdated))

	return stats, nil
}
