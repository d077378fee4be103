package approval

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/categorization"
	"github.com/finflow/expense-approval/internal/models"
	"github.com/finflow/expense-approval/internal/repository"
)

// CreateRequestInput is a direct request submission.
type CreateRequestInput struct {
	Article       string    `json:"article" binding:"required"`
	Amount        float64   `json:"amount" binding:"required,gt=0"`
	Recipient     string    `json:"recipient" binding:"required"`
	RequestNumber string    `json:"request_number" binding:"required"`
	RequestDate   time.Time `json:"request_date" binding:"required"`
	Purpose       string    `json:"purpose" binding:"required"`
	Organization  string    `json:"organization" binding:"required"`
	Department    string    `json:"department" binding:"required"`
	Category      string    `json:"category"`
	Priority      int       `json:"priority"`
	Status        string    `json:"status"`
}

// Service implements the request lifecycle operations around the import
// pipeline: direct submission, bulk status transitions, draft deletion and
// treasury payment marking. Every role-gated path dispatches on the closed
// Role type; an unhandled role is an explicit error, not a silent
// fallthrough.
type Service struct {
	requests    *repository.RequestRepository
	categorizer *categorization.Service
	dispatcher  SubmissionNotifier
	logger      *zap.Logger
}

// SubmissionNotifier triggers the batched single-submission notification.
type SubmissionNotifier interface {
	NotifySubmission(req *models.Request, initiator *models.User)
}

// NewService creates the lifecycle service.
func NewService(
	requests *repository.RequestRepository,
	categorizer *categorization.Service,
	dispatcher SubmissionNotifier,
	logger *zap.Logger,
) *Service {
	return &Service{
		requests:    requests,
		categorizer: categorizer,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// CreateRequest stores a directly submitted request, classifies it and, when
// it is submitted (not a draft), triggers the batched deputy notification.
func (s *Service) CreateRequest(user *models.User, input CreateRequestInput) (*models.Request, error) {
	if user.Role != models.RoleEmployee {
		return nil, fmt.Errorf("only employees may submit requests, got role %s", user.Role)
	}
	if input.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	status := input.Status
	if status == "" {
		status = models.RequestStatusDraft
	}
	category := input.Category
	if category == "" {
		category = models.CategorySubdivisions
	}

	request := &models.Request{
		ID:            uuid.NewString(),
		Article:       input.Article,
		Amount:        input.Amount,
		Recipient:     input.Recipient,
		RequestNumber: input.RequestNumber,
		RequestDate:   input.RequestDate,
		Status:        status,
		Organization:  input.Organization,
		Department:    input.Department,
		Priority:      input.Priority,
		Purpose:       input.Purpose,
		Applicant:     user.FullName,
		Category:      category,
		ImportType:    models.TreasuryTypeRegular,
		Source:        models.SourceEmployee,
		CreatedBy:     user.ID,
	}

	if err := s.requests.Create(nil, request); err != nil {
		return nil, err
	}

	if err := s.categorizer.Categorize(request); err != nil {
		return nil, err
	}

	if request.Status != models.RequestStatusDraft {
		s.dispatcher.NotifySubmission(request, user)
	}

	return request, nil
}

// allowedTransition reports whether the role may move requests into status.
func allowedTransition(role models.Role, status string) error {
	switch role {
	case models.RoleEmployee:
		if status == models.RequestStatusPending {
			return nil
		}
		return fmt.Errorf("employees may only submit requests for approval")
	case models.RoleDeputyDirector:
		if status == models.RequestStatusApprovedForPayment || status == models.RequestStatusRejected {
			return nil
		}
		return fmt.Errorf("deputy directors may only approve or reject requests")
	case models.RoleTreasury:
		if status == models.RequestStatusForPayment {
			return nil
		}
		return fmt.Errorf("treasury may only queue requests for payment")
	default:
		return fmt.Errorf("unhandled role %q", role)
	}
}

// BulkUpdateStatus moves a set of requests into a new status. Employees may
// only touch their own requests. Missing ids are skipped; the count of
// updated requests is returned.
func (s *Service) BulkUpdateStatus(user *models.User, ids []string, status string) (int, error) {
	if err := allowedTransition(user.Role, status); err != nil {
		return 0, err
	}

	updated := 0
	for _, id := range ids {
		request, err := s.requests.GetByID(id)
		if err != nil {
			return updated, err
		}
		if request == nil {
			continue
		}
		if user.Role == models.RoleEmployee && request.CreatedBy != user.ID {
			return updated, fmt.Errorf("no permission to update request %s", id)
		}

		if err := s.requests.UpdateStatus(nil, id, status); err != nil {
			return updated, err
		}
		updated++
	}

	s.logger.Info("Bulk status update",
		zap.String("user_id", user.ID),
		zap.String("status", status),
		zap.Int("updated", updated))

	return updated, nil
}

// BulkDelete removes draft requests owned by the caller.
func (s *Service) BulkDelete(user *models.User, ids []string) (int, error) {
	if user.Role != models.RoleEmployee {
		return 0, fmt.Errorf("only employees may delete their requests")
	}

	deleted := 0
	for _, id := range ids {
		request, err := s.requests.GetByID(id)
		if err != nil {
			return deleted, err
		}
		if request == nil {
			continue
		}
		if request.CreatedBy != user.ID {
			return deleted, fmt.Errorf("no permission to delete request %s", id)
		}
		if request.Status != models.RequestStatusDraft {
			return deleted, fmt.Errorf("request %s is %s, only drafts may be deleted", id, request.Status)
		}

		if err := s.requests.Delete(id); err != nil {
			return deleted, err
		}
		deleted++
	}

	return deleted, nil
}

// MarkPaid records a payment. Treasury only.
func (s *Service) MarkPaid(user *models.User, id string, paidAt time.Time) error {
	if user.Role != models.RoleTreasury {
		return fmt.Errorf("only treasury may mark requests paid")
	}

	request, err := s.requests.GetByID(id)
	if err != nil {
		return err
	}
	if request == nil {
		return fmt.Errorf("request %s not found", id)
	}

	return s.requests.MarkPaid(id, paidAt)
}

// ListRequests applies role-based visibility: employees see only their own.
func (s *Service) ListRequests(user *models.User, filter repository.RequestFilter) ([]*models.Request, error) {
	if user.Role == models.RoleEmployee {
		filter.CreatedBy = user.ID
	}
	return s.requests.List(filter)
}
