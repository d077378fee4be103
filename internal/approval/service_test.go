package approval

import (
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/categorization"
	"github.com/finflow/expense-approval/internal/models"
	"github.com/finflow/expense-approval/internal/repository"
)

type fakeSubmissionNotifier struct {
	submissions []*models.Request
}

func (f *fakeSubmissionNotifier) NotifySubmission(req *models.Request, initiator *models.User) {
	f.submissions = append(f.submissions, req)
}

type fixture struct {
	service  *Service
	requests *repository.RequestRepository
	keywords *repository.KeywordRepository
	notifier *fakeSubmissionNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("../../migrations/001_initial_schema.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	logger := zap.NewNop()
	requests := repository.NewRequestRepository(db, logger)
	keywords := repository.NewKeywordRepository(db, logger)
	notifier := &fakeSubmissionNotifier{}

	categorizer := categorization.NewService(requests, keywords, logger)
	service := NewService(requests, categorizer, notifier, logger)

	return &fixture{service: service, requests: requests, keywords: keywords, notifier: notifier}
}

func employee() *models.User {
	return &models.User{ID: "u1", FullName: "Иванов Иван", Role: models.RoleEmployee, IsActive: true}
}

func deputy() *models.User {
	return &models.User{ID: "d1", FullName: "Сидоров С.С.", Role: models.RoleDeputyDirector, IsActive: true}
}

func treasury() *models.User {
	return &models.User{ID: "t1", FullName: "Казначей", Role: models.RoleTreasury, IsActive: true}
}

func validInput() CreateRequestInput {
	return CreateRequestInput{
		Article:       "Аренда",
		Amount:        1500,
		Recipient:     "ООО Ромашка",
		RequestNumber: "З-001",
		RequestDate:   time.Now(),
		Purpose:       "Оплата аренды",
		Organization:  "АО Альфа",
		Department:    "Отдел снабжения",
	}
}

func TestCreateRequestDefaultsToDraft(t *testing.T) {
	fx := newFixture(t)

	created, err := fx.service.CreateRequest(employee(), validInput())
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusDraft, created.Status)
	assert.Equal(t, models.SourceEmployee, created.Source)
	assert.Equal(t, "Иванов Иван", created.Applicant)
	assert.Equal(t, models.EmployeeCategorySubdivisions, created.EmployeeCategory)

	// Drafts do not notify anyone.
	assert.Empty(t, fx.notifier.submissions)

	stored, err := fx.requests.GetByID(created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.EmployeeCategorySubdivisions, stored.EmployeeCategory)
}

func TestCreateRequestSubmittedNotifies(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.keywords.Create(&models.CategoryKeyword{
		Category: models.EmployeeCategoryLivingExpenses,
		Keyword:  "аренда",
	}))

	input := validInput()
	input.Status = models.RequestStatusPending

	created, err := fx.service.CreateRequest(employee(), input)
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusPending, created.Status)
	assert.Equal(t, models.EmployeeCategoryLivingExpenses, created.EmployeeCategory)
	require.Len(t, fx.notifier.submissions, 1)
	assert.Equal(t, created.ID, fx.notifier.submissions[0].ID)
}

func TestCreateRequestRejectsNonEmployees(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.service.CreateRequest(deputy(), validInput())
	assert.Error(t, err)

	_, err = fx.service.CreateRequest(treasury(), validInput())
	assert.Error(t, err)
}

func TestCreateRequestRejectsNonPositiveAmount(t *testing.T) {
	fx := newFixture(t)

	input := validInput()
	input.Amount = 0
	_, err := fx.service.CreateRequest(employee(), input)
	assert.Error(t, err)
}

func TestBulkUpdateStatusRoleMatrix(t *testing.T) {
	tests := []struct {
		name    string
		user    *models.User
		status  string
		allowed bool
	}{
		{name: "employee submits", user: employee(), status: models.RequestStatusPending, allowed: true},
		{name: "employee cannot approve", user: employee(), status: models.RequestStatusApprovedForPayment, allowed: false},
		{name: "deputy approves", user: deputy(), status: models.RequestStatusApprovedForPayment, allowed: true},
		{name: "deputy rejects", user: deputy(), status: models.RequestStatusRejected, allowed: true},
		{name: "deputy cannot queue payment", user: deputy(), status: models.RequestStatusForPayment, allowed: false},
		{name: "treasury queues payment", user: treasury(), status: models.RequestStatusForPayment, allowed: true},
		{name: "treasury cannot approve", user: treasury(), status: models.RequestStatusApprovedForPayment, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			created, err := fx.service.CreateRequest(employee(), validInput())
			require.NoError(t, err)

			updated, err := fx.service.BulkUpdateStatus(tt.user, []string{created.ID}, tt.status)
			if !tt.allowed {
				assert.Error(t, err)
				assert.Zero(t, updated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, updated)

			stored, err := fx.requests.GetByID(created.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, stored.Status)
		})
	}
}

func TestBulkUpdateStatusOwnershipForEmployees(t *testing.T) {
	fx := newFixture(t)
	created, err := fx.service.CreateRequest(employee(), validInput())
	require.NoError(t, err)

	other := &models.User{ID: "u2", FullName: "Чужой", Role: models.RoleEmployee, IsActive: true}
	_, err = fx.service.BulkUpdateStatus(other, []string{created.ID}, models.RequestStatusPending)
	assert.Error(t, err)
}

func TestBulkUpdateStatusSkipsMissingIDs(t *testing.T) {
	fx := newFixture(t)
	created, err := fx.service.CreateRequest(employee(), validInput())
	require.NoError(t, err)

	updated, err := fx.service.BulkUpdateStatus(employee(), []string{"missing", created.ID}, models.RequestStatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
}

func TestBulkDeleteDraftsOnly(t *testing.T) {
	fx := newFixture(t)

	draft, err := fx.service.CreateRequest(employee(), validInput())
	require.NoError(t, err)

	input := validInput()
	input.Status = models.RequestStatusPending
	input.RequestNumber = "З-002"
	pending, err := fx.service.CreateRequest(employee(), input)
	require.NoError(t, err)

	deleted, err := fx.service.BulkDelete(employee(), []string{draft.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = fx.service.BulkDelete(employee(), []string{pending.ID})
	assert.Error(t, err)

	stored, err := fx.requests.GetByID(pending.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestBulkDeleteRejectsOtherRolesAndOwners(t *testing.T) {
	fx := newFixture(t)
	draft, err := fx.service.CreateRequest(employee(), validInput())
	require.NoError(t, err)

	_, err = fx.service.BulkDelete(deputy(), []string{draft.ID})
	assert.Error(t, err)

	other := &models.User{ID: "u2", Role: models.RoleEmployee, IsActive: true}
	_, err = fx.service.BulkDelete(other, []string{draft.ID})
	assert.Error(t, err)
}

func TestMarkPaid(t *testing.T) {
	fx := newFixture(t)
	created, err := fx.service.CreateRequest(employee(), validInput())
	require.NoError(t, err)

	paidAt := time.Date(2025, 10, 20, 12, 0, 0, 0, time.UTC)

	require.Error(t, fx.service.MarkPaid(employee(), created.ID, paidAt))
	require.Error(t, fx.service.MarkPaid(treasury(), "missing", paidAt))

	require.NoError(t, fx.service.MarkPaid(treasury(), created.ID, paidAt))

	stored, err := fx.requests.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusForPayment, stored.Status)
	require.NotNil(t, stored.PaidAt)
	assert.True(t, paidAt.Equal(*stored.PaidAt))
}

func TestListRequestsScopesEmployeesToOwn(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.service.CreateRequest(employee(), validInput())
	require.NoError(t, err)

	other := &models.User{ID: "u2", FullName: "Другой", Role: models.RoleEmployee, IsActive: true}
	input := validInput()
	input.RequestNumber = "З-002"
	_, err = fx.service.CreateRequest(other, input)
	require.NoError(t, err)

	own, err := fx.service.ListRequests(employee(), repository.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "u1", own[0].CreatedBy)

	all, err := fx.service.ListRequests(deputy(), repository.RequestFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
