package repository

import (
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/models"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("../../migrations/001_initial_schema.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	return db
}

func seedUser(t *testing.T, db *sql.DB, id string, role models.Role) *models.User {
	t.Helper()

	repo := NewUserRepository(db, zap.NewNop())
	user := &models.User{
		ID:       id,
		Username: id,
		FullName: "User " + id,
		Email:    id + "@example.com",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, repo.Create(user))
	return user
}

func seedRequest(t *testing.T, db *sql.DB, id, createdBy string, mutate func(*models.Request)) *models.Request {
	t.Helper()

	request := &models.Request{
		ID:            id,
		Article:       "Аренда",
		Amount:        100,
		Recipient:     "ООО Ромашка",
		RequestNumber: "З-" + id,
		RequestDate:   time.Now().Add(-time.Hour),
		Status:        models.RequestStatusDraft,
		Category:      models.CategorySubdivisions,
		ImportType:    models.TreasuryTypeRegular,
		Source:        models.SourceEmployee,
		CreatedBy:     createdBy,
	}
	if mutate != nil {
		mutate(request)
	}

	repo := NewRequestRepository(db, zap.NewNop())
	require.NoError(t, repo.Create(nil, request))
	return request
}
