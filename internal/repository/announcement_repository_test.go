package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/campus-api/internal/models"
)

func TestAudienceForRole(t *testing.T) {
	assert.ElementsMatch(t, []string{"ALL", "TEACHERS"}, audienceForRole(models.RoleTeacher))
	assert.ElementsMatch(t, []string{"ALL", "STUDENTS", "CLASS"}, audienceForRole(models.RoleStudent))
	// Admin roles have no audience restriction.
	assert.Nil(t, audienceForRole(models.RoleAdmin))
	assert.Nil(t, audienceForRole(models.RoleSuperAdmin))
}

func TestAnnouncementRepositoryListForStudent(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewAnnouncementRepository(sqlx.NewDb(db, "sqlmock"))

	rows := sqlmock.NewRows([]string{"id", "title", "content", "audience", "target_class_id", "priority", "is_pinned", "published_at", "expires_at", "created_by", "created_at", "updated_at"}).
		AddRow("a1", "Exam Schedule", "Finals start Monday.", "ALL", nil, "HIGH", true, time.Now(), nil, "u1", time.Now(), time.Now())
	mock.ExpectQuery("SELECT a.id, a.title, a.content, a.audience").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	announcements, total, err := repo.List(context.Background(), models.AnnouncementFilter{
		AudienceRoles: []models.UserRole{models.RoleStudent},
		ClassIDs:      []string{"c1"},
	})
	require.NoError(t, err)
	assert.Len(t, announcements, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
