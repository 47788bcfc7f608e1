package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/campus-api/internal/models"
)

type mockTeacherRepo struct {
	teachers  map[string]*models.Teacher
	staffNos  map[string]bool
	homerooms map[string]int
	deleted   []string
}

func newMockTeacherRepo() *mockTeacherRepo {
	return &mockTeacherRepo{
		teachers:  make(map[string]*models.Teacher),
		staffNos:  make(map[string]bool),
		homerooms: make(map[string]int),
	}
}

func (m *mockTeacherRepo) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	return nil, 0, nil
}

func (m *mockTeacherRepo) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if teacher, ok := m.teachers[id]; ok {
		cp := *teacher
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherRepo) ExistsByStaffNo(ctx context.Context, staffNo string) (bool, error) {
	return m.staffNos[staffNo], nil
}

func (m *mockTeacherRepo) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = "generated"
	}
	cp := *teacher
	m.teachers[teacher.ID] = &cp
	m.staffNos[teacher.StaffNo] = true
	return nil
}

func (m *mockTeacherRepo) Update(ctx context.Context, teacher *models.Teacher) error {
	cp := *teacher
	m.teachers[teacher.ID] = &cp
	return nil
}

func (m *mockTeacherRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.teachers, id)
	return nil
}

func (m *mockTeacherRepo) CountHomerooms(ctx context.Context, teacherID string) (int, error) {
	return m.homerooms[teacherID], nil
}

func TestTeacherServiceCreate(t *testing.T) {
	repo := newMockTeacherRepo()
	svc := NewTeacherService(repo, validator.New(), zap.NewNop())

	teacher, err := svc.Create(context.Background(), CreateTeacherRequest{
		Email:    "teach@school.test",
		FullName: "Teacher One",
		StaffNo:  "STF-001",
	})
	require.NoError(t, err)
	assert.True(t, teacher.Active)
	assert.Len(t, repo.teachers, 1)
}

func TestTeacherServiceCreateDuplicateStaffNo(t *testing.T) {
	repo := newMockTeacherRepo()
	repo.staffNos["STF-001"] = true
	svc := NewTeacherService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateTeacherRequest{
		Email:    "teach@school.test",
		FullName: "Teacher One",
		StaffNo:  "STF-001",
	})
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", appErrorCode(err))
}

func TestTeacherServiceDeleteHomeroomGuard(t *testing.T) {
	repo := newMockTeacherRepo()
	repo.teachers["t1"] = &models.Teacher{ID: "t1", FullName: "Teacher One"}
	repo.homerooms["t1"] = 2
	svc := NewTeacherService(repo, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 class(es)")
	assert.Empty(t, repo.deleted)
}
