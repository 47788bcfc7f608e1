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

type mockClassRepo struct {
	classes    map[string]*models.ClassDetail
	names      map[string]bool
	enrollment map[string]int
	deleted    []string
}

func newMockClassRepo() *mockClassRepo {
	return &mockClassRepo{
		classes:    make(map[string]*models.ClassDetail),
		names:      make(map[string]bool),
		enrollment: make(map[string]int),
	}
}

func (m *mockClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	return nil, 0, nil
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	if class, ok := m.classes[id]; ok {
		cp := *class
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) ExistsByName(ctx context.Context, name string) (bool, error) {
	return m.names[name], nil
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = "generated"
	}
	m.classes[class.ID] = &models.ClassDetail{Class: *class}
	m.names[class.Name] = true
	return nil
}

func (m *mockClassRepo) Update(ctx context.Context, class *models.Class) error {
	m.classes[class.ID] = &models.ClassDetail{Class: *class}
	return nil
}

func (m *mockClassRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.classes, id)
	return nil
}

func (m *mockClassRepo) CountStudents(ctx context.Context, classID string) (int, error) {
	return m.enrollment[classID], nil
}

func TestClassServiceCreate(t *testing.T) {
	repo := newMockClassRepo()
	svc := NewClassService(repo, validator.New(), zap.NewNop())

	class, err := svc.Create(context.Background(), CreateClassRequest{Name: "10-A", Grade: "10", Section: "A"})
	require.NoError(t, err)
	assert.Equal(t, "10-A", class.Name)
	assert.Len(t, repo.classes, 1)
}

func TestClassServiceCreateDuplicateName(t *testing.T) {
	repo := newMockClassRepo()
	repo.names["10-A"] = true
	svc := NewClassService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateClassRequest{Name: "10-A", Grade: "10"})
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", appErrorCode(err))
}

func TestClassServiceDeleteEnrollmentGuard(t *testing.T) {
	repo := newMockClassRepo()
	repo.classes["c1"] = &models.ClassDetail{Class: models.Class{ID: "c1", Name: "10-A"}}
	repo.enrollment["c1"] = 24
	svc := NewClassService(repo, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "24 student(s)")
	assert.Empty(t, repo.deleted)
}

func TestClassServiceDeleteEmptyClass(t *testing.T) {
	repo := newMockClassRepo()
	repo.classes["c1"] = &models.ClassDetail{Class: models.Class{ID: "c1", Name: "10-A"}}
	svc := NewClassService(repo, validator.New(), zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), "c1"))
	assert.Equal(t, []string{"c1"}, repo.deleted)
}
