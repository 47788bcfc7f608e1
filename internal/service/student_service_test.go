package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/campus-api/internal/models"
)

type mockStudentRepo struct {
	students       map[string]*models.StudentDetail
	admissionIndex map[string]bool
	activeIssues   map[string]int
	deleted        []string
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{
		students:       make(map[string]*models.StudentDetail),
		admissionIndex: make(map[string]bool),
		activeIssues:   make(map[string]int),
	}
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if student, ok := m.students[id]; ok {
		cp := *student
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByAdmissionNo(ctx context.Context, admissionNo string) (bool, error) {
	return m.admissionIndex[admissionNo], nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = "generated"
	}
	m.students[student.ID] = &models.StudentDetail{Student: *student}
	m.admissionIndex[student.AdmissionNo] = true
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = &models.StudentDetail{Student: *student}
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.students, id)
	return nil
}

func (m *mockStudentRepo) CountActiveIssues(ctx context.Context, studentID string) (int, error) {
	return m.activeIssues[studentID], nil
}

func TestStudentServiceCreate(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, validator.New(), zap.NewNop())

	student, err := svc.Create(context.Background(), CreateStudentRequest{
		AdmissionNo: "ADM-001",
		FullName:    "Amina Yusuf",
		Gender:      "F",
		BirthDate:   time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, student.Active)
	assert.Len(t, repo.students, 1)
}

func TestStudentServiceCreateDuplicateAdmissionNo(t *testing.T) {
	repo := newMockStudentRepo()
	repo.admissionIndex["ADM-001"] = true
	svc := NewStudentService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateStudentRequest{
		AdmissionNo: "ADM-001",
		FullName:    "Amina Yusuf",
		Gender:      "F",
		BirthDate:   time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", appErrorCode(err))
}

func TestStudentServiceDeleteWithActiveIssues(t *testing.T) {
	repo := newMockStudentRepo()
	repo.students["s1"] = &models.StudentDetail{Student: models.Student{ID: "s1", FullName: "Amina Yusuf"}}
	repo.activeIssues["s1"] = 3
	svc := NewStudentService(repo, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 active issue(s)")
	assert.Empty(t, repo.deleted)
}

func TestStudentServiceDeleteClean(t *testing.T) {
	repo := newMockStudentRepo()
	repo.students["s1"] = &models.StudentDetail{Student: models.Student{ID: "s1", FullName: "Amina Yusuf"}}
	svc := NewStudentService(repo, validator.New(), zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), "s1"))
	assert.Equal(t, []string{"s1"}, repo.deleted)
}

func TestStudentServiceUpdateKeepsAdmissionNo(t *testing.T) {
	repo := newMockStudentRepo()
	repo.students["s1"] = &models.StudentDetail{Student: models.Student{ID: "s1", AdmissionNo: "ADM-001", FullName: "Amina Yusuf"}}
	repo.admissionIndex["ADM-001"] = true
	svc := NewStudentService(repo, validator.New(), zap.NewNop())

	// Unchanged admission number does not trip the uniqueness check.
	student, err := svc.Update(context.Background(), "s1", UpdateStudentRequest{
		AdmissionNo: "ADM-001",
		FullName:    "Amina Y. Yusuf",
		Gender:      "F",
		BirthDate:   time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC),
		Active:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Amina Y. Yusuf", student.FullName)
}
