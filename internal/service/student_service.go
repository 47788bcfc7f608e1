package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/campus-api/internal/models"
	appErrors "github.com/campuskit/campus-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsByAdmissionNo(ctx context.Context, admissionNo string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
	CountActiveIssues(ctx context.Context, studentID string) (int, error)
}

// CreateStudentRequest holds payload for registering students.
type CreateStudentRequest struct {
	AdmissionNo  string    `json:"admission_no" validate:"required"`
	FullName     string    `json:"full_name" validate:"required"`
	Gender       string    `json:"gender" validate:"required"`
	BirthDate    time.Time `json:"birth_date" validate:"required"`
	GuardianName string    `json:"guardian_name"`
	Address      string    `json:"address"`
	Phone        string    `json:"phone"`
	ClassID      *string   `json:"class_id"`
}

// UpdateStudentRequest holds payload for updating students.
type UpdateStudentRequest struct {
	AdmissionNo  string    `json:"admission_no" validate:"required"`
	FullName     string    `json:"full_name" validate:"required"`
	Gender       string    `json:"gender" validate:"required"`
	BirthDate    time.Time `json:"birth_date" validate:"required"`
	GuardianName string    `json:"guardian_name"`
	Address      string    `json:"address"`
	Phone        string    `json:"phone"`
	ClassID      *string   `json:"class_id"`
	Active       bool      `json:"active"`
}

// StudentService handles student roster use-cases.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns detailed student information.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	exists, err := s.repo.ExistsByAdmissionNo(ctx, req.AdmissionNo)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate admission number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "admission number already used")
	}
	student := &models.Student{
		AdmissionNo:  req.AdmissionNo,
		FullName:     req.FullName,
		Gender:       req.Gender,
		BirthDate:    req.BirthDate,
		GuardianName: req.GuardianName,
		Address:      req.Address,
		Phone:        req.Phone,
		ClassID:      req.ClassID,
		Active:       true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update modifies an existing student record.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if req.AdmissionNo != detail.AdmissionNo {
		exists, err := s.repo.ExistsByAdmissionNo(ctx, req.AdmissionNo)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate admission number")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "admission number already used")
		}
	}
	student := detail.Student
	student.AdmissionNo = req.AdmissionNo
	student.FullName = req.FullName
	student.Gender = req.Gender
	student.BirthDate = req.BirthDate
	student.GuardianName = req.GuardianName
	student.Address = req.Address
	student.Phone = req.Phone
	student.ClassID = req.ClassID
	student.Active = req.Active
	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return &student, nil
}

// Delete removes a student unless they still hold issued items.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	active, err := s.repo.CountActiveIssues(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count active issues")
	}
	if active > 0 {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot delete student: %d active issue(s) outstanding", active))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}
