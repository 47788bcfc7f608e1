package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/campus-api/internal/models"
)

// StudentRepository handles persistence of student roster rows.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

var studentSorts = map[string]string{
	"full_name":    "s.full_name",
	"admission_no": "s.admission_no",
	"created_at":   "s.created_at",
}

// List returns students matching the filter with class context.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := `FROM students s LEFT JOIN classes c ON c.id = s.class_id`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(s.full_name ILIKE $%d OR s.admission_no ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	sortCol, ok := studentSorts[filter.SortBy]
	if !ok {
		sortCol = "s.full_name"
	}
	order := "ASC"
	if strings.EqualFold(filter.SortOrder, "desc") {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.admission_no, s.full_name, s.gender, s.birth_date, s.guardian_name,
        s.address, s.phone, s.class_id, s.active, s.created_at, s.updated_at, c.name AS class_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, sortCol, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID returns a student with class context.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	const query = `SELECT s.id, s.admission_no, s.full_name, s.gender, s.birth_date, s.guardian_name,
        s.address, s.phone, s.class_id, s.active, s.created_at, s.updated_at, c.name AS class_name
        FROM students s LEFT JOIN classes c ON c.id = s.class_id
        WHERE s.id = $1`
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByAdmissionNo reports whether an admission number is taken.
func (r *StudentRepository) ExistsByAdmissionNo(ctx context.Context, admissionNo string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM students WHERE admission_no = $1)`
	if err := r.db.GetContext(ctx, &exists, query, admissionNo); err != nil {
		return false, fmt.Errorf("check admission no: %w", err)
	}
	return exists, nil
}

// Create persists a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, admission_no, full_name, gender, birth_date, guardian_name, address, phone, class_id, active, created_at, updated_at)
        VALUES (:id, :admission_no, :full_name, :gender, :birth_date, :guardian_name, :address, :phone, :class_id, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update saves student changes.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET admission_no = :admission_no, full_name = :full_name, gender = :gender,
        birth_date = :birth_date, guardian_name = :guardian_name, address = :address, phone = :phone,
        class_id = :class_id, active = :active, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Delete removes a student row.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// CountActiveIssues reports outstanding book and uniform issues for a
// student. Deletion is blocked while any exist.
func (r *StudentRepository) CountActiveIssues(ctx context.Context, studentID string) (int, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM book_issues WHERE student_id = $1 AND status = 'ISSUED') +
        (SELECT COUNT(*) FROM uniform_issues WHERE student_id = $1 AND status = 'ISSUED')`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID); err != nil {
		return 0, fmt.Errorf("count student active issues: %w", err)
	}
	return count, nil
}
