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

// ClassRepository handles persistence of class rows.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

var classSorts = map[string]string{
	"name":       "cl.name",
	"grade":      "cl.grade",
	"created_at": "cl.created_at",
}

// List returns classes matching the filter with homeroom teacher context.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	base := `FROM classes cl LEFT JOIN teachers t ON t.id = cl.homeroom_teacher_id`
	var conditions []string
	var args []interface{}

	if filter.Grade != "" {
		conditions = append(conditions, fmt.Sprintf("cl.grade = $%d", len(args)+1))
		args = append(args, filter.Grade)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("cl.name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	sortCol, ok := classSorts[filter.SortBy]
	if !ok {
		sortCol = "cl.name"
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

	query := fmt.Sprintf(`SELECT cl.id, cl.name, cl.grade, cl.section, cl.homeroom_teacher_id, cl.created_at, cl.updated_at,
        t.full_name AS homeroom_teacher_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, sortCol, order, size, offset)

	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a class with homeroom teacher context.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	const query = `SELECT cl.id, cl.name, cl.grade, cl.section, cl.homeroom_teacher_id, cl.created_at, cl.updated_at,
        t.full_name AS homeroom_teacher_name
        FROM classes cl LEFT JOIN teachers t ON t.id = cl.homeroom_teacher_id
        WHERE cl.id = $1`
	var class models.ClassDetail
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ExistsByName reports whether a class name is taken.
func (r *ClassRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM classes WHERE name = $1)`
	if err := r.db.GetContext(ctx, &exists, query, name); err != nil {
		return false, fmt.Errorf("check class name: %w", err)
	}
	return exists, nil
}

// Create persists a new class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, grade, section, homeroom_teacher_id, created_at, updated_at)
        VALUES (:id, :name, :grade, :section, :homeroom_teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update saves class changes.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, grade = :grade, section = :section,
        homeroom_teacher_id = :homeroom_teacher_id, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Delete removes a class row.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// CountStudents reports how many students are enrolled in the class.
func (r *ClassRepository) CountStudents(ctx context.Context, classID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM students WHERE class_id = $1`
	if err := r.db.GetContext(ctx, &count, query, classID); err != nil {
		return 0, fmt.Errorf("count class students: %w", err)
	}
	return count, nil
}
