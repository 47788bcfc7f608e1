package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/campus-api/internal/models"
)

// UniformRepository handles persistence of the uniform catalog and its issues.
type UniformRepository struct {
	db *sqlx.DB
}

// NewUniformRepository constructs the repository.
func NewUniformRepository(db *sqlx.DB) *UniformRepository {
	return &UniformRepository{db: db}
}

// List returns uniform items filtered by the provided criteria.
func (r *UniformRepository) List(ctx context.Context, filter models.UniformFilter) ([]models.UniformItem, int, error) {
	base := "FROM uniform_items"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Size != "" {
		conditions = append(conditions, fmt.Sprintf("size = $%d", len(args)+1))
		args = append(args, filter.Size)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":            "name",
		"size":            "size",
		"available_stock": "available_stock",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT id, name, size, gender, price, total_stock, issued_count, damaged_count, available_stock, created_at, updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var items []models.UniformItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list uniform items: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count uniform items: %w", err)
	}
	return items, total, nil
}

// FindByID returns a uniform item by its ID.
func (r *UniformRepository) FindByID(ctx context.Context, id string) (*models.UniformItem, error) {
	const query = `SELECT id, name, size, gender, price, total_stock, issued_count, damaged_count, available_stock, created_at, updated_at
        FROM uniform_items WHERE id = $1`
	var item models.UniformItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// ExistsByNameAndSize checks catalog uniqueness for an article in a size.
func (r *UniformRepository) ExistsByNameAndSize(ctx context.Context, name, size, excludeID string) (bool, error) {
	query := "SELECT 1 FROM uniform_items WHERE LOWER(name) = LOWER($1) AND size = $2"
	args := []interface{}{name, size}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check uniform uniqueness: %w", err)
	}
	return true, nil
}

// Create persists a new uniform item with zeroed counters.
func (r *UniformRepository) Create(ctx context.Context, item *models.UniformItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.IssuedCount = 0
	item.DamagedCount = 0
	item.AvailableStock = item.TotalStock
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO uniform_items (id, name, size, gender, price, total_stock, issued_count, damaged_count, available_stock, created_at, updated_at)
        VALUES (:id, :name, :size, :gender, :price, :total_stock, :issued_count, :damaged_count, :available_stock, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create uniform item: %w", err)
	}
	return nil
}

// Update persists item details and stock counts, recomputing availability.
func (r *UniformRepository) Update(ctx context.Context, item *models.UniformItem) error {
	item.AvailableStock = item.TotalStock - item.IssuedCount - item.DamagedCount
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE uniform_items SET name = :name, size = :size, gender = :gender, price = :price,
        total_stock = :total_stock, issued_count = :issued_count, damaged_count = :damaged_count,
        available_stock = :available_stock, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("update uniform item: %w", err)
	}
	return nil
}

// Delete removes a uniform item.
func (r *UniformRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM uniform_items WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete uniform item: %w", err)
	}
	return nil
}

// CountActiveIssues returns outstanding ISSUED records for an item.
func (r *UniformRepository) CountActiveIssues(ctx context.Context, itemID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM uniform_issues WHERE item_id = $1 AND status = $2", itemID, models.IssueStatusIssued); err != nil {
		return 0, fmt.Errorf("count active uniform issues: %w", err)
	}
	return count, nil
}

// ExistsActiveIssue checks whether the student already holds this item.
func (r *UniformRepository) ExistsActiveIssue(ctx context.Context, studentID, itemID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM uniform_issues WHERE student_id = $1 AND item_id = $2 AND status = $3 LIMIT 1",
		studentID, itemID, models.IssueStatusIssued)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active uniform issue: %w", err)
	}
	return true, nil
}

// CreateIssue creates an issuance record and claims one unit in a single
// transaction, with the same conditional decrement as the book ledger.
func (r *UniformRepository) CreateIssue(ctx context.Context, issue *models.UniformIssue) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin uniform issue tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const claim = `UPDATE uniform_items SET issued_count = issued_count + 1,
        available_stock = total_stock - (issued_count + 1) - damaged_count,
        updated_at = $2
        WHERE id = $1 AND total_stock - issued_count - damaged_count > 0`
	res, err := tx.ExecContext(ctx, claim, issue.ItemID, now)
	if err != nil {
		return fmt.Errorf("claim uniform stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim uniform stock: %w", err)
	}
	if affected == 0 {
		return ErrNoStock
	}

	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	issue.CreatedAt = now
	issue.UpdatedAt = now
	const insert = `INSERT INTO uniform_issues (id, student_id, item_id, status, condition, issue_date, return_date, notes, created_at, updated_at)
        VALUES (:id, :student_id, :item_id, :status, :condition, :issue_date, :return_date, :notes, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, issue); err != nil {
		return fmt.Errorf("create uniform issue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit uniform issue tx: %w", err)
	}
	return nil
}

// ListIssues returns uniform issuance records with context.
func (r *UniformRepository) ListIssues(ctx context.Context, filter models.UniformIssueFilter) ([]models.UniformIssueDetail, int, error) {
	base := `FROM uniform_issues i
LEFT JOIN students s ON s.id = i.student_id
LEFT JOIN uniform_items u ON u.id = i.item_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("i.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ItemID != "" {
		conditions = append(conditions, fmt.Sprintf("i.item_id = $%d", len(args)+1))
		args = append(args, filter.ItemID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("i.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT i.id, i.student_id, i.item_id, i.status, i.condition, i.issue_date, i.return_date, i.notes, i.created_at, i.updated_at,
        s.full_name AS student_name, u.name AS item_name, u.size AS item_size
        %s ORDER BY i.issue_date DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var issues []models.UniformIssueDetail
	if err := r.db.SelectContext(ctx, &issues, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list uniform issues: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count uniform issues: %w", err)
	}
	return issues, total, nil
}

// FindIssueByID returns a uniform issuance record by its ID.
func (r *UniformRepository) FindIssueByID(ctx context.Context, id string) (*models.UniformIssue, error) {
	const query = `SELECT id, student_id, item_id, status, condition, issue_date, return_date, notes, created_at, updated_at
        FROM uniform_issues WHERE id = $1`
	var issue models.UniformIssue
	if err := r.db.GetContext(ctx, &issue, query, id); err != nil {
		return nil, err
	}
	return &issue, nil
}

// FindIssueDetailByID returns a uniform issuance record with context.
func (r *UniformRepository) FindIssueDetailByID(ctx context.Context, id string) (*models.UniformIssueDetail, error) {
	const query = `SELECT i.id, i.student_id, i.item_id, i.status, i.condition, i.issue_date, i.return_date, i.notes, i.created_at, i.updated_at,
        s.full_name AS student_name, u.name AS item_name, u.size AS item_size
        FROM uniform_issues i
        LEFT JOIN students s ON s.id = i.student_id
        LEFT JOIN uniform_items u ON u.id = i.item_id
        WHERE i.id = $1`
	var detail models.UniformIssueDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CompleteReturn finalises a uniform issuance and releases its unit in one
// transaction, mirroring the book return semantics.
func (r *UniformRepository) CompleteReturn(ctx context.Context, issue *models.UniformIssue, writeOff bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin uniform return tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	issue.UpdatedAt = now
	const update = `UPDATE uniform_issues SET status = :status, condition = :condition, return_date = :return_date,
        notes = :notes, updated_at = :updated_at
        WHERE id = :id AND status = 'ISSUED'`
	res, err := tx.NamedExecContext(ctx, update, issue)
	if err != nil {
		return fmt.Errorf("update uniform issue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update uniform issue: %w", err)
	}
	if affected == 0 {
		return ErrNotIssued
	}

	writeOffDelta := 0
	if writeOff {
		writeOffDelta = 1
	}
	const release = `UPDATE uniform_items SET issued_count = GREATEST(issued_count - 1, 0),
        damaged_count = damaged_count + $2,
        available_stock = total_stock - GREATEST(issued_count - 1, 0) - (damaged_count + $2),
        updated_at = $3
        WHERE id = $1`
	if _, err := tx.ExecContext(ctx, release, issue.ItemID, writeOffDelta, now); err != nil {
		return fmt.Errorf("release uniform stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit uniform return tx: %w", err)
	}
	return nil
}
