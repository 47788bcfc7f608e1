package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/campus-api/internal/models"
)

// ErrNoStock is returned when the conditional stock decrement matched no
// row, i.e. the item had no available copies at commit time.
var ErrNoStock = errors.New("no available stock")

// ErrNotIssued is returned when a return targets a record that is not in
// the ISSUED state anymore.
var ErrNotIssued = errors.New("record not currently issued")

// BookRepository handles persistence of the book catalog and its issues.
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository constructs the repository.
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

// List returns catalog entries filtered by the provided criteria.
func (r *BookRepository) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	base := "FROM books"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR author ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.ClassLevel != "" {
		conditions = append(conditions, fmt.Sprintf("class_level = $%d", len(args)+1))
		args = append(args, filter.ClassLevel)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"title":           "title",
		"author":          "author",
		"available_stock": "available_stock",
		"created_at":      "created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "title"
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

	query := fmt.Sprintf(`SELECT id, title, author, category, class_level, total_stock, issued_count, damaged_count, available_stock, created_at, updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var books []models.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}
	return books, total, nil
}

// FindByID returns a catalog entry by its ID.
func (r *BookRepository) FindByID(ctx context.Context, id string) (*models.Book, error) {
	const query = `SELECT id, title, author, category, class_level, total_stock, issued_count, damaged_count, available_stock, created_at, updated_at
        FROM books WHERE id = $1`
	var book models.Book
	if err := r.db.GetContext(ctx, &book, query, id); err != nil {
		return nil, err
	}
	return &book, nil
}

// ExistsByTitleAndLevel checks catalog uniqueness for a title within a class level.
func (r *BookRepository) ExistsByTitleAndLevel(ctx context.Context, title, classLevel, excludeID string) (bool, error) {
	query := "SELECT 1 FROM books WHERE LOWER(title) = LOWER($1) AND class_level = $2"
	args := []interface{}{title, classLevel}
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
		return false, fmt.Errorf("check book uniqueness: %w", err)
	}
	return true, nil
}

// Create persists a new catalog entry with zeroed counters.
func (r *BookRepository) Create(ctx context.Context, book *models.Book) error {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	book.IssuedCount = 0
	book.DamagedCount = 0
	book.AvailableStock = book.TotalStock
	book.CreatedAt = now
	book.UpdatedAt = now
	const query = `INSERT INTO books (id, title, author, category, class_level, total_stock, issued_count, damaged_count, available_stock, created_at, updated_at)
        VALUES (:id, :title, :author, :category, :class_level, :total_stock, :issued_count, :damaged_count, :available_stock, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

// Update persists catalog details and stock counts. Available stock is
// recomputed from the counters, never taken from the caller.
func (r *BookRepository) Update(ctx context.Context, book *models.Book) error {
	book.AvailableStock = book.TotalStock - book.IssuedCount - book.DamagedCount
	book.UpdatedAt = time.Now().UTC()
	const query = `UPDATE books SET title = :title, author = :author, category = :category, class_level = :class_level,
        total_stock = :total_stock, issued_count = :issued_count, damaged_count = :damaged_count,
        available_stock = :available_stock, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

// Delete removes a catalog entry. The service guards against outstanding
// issues before calling this.
func (r *BookRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM books WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

// CountActiveIssues returns the number of outstanding ISSUED records for a book.
func (r *BookRepository) CountActiveIssues(ctx context.Context, bookID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM book_issues WHERE book_id = $1 AND status = $2", bookID, models.IssueStatusIssued); err != nil {
		return 0, fmt.Errorf("count active issues: %w", err)
	}
	return count, nil
}

// ExistsActiveIssue checks whether the student already holds this book.
func (r *BookRepository) ExistsActiveIssue(ctx context.Context, studentID, bookID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM book_issues WHERE student_id = $1 AND book_id = $2 AND status = $3 LIMIT 1",
		studentID, bookID, models.IssueStatusIssued)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active issue: %w", err)
	}
	return true, nil
}

// CreateIssue creates an assignment record and claims one copy in a single
// transaction. The stock decrement is conditional on availability computed
// from the counters, so two overlapping requests can never oversell: the
// second UPDATE matches no row and the transaction is rolled back.
func (r *BookRepository) CreateIssue(ctx context.Context, issue *models.BookIssue) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin issue tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const claim = `UPDATE books SET issued_count = issued_count + 1,
        available_stock = total_stock - (issued_count + 1) - damaged_count,
        updated_at = $2
        WHERE id = $1 AND total_stock - issued_count - damaged_count > 0`
	res, err := tx.ExecContext(ctx, claim, issue.BookID, now)
	if err != nil {
		return fmt.Errorf("claim book stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim book stock: %w", err)
	}
	if affected == 0 {
		return ErrNoStock
	}

	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	issue.CreatedAt = now
	issue.UpdatedAt = now
	const insert = `INSERT INTO book_issues (id, student_id, book_id, status, condition, issue_date, due_date, return_date, fine, notes, created_at, updated_at)
        VALUES (:id, :student_id, :book_id, :status, :condition, :issue_date, :due_date, :return_date, :fine, :notes, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, issue); err != nil {
		return fmt.Errorf("create book issue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit issue tx: %w", err)
	}
	return nil
}

// ListIssues returns assignment records with student/book context.
func (r *BookRepository) ListIssues(ctx context.Context, filter models.BookIssueFilter) ([]models.BookIssueDetail, int, error) {
	base := `FROM book_issues i
LEFT JOIN students s ON s.id = i.student_id
LEFT JOIN books b ON b.id = i.book_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("i.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.BookID != "" {
		conditions = append(conditions, fmt.Sprintf("i.book_id = $%d", len(args)+1))
		args = append(args, filter.BookID)
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

	query := fmt.Sprintf(`SELECT i.id, i.student_id, i.book_id, i.status, i.condition, i.issue_date, i.due_date, i.return_date, i.fine, i.notes, i.created_at, i.updated_at,
        s.full_name AS student_name, b.title AS book_title
        %s ORDER BY i.issue_date DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var issues []models.BookIssueDetail
	if err := r.db.SelectContext(ctx, &issues, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list book issues: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count book issues: %w", err)
	}
	return issues, total, nil
}

// FindIssueByID returns an assignment record by its ID.
func (r *BookRepository) FindIssueByID(ctx context.Context, id string) (*models.BookIssue, error) {
	const query = `SELECT id, student_id, book_id, status, condition, issue_date, due_date, return_date, fine, notes, created_at, updated_at
        FROM book_issues WHERE id = $1`
	var issue models.BookIssue
	if err := r.db.GetContext(ctx, &issue, query, id); err != nil {
		return nil, err
	}
	return &issue, nil
}

// FindIssueDetailByID returns an assignment record with context.
func (r *BookRepository) FindIssueDetailByID(ctx context.Context, id string) (*models.BookIssueDetail, error) {
	const query = `SELECT i.id, i.student_id, i.book_id, i.status, i.condition, i.issue_date, i.due_date, i.return_date, i.fine, i.notes, i.created_at, i.updated_at,
        s.full_name AS student_name, b.title AS book_title
        FROM book_issues i
        LEFT JOIN students s ON s.id = i.student_id
        LEFT JOIN books b ON b.id = i.book_id
        WHERE i.id = $1`
	var detail models.BookIssueDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CompleteReturn finalises an assignment and releases its copy back to the
// ledger in one transaction. The issue UPDATE is guarded on status so a
// concurrent double-return matches no row; the stock restore floors the
// issued counter at zero.
func (r *BookRepository) CompleteReturn(ctx context.Context, issue *models.BookIssue, writeOff bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin return tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	issue.UpdatedAt = now
	const update = `UPDATE book_issues SET status = :status, condition = :condition, return_date = :return_date,
        fine = :fine, notes = :notes, updated_at = :updated_at
        WHERE id = :id AND status = 'ISSUED'`
	res, err := tx.NamedExecContext(ctx, update, issue)
	if err != nil {
		return fmt.Errorf("update book issue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update book issue: %w", err)
	}
	if affected == 0 {
		return ErrNotIssued
	}

	writeOffDelta := 0
	if writeOff {
		writeOffDelta = 1
	}
	const release = `UPDATE books SET issued_count = GREATEST(issued_count - 1, 0),
        damaged_count = damaged_count + $2,
        available_stock = total_stock - GREATEST(issued_count - 1, 0) - (damaged_count + $2),
        updated_at = $3
        WHERE id = $1`
	if _, err := tx.ExecContext(ctx, release, issue.BookID, writeOffDelta, now); err != nil {
		return fmt.Errorf("release book stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit return tx: %w", err)
	}
	return nil
}
