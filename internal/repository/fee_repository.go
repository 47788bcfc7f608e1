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

// FeeRepository handles persistence of fee ledgers and payments.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs the repository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// List returns fee ledgers with student/class context.
func (r *FeeRepository) List(ctx context.Context, filter models.FeeFilter) ([]models.FeeLedgerDetail, int, error) {
	base := `FROM fee_ledgers f
LEFT JOIN students s ON s.id = f.student_id
LEFT JOIN classes c ON c.id = f.class_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("f.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("f.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("f.status = $%d", len(args)+1))
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

	query := fmt.Sprintf(`SELECT f.id, f.student_id, f.class_id, f.total_fees, f.paid_amount, f.due_date, f.status, f.created_at, f.updated_at,
        s.full_name AS student_name, c.name AS class_name
        %s ORDER BY f.due_date ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var ledgers []models.FeeLedgerDetail
	if err := r.db.SelectContext(ctx, &ledgers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list fee ledgers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count fee ledgers: %w", err)
	}
	return ledgers, total, nil
}

// FindByID returns a fee ledger by its ID.
func (r *FeeRepository) FindByID(ctx context.Context, id string) (*models.FeeLedger, error) {
	const query = `SELECT id, student_id, class_id, total_fees, paid_amount, due_date, status, created_at, updated_at
        FROM fee_ledgers WHERE id = $1`
	var ledger models.FeeLedger
	if err := r.db.GetContext(ctx, &ledger, query, id); err != nil {
		return nil, err
	}
	return &ledger, nil
}

// FindDetailByID returns a fee ledger with student/class context.
func (r *FeeRepository) FindDetailByID(ctx context.Context, id string) (*models.FeeLedgerDetail, error) {
	const query = `SELECT f.id, f.student_id, f.class_id, f.total_fees, f.paid_amount, f.due_date, f.status, f.created_at, f.updated_at,
        s.full_name AS student_name, c.name AS class_name
        FROM fee_ledgers f
        LEFT JOIN students s ON s.id = f.student_id
        LEFT JOIN classes c ON c.id = f.class_id
        WHERE f.id = $1`
	var detail models.FeeLedgerDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create persists a new fee ledger.
func (r *FeeRepository) Create(ctx context.Context, ledger *models.FeeLedger) error {
	if ledger.ID == "" {
		ledger.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ledger.CreatedAt = now
	ledger.UpdatedAt = now
	const query = `INSERT INTO fee_ledgers (id, student_id, class_id, total_fees, paid_amount, due_date, status, created_at, updated_at)
        VALUES (:id, :student_id, :class_id, :total_fees, :paid_amount, :due_date, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, ledger); err != nil {
		return fmt.Errorf("create fee ledger: %w", err)
	}
	return nil
}

// RecordPayment appends a payment row and updates the ledger totals inside
// one transaction so the paid-amount invariant cannot be observed broken.
func (r *FeeRepository) RecordPayment(ctx context.Context, ledger *models.FeeLedger, payment *models.FeePayment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payment tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.CreatedAt = now
	const insert = `INSERT INTO fee_payments (id, ledger_id, amount, payment_date, mode, transaction_id, note, created_at)
        VALUES (:id, :ledger_id, :amount, :payment_date, :mode, :transaction_id, :note, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, payment); err != nil {
		return fmt.Errorf("insert fee payment: %w", err)
	}

	ledger.UpdatedAt = now
	const update = `UPDATE fee_ledgers SET paid_amount = :paid_amount, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, update, ledger); err != nil {
		return fmt.Errorf("update fee ledger: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit payment tx: %w", err)
	}
	return nil
}

// ListPayments returns a ledger's payment history in chronological order.
func (r *FeeRepository) ListPayments(ctx context.Context, ledgerID string) ([]models.FeePayment, error) {
	const query = `SELECT id, ledger_id, amount, payment_date, mode, transaction_id, note, created_at
        FROM fee_payments WHERE ledger_id = $1 ORDER BY created_at ASC`
	var payments []models.FeePayment
	if err := r.db.SelectContext(ctx, &payments, query, ledgerID); err != nil {
		return nil, fmt.Errorf("list fee payments: %w", err)
	}
	return payments, nil
}

// FindPayment returns one payment row of a ledger by its transaction ID.
func (r *FeeRepository) FindPayment(ctx context.Context, ledgerID, transactionID string) (*models.FeePayment, error) {
	const query = `SELECT id, ledger_id, amount, payment_date, mode, transaction_id, note, created_at
        FROM fee_payments WHERE ledger_id = $1 AND transaction_id = $2`
	var payment models.FeePayment
	if err := r.db.GetContext(ctx, &payment, query, ledgerID, transactionID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkOverdue flips untouched ledgers past their due date to OVERDUE in a
// single set-based statement. Partially paid ledgers stay PARTIAL.
func (r *FeeRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE fee_ledgers SET status = $1, updated_at = $2
        WHERE status = $3 AND due_date < $2 AND paid_amount = 0`
	res, err := r.db.ExecContext(ctx, query, models.FeeStatusOverdue, now, models.FeeStatusUnpaid)
	if err != nil {
		return 0, fmt.Errorf("mark overdue ledgers: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark overdue ledgers: %w", err)
	}
	return affected, nil
}
