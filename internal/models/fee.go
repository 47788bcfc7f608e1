package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeStatus summarises the state of a fee ledger.
type FeeStatus string

const (
	FeeStatusUnpaid  FeeStatus = "UNPAID"
	FeeStatusPartial FeeStatus = "PARTIAL"
	FeeStatusPaid    FeeStatus = "PAID"
	FeeStatusOverdue FeeStatus = "OVERDUE"
)

// ComputeFeeStatus derives the ledger status from the paid/total amounts and
// the due date. Precedence is fixed: PAID, then PARTIAL, then OVERDUE, then
// UNPAID; a partial payment after the due date still reports PARTIAL.
func ComputeFeeStatus(paid, total decimal.Decimal, dueDate, now time.Time) FeeStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return FeeStatusPaid
	case paid.GreaterThan(decimal.Zero):
		return FeeStatusPartial
	case now.After(dueDate):
		return FeeStatusOverdue
	default:
		return FeeStatusUnpaid
	}
}

// FeeLedger is a student's running fee record for one class enrollment.
// PaidAmount must equal the sum of its payment rows after every mutation.
// Ledgers are financial records and are never deleted.
type FeeLedger struct {
	ID         string          `db:"id" json:"id"`
	StudentID  string          `db:"student_id" json:"student_id"`
	ClassID    string          `db:"class_id" json:"class_id"`
	TotalFees  decimal.Decimal `db:"total_fees" json:"total_fees"`
	PaidAmount decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	DueDate    time.Time       `db:"due_date" json:"due_date"`
	Status     FeeStatus       `db:"status" json:"status"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// Remaining returns the outstanding balance.
func (l *FeeLedger) Remaining() decimal.Decimal {
	return l.TotalFees.Sub(l.PaidAmount)
}

// FeeLedgerDetail includes student and class context for responses.
type FeeLedgerDetail struct {
	FeeLedger
	StudentName string `db:"student_name" json:"student_name"`
	ClassName   string `db:"class_name" json:"class_name"`
}

// FeePayment is one append-only payment history entry. Insertion order is
// chronological order.
type FeePayment struct {
	ID            string          `db:"id" json:"id"`
	LedgerID      string          `db:"ledger_id" json:"ledger_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	PaymentDate   time.Time       `db:"payment_date" json:"payment_date"`
	Mode          string          `db:"mode" json:"mode"`
	TransactionID string          `db:"transaction_id" json:"transaction_id"`
	Note          string          `db:"note" json:"note"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// FeeFilter lists fee ledgers.
type FeeFilter struct {
	StudentID string
	ClassID   string
	Status    FeeStatus
	Page      int
	PageSize  int
}
