package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book is the stock ledger for one catalog title within a class level.
// AvailableStock is derived from the three counters and recomputed on every
// mutation; it is never an independent input to a stock decision.
type Book struct {
	ID             string    `db:"id" json:"id"`
	Title          string    `db:"title" json:"title"`
	Author         string    `db:"author" json:"author"`
	Category       string    `db:"category" json:"category"`
	ClassLevel     string    `db:"class_level" json:"class_level"`
	TotalStock     int       `db:"total_stock" json:"total_stock"`
	IssuedCount    int       `db:"issued_count" json:"issued_count"`
	DamagedCount   int       `db:"damaged_count" json:"damaged_count"`
	AvailableStock int       `db:"available_stock" json:"available_stock"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// BookFilter encapsulates search parameters for the catalog listing.
type BookFilter struct {
	Search     string
	Category   string
	ClassLevel string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// IssueStatus is the lifecycle state of an assignment record.
type IssueStatus string

const (
	IssueStatusIssued   IssueStatus = "ISSUED"
	IssueStatusReturned IssueStatus = "RETURNED"
	IssueStatusDamaged  IssueStatus = "DAMAGED"
	IssueStatusLost     IssueStatus = "LOST"
)

// IssueCondition describes the physical state reported at return time.
type IssueCondition string

const (
	ConditionGood    IssueCondition = "GOOD"
	ConditionFair    IssueCondition = "FAIR"
	ConditionDamaged IssueCondition = "DAMAGED"
	ConditionLost    IssueCondition = "LOST"
)

// issueTransitions is the only set of legal status changes. Anything not
// listed here is rejected before persistence.
var issueTransitions = map[IssueStatus][]IssueStatus{
	IssueStatusIssued: {IssueStatusReturned, IssueStatusDamaged, IssueStatusLost},
}

// CanTransition reports whether an assignment may move from one status to
// another.
func CanTransition(from, to IssueStatus) bool {
	for _, allowed := range issueTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StatusForCondition maps a reported return condition to the terminal
// assignment status.
func StatusForCondition(condition IssueCondition) IssueStatus {
	switch condition {
	case ConditionDamaged:
		return IssueStatusDamaged
	case ConditionLost:
		return IssueStatusLost
	default:
		return IssueStatusReturned
	}
}

// OverdueFine computes the late penalty for a return at the given instant.
// Pure function of (now, dueDate): whole days past due times the daily rate,
// zero when returned on or before the due date.
func OverdueFine(now, dueDate time.Time, finePerDay int64) decimal.Decimal {
	if !now.After(dueDate) {
		return decimal.Zero
	}
	daysOverdue := int64(now.Sub(dueDate) / (24 * time.Hour))
	return decimal.NewFromInt(daysOverdue * finePerDay)
}

// BookIssue is one lending event linking a student to a book title.
type BookIssue struct {
	ID         string          `db:"id" json:"id"`
	StudentID  string          `db:"student_id" json:"student_id"`
	BookID     string          `db:"book_id" json:"book_id"`
	Status     IssueStatus     `db:"status" json:"status"`
	Condition  IssueCondition  `db:"condition" json:"condition"`
	IssueDate  time.Time       `db:"issue_date" json:"issue_date"`
	DueDate    *time.Time      `db:"due_date" json:"due_date,omitempty"`
	ReturnDate *time.Time      `db:"return_date" json:"return_date,omitempty"`
	Fine       decimal.Decimal `db:"fine" json:"fine"`
	Notes      string          `db:"notes" json:"notes"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// BookIssueDetail includes student and book context for responses.
type BookIssueDetail struct {
	BookIssue
	StudentName string `db:"student_name" json:"student_name"`
	BookTitle   string `db:"book_title" json:"book_title"`
}

// BookIssueFilter lists assignment records.
type BookIssueFilter struct {
	StudentID string
	BookID    string
	Status    IssueStatus
	Page      int
	PageSize  int
}

// IssueError reports a per-item failure inside a batch issuance.
type IssueError struct {
	ItemID  string `json:"item_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchIssueResult collects per-item outcomes; a batch never rolls back
// items that already succeeded.
type BatchIssueResult struct {
	Issued []BookIssueDetail `json:"issued"`
	Errors []IssueError      `json:"errors"`
}
