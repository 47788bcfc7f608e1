package models

import "time"

// UniformItem is the stock ledger for one uniform article in one size.
// Counter semantics match Book: available is derived, never authoritative.
type UniformItem struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Size           string    `db:"size" json:"size"`
	Gender         string    `db:"gender" json:"gender"`
	Price          int64     `db:"price" json:"price"`
	TotalStock     int       `db:"total_stock" json:"total_stock"`
	IssuedCount    int       `db:"issued_count" json:"issued_count"`
	DamagedCount   int       `db:"damaged_count" json:"damaged_count"`
	AvailableStock int       `db:"available_stock" json:"available_stock"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// UniformFilter encapsulates search parameters for the uniform catalog.
type UniformFilter struct {
	Search    string
	Size      string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// UniformIssue is one issuance of a uniform item to a student. Uniform
// issues carry no due date and accrue no fine.
type UniformIssue struct {
	ID         string         `db:"id" json:"id"`
	StudentID  string         `db:"student_id" json:"student_id"`
	ItemID     string         `db:"item_id" json:"item_id"`
	Status     IssueStatus    `db:"status" json:"status"`
	Condition  IssueCondition `db:"condition" json:"condition"`
	IssueDate  time.Time      `db:"issue_date" json:"issue_date"`
	ReturnDate *time.Time     `db:"return_date" json:"return_date,omitempty"`
	Notes      string         `db:"notes" json:"notes"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// UniformIssueDetail includes student and item context for responses.
type UniformIssueDetail struct {
	UniformIssue
	StudentName string `db:"student_name" json:"student_name"`
	ItemName    string `db:"item_name" json:"item_name"`
	ItemSize    string `db:"item_size" json:"item_size"`
}

// UniformIssueFilter lists uniform assignment records.
type UniformIssueFilter struct {
	StudentID string
	ItemID    string
	Status    IssueStatus
	Page      int
	PageSize  int
}

// UniformBatchIssueResult collects per-item outcomes for a uniform batch.
type UniformBatchIssueResult struct {
	Issued []UniformIssueDetail `json:"issued"`
	Errors []IssueError         `json:"errors"`
}
