package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/campus-api/internal/models"
)

func newBookRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestBookRepositoryList(t *testing.T) {
	db, mock, cleanup := newBookRepoMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "author", "category", "class_level", "total_stock", "issued_count", "damaged_count", "available_stock", "created_at", "updated_at"}).
		AddRow("b1", "Algebra I", "Kline", "Math", "10", 5, 1, 0, 4, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, title, author, category, class_level").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM books")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	books, total, err := repo.List(context.Background(), models.BookFilter{})
	require.NoError(t, err)
	assert.Len(t, books, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, 4, books[0].AvailableStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryCreateIssueClaimsStock(t *testing.T) {
	db, mock, cleanup := newBookRepoMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE books SET issued_count = issued_count + 1")).
		WithArgs("b1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO book_issues").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	due := time.Now().AddDate(0, 0, 30)
	issue := &models.BookIssue{
		StudentID: "s1",
		BookID:    "b1",
		Status:    models.IssueStatusIssued,
		Condition: models.ConditionGood,
		IssueDate: time.Now(),
		DueDate:   &due,
	}
	require.NoError(t, repo.CreateIssue(context.Background(), issue))
	assert.NotEmpty(t, issue.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryCreateIssueNoStock(t *testing.T) {
	db, mock, cleanup := newBookRepoMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	mock.ExpectBegin()
	// Conditional decrement matches no row when no copies are available.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE books SET issued_count = issued_count + 1")).
		WithArgs("b1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CreateIssue(context.Background(), &models.BookIssue{StudentID: "s1", BookID: "b1", Status: models.IssueStatusIssued})
	assert.ErrorIs(t, err, ErrNoStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryCompleteReturn(t *testing.T) {
	db, mock, cleanup := newBookRepoMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE book_issues SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE books SET issued_count = GREATEST(issued_count - 1, 0)")).
		WithArgs("b1", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	now := time.Now()
	issue := &models.BookIssue{
		ID:         "i1",
		StudentID:  "s1",
		BookID:     "b1",
		Status:     models.IssueStatusDamaged,
		Condition:  models.ConditionDamaged,
		ReturnDate: &now,
	}
	require.NoError(t, repo.CompleteReturn(context.Background(), issue, true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryCompleteReturnAlreadyClosed(t *testing.T) {
	db, mock, cleanup := newBookRepoMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	mock.ExpectBegin()
	// Status guard on the issue row rejects a second return.
	mock.ExpectExec("UPDATE book_issues SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CompleteReturn(context.Background(), &models.BookIssue{ID: "i1", BookID: "b1", Status: models.IssueStatusReturned}, false)
	assert.ErrorIs(t, err, ErrNotIssued)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryExistsActiveIssue(t *testing.T) {
	db, mock, cleanup := newBookRepoMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM book_issues WHERE student_id = $1 AND book_id = $2 AND status = $3 LIMIT 1")).
		WithArgs("s1", "b1", models.IssueStatusIssued).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	held, err := repo.ExistsActiveIssue(context.Background(), "s1", "b1")
	require.NoError(t, err)
	assert.True(t, held)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryCountActiveIssues(t *testing.T) {
	db, mock, cleanup := newBookRepoMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM book_issues WHERE book_id = $1 AND status = $2")).
		WithArgs("b1", models.IssueStatusIssued).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountActiveIssues(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
