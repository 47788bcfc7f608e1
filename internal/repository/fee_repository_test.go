package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/campus-api/internal/models"
)

func newFeeRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestFeeRepositoryRecordPayment(t *testing.T) {
	db, mock, cleanup := newFeeRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO fee_payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE fee_ledgers SET paid_amount").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ledger := &models.FeeLedger{
		ID:         "l1",
		StudentID:  "s1",
		ClassID:    "c1",
		TotalFees:  decimal.NewFromInt(100),
		PaidAmount: decimal.NewFromInt(40),
		DueDate:    time.Now().AddDate(0, 1, 0),
		Status:     models.FeeStatusPartial,
	}
	payment := &models.FeePayment{
		LedgerID:      "l1",
		Amount:        decimal.NewFromInt(40),
		PaymentDate:   time.Now(),
		Mode:          "CASH",
		TransactionID: "TXN-test",
	}
	require.NoError(t, repo.RecordPayment(context.Background(), ledger, payment))
	assert.NotEmpty(t, payment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryRecordPaymentRollsBackOnLedgerFailure(t *testing.T) {
	db, mock, cleanup := newFeeRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO fee_payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE fee_ledgers SET paid_amount").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.RecordPayment(context.Background(), &models.FeeLedger{ID: "l1"}, &models.FeePayment{LedgerID: "l1"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryMarkOverdue(t *testing.T) {
	db, mock, cleanup := newFeeRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fee_ledgers SET status = $1, updated_at = $2")).
		WithArgs(models.FeeStatusOverdue, now, models.FeeStatusUnpaid).
		WillReturnResult(sqlmock.NewResult(0, 4))

	affected, err := repo.MarkOverdue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryListPayments(t *testing.T) {
	db, mock, cleanup := newFeeRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	rows := sqlmock.NewRows([]string{"id", "ledger_id", "amount", "payment_date", "mode", "transaction_id", "note", "created_at"}).
		AddRow("p1", "l1", "40", time.Now(), "CASH", "TXN-1", "", time.Now()).
		AddRow("p2", "l1", "60", time.Now(), "CARD", "TXN-2", "", time.Now())
	mock.ExpectQuery("SELECT id, ledger_id, amount, payment_date").
		WithArgs("l1").
		WillReturnRows(rows)

	payments, err := repo.ListPayments(context.Background(), "l1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "TXN-1", payments[0].TransactionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
