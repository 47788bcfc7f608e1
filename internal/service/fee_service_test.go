package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/campus-api/internal/models"
)

type mockFeeRepo struct {
	ledgers     map[string]*models.FeeLedger
	payments    map[string][]models.FeePayment
	listResult  []models.FeeLedgerDetail
	listTotal   int
	markedAt    []time.Time
	markedCount int64
}

func newMockFeeRepo() *mockFeeRepo {
	return &mockFeeRepo{
		ledgers:  make(map[string]*models.FeeLedger),
		payments: make(map[string][]models.FeePayment),
	}
}

func (m *mockFeeRepo) List(ctx context.Context, filter models.FeeFilter) ([]models.FeeLedgerDetail, int, error) {
	return m.listResult, m.listTotal, nil
}

func (m *mockFeeRepo) FindByID(ctx context.Context, id string) (*models.FeeLedger, error) {
	if ledger, ok := m.ledgers[id]; ok {
		cp := *ledger
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeeRepo) FindDetailByID(ctx context.Context, id string) (*models.FeeLedgerDetail, error) {
	ledger, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.FeeLedgerDetail{FeeLedger: *ledger, StudentName: "Amina Yusuf", ClassName: "10-A"}, nil
}

func (m *mockFeeRepo) Create(ctx context.Context, ledger *models.FeeLedger) error {
	if ledger.ID == "" {
		ledger.ID = "ledger-1"
	}
	cp := *ledger
	m.ledgers[ledger.ID] = &cp
	return nil
}

func (m *mockFeeRepo) RecordPayment(ctx context.Context, ledger *models.FeeLedger, payment *models.FeePayment) error {
	cp := *ledger
	m.ledgers[ledger.ID] = &cp
	m.payments[ledger.ID] = append(m.payments[ledger.ID], *payment)
	return nil
}

func (m *mockFeeRepo) ListPayments(ctx context.Context, ledgerID string) ([]models.FeePayment, error) {
	return m.payments[ledgerID], nil
}

func (m *mockFeeRepo) FindPayment(ctx context.Context, ledgerID, transactionID string) (*models.FeePayment, error) {
	for _, payment := range m.payments[ledgerID] {
		if payment.TransactionID == transactionID {
			cp := payment
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeeRepo) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	m.markedAt = append(m.markedAt, now)
	return m.markedCount, nil
}

func feeFixture(t *testing.T) (*FeeService, *mockFeeRepo, time.Time) {
	t.Helper()
	repo := newMockFeeRepo()
	students := &mockStudentLookup{students: map[string]*models.StudentDetail{
		"s1": {Student: models.Student{ID: "s1", FullName: "Amina Yusuf", Active: true}},
	}}
	svc := NewFeeService(repo, students, nil, validator.New(), zap.NewNop())
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, repo, now
}

func TestCreateFeeLedger(t *testing.T) {
	svc, repo, now := feeFixture(t)

	ledger, err := svc.Create(context.Background(), CreateFeeLedgerRequest{
		StudentID: "s1",
		ClassID:   "c1",
		TotalFees: decimal.NewFromInt(100),
		DueDate:   now.AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusUnpaid, ledger.Status)
	assert.True(t, ledger.PaidAmount.IsZero())
	assert.Len(t, repo.ledgers, 1)
}

func TestCreateFeeLedgerRejectsNonPositiveTotal(t *testing.T) {
	svc, _, now := feeFixture(t)

	_, err := svc.Create(context.Background(), CreateFeeLedgerRequest{
		StudentID: "s1",
		ClassID:   "c1",
		TotalFees: decimal.NewFromInt(-5),
		DueDate:   now.AddDate(0, 1, 0),
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", appErrorCode(err))
}

func TestRecordPaymentPartialAfterDueDate(t *testing.T) {
	svc, repo, now := feeFixture(t)
	repo.ledgers["l1"] = &models.FeeLedger{
		ID:         "l1",
		StudentID:  "s1",
		ClassID:    "c1",
		TotalFees:  decimal.NewFromInt(100),
		PaidAmount: decimal.Zero,
		DueDate:    now.AddDate(0, 0, -10),
		Status:     models.FeeStatusOverdue,
	}

	payment, ledger, err := svc.RecordPayment(context.Background(), "l1", RecordPaymentRequest{
		Amount: decimal.NewFromInt(1),
		Mode:   "CASH",
	})
	require.NoError(t, err)
	// Any payment outranks OVERDUE even past the due date.
	assert.Equal(t, models.FeeStatusPartial, ledger.Status)
	assert.Equal(t, "1", ledger.PaidAmount.String())
	assert.NotEmpty(t, payment.TransactionID)
	assert.Len(t, repo.payments["l1"], 1)
}

func TestRecordPaymentSettlesLedger(t *testing.T) {
	svc, repo, now := feeFixture(t)
	repo.ledgers["l1"] = &models.FeeLedger{
		ID:         "l1",
		TotalFees:  decimal.NewFromInt(100),
		PaidAmount: decimal.NewFromInt(60),
		DueDate:    now.AddDate(0, 0, 5),
		Status:     models.FeeStatusPartial,
	}

	_, ledger, err := svc.RecordPayment(context.Background(), "l1", RecordPaymentRequest{
		Amount: decimal.NewFromInt(40),
		Mode:   "TRANSFER",
	})
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusPaid, ledger.Status)
	assert.True(t, ledger.Remaining().IsZero())
}

func TestRecordPaymentsSumMatchesPaidAmount(t *testing.T) {
	svc, repo, now := feeFixture(t)
	repo.ledgers["l1"] = &models.FeeLedger{
		ID:        "l1",
		StudentID: "s1",
		ClassID:   "c1",
		TotalFees: decimal.NewFromInt(100),
		DueDate:   now.AddDate(0, 1, 0),
		Status:    models.FeeStatusUnpaid,
	}

	amounts := []int64{25, 40, 15}
	for _, amount := range amounts {
		_, _, err := svc.RecordPayment(context.Background(), "l1", RecordPaymentRequest{
			Amount: decimal.NewFromInt(amount),
			Mode:   "CASH",
		})
		require.NoError(t, err)
	}

	// The ledger's paid amount equals the sum of the appended payment rows.
	sum := decimal.Zero
	for _, payment := range repo.payments["l1"] {
		sum = sum.Add(payment.Amount)
	}
	require.Len(t, repo.payments["l1"], 3)
	assert.True(t, repo.ledgers["l1"].PaidAmount.Equal(sum))
	assert.Equal(t, "80", repo.ledgers["l1"].PaidAmount.String())
	assert.Equal(t, models.FeeStatusPartial, repo.ledgers["l1"].Status)
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	svc, repo, now := feeFixture(t)
	repo.ledgers["l1"] = &models.FeeLedger{
		ID:         "l1",
		TotalFees:  decimal.NewFromInt(100),
		PaidAmount: decimal.NewFromInt(80),
		DueDate:    now.AddDate(0, 0, 5),
		Status:     models.FeeStatusPartial,
	}

	_, _, err := svc.RecordPayment(context.Background(), "l1", RecordPaymentRequest{
		Amount: decimal.NewFromInt(30),
		Mode:   "CASH",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds outstanding balance")
	assert.Empty(t, repo.payments["l1"])
}

func TestRecordPaymentRejectsNonPositiveAmount(t *testing.T) {
	svc, repo, now := feeFixture(t)
	repo.ledgers["l1"] = &models.FeeLedger{
		ID:        "l1",
		TotalFees: decimal.NewFromInt(100),
		DueDate:   now.AddDate(0, 0, 5),
		Status:    models.FeeStatusUnpaid,
	}

	_, _, err := svc.RecordPayment(context.Background(), "l1", RecordPaymentRequest{
		Amount: decimal.NewFromInt(-10),
		Mode:   "CASH",
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", appErrorCode(err))
}

func TestReceiptForRecordedPayment(t *testing.T) {
	svc, repo, now := feeFixture(t)
	repo.ledgers["l1"] = &models.FeeLedger{
		ID:        "l1",
		TotalFees: decimal.NewFromInt(100),
		DueDate:   now.AddDate(0, 0, 5),
		Status:    models.FeeStatusUnpaid,
	}

	payment, _, err := svc.RecordPayment(context.Background(), "l1", RecordPaymentRequest{
		Amount: decimal.NewFromInt(25),
		Mode:   "CARD",
	})
	require.NoError(t, err)

	payload, err := svc.Receipt(context.Background(), "l1", payment.TransactionID)
	require.NoError(t, err)
	assert.NotEmpty(t, payload)
}

func TestReceiptUnknownTransaction(t *testing.T) {
	svc, repo, now := feeFixture(t)
	repo.ledgers["l1"] = &models.FeeLedger{
		ID:        "l1",
		TotalFees: decimal.NewFromInt(100),
		DueDate:   now.AddDate(0, 0, 5),
		Status:    models.FeeStatusUnpaid,
	}

	_, err := svc.Receipt(context.Background(), "l1", "TXN-missing")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", appErrorCode(err))
}

func TestExportCSV(t *testing.T) {
	svc, repo, now := feeFixture(t)
	repo.listResult = []models.FeeLedgerDetail{
		{
			FeeLedger: models.FeeLedger{
				ID:         "l1",
				TotalFees:  decimal.NewFromInt(100),
				PaidAmount: decimal.NewFromInt(40),
				DueDate:    now.AddDate(0, 0, 5),
				Status:     models.FeeStatusPartial,
			},
			StudentName: "Amina Yusuf",
			ClassName:   "10-A",
		},
	}
	repo.listTotal = 1

	payload, err := svc.ExportCSV(context.Background(), models.FeeFilter{})
	require.NoError(t, err)
	assert.Contains(t, string(payload), "Amina Yusuf")
	assert.Contains(t, string(payload), "60.00")
}

func TestSweepOverdue(t *testing.T) {
	svc, repo, now := feeFixture(t)
	repo.markedCount = 3

	affected, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)
	require.Len(t, repo.markedAt, 1)
	assert.Equal(t, now, repo.markedAt[0])
}
