package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/campuskit/campus-api/internal/models"
	appErrors "github.com/campuskit/campus-api/pkg/errors"
	"github.com/campuskit/campus-api/pkg/export"
)

type feeRepository interface {
	List(ctx context.Context, filter models.FeeFilter) ([]models.FeeLedgerDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.FeeLedger, error)
	FindDetailByID(ctx context.Context, id string) (*models.FeeLedgerDetail, error)
	Create(ctx context.Context, ledger *models.FeeLedger) error
	RecordPayment(ctx context.Context, ledger *models.FeeLedger, payment *models.FeePayment) error
	ListPayments(ctx context.Context, ledgerID string) ([]models.FeePayment, error)
	FindPayment(ctx context.Context, ledgerID, transactionID string) (*models.FeePayment, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

// CreateFeeLedgerRequest opens a fee ledger for a student.
type CreateFeeLedgerRequest struct {
	StudentID string          `json:"student_id" validate:"required"`
	ClassID   string          `json:"class_id" validate:"required"`
	TotalFees decimal.Decimal `json:"total_fees" validate:"required"`
	DueDate   time.Time       `json:"due_date" validate:"required"`
}

// RecordPaymentRequest appends one payment to a ledger.
type RecordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Mode   string          `json:"mode" validate:"required,oneof=CASH CARD TRANSFER ONLINE"`
	Note   string          `json:"note"`
}

// FeeService handles fee ledgers, payments, receipts and the overdue sweep.
type FeeService struct {
	fees      feeRepository
	students  studentLookup
	pdf       *export.PDFExporter
	csv       *export.CSVExporter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewFeeService constructs the fee service.
func NewFeeService(fees feeRepository, students studentLookup, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *FeeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeService{
		fees:      fees,
		students:  students,
		pdf:       export.NewPDFExporter(),
		csv:       export.NewCSVExporter(),
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns fee ledgers and pagination metadata.
func (s *FeeService) List(ctx context.Context, filter models.FeeFilter) ([]models.FeeLedgerDetail, *models.Pagination, error) {
	ledgers, total, err := s.fees.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee ledgers")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return ledgers, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a ledger with its payment history.
func (s *FeeService) Get(ctx context.Context, id string) (*models.FeeLedgerDetail, []models.FeePayment, error) {
	detail, err := s.fees.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "fee ledger not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee ledger")
	}
	payments, err := s.fees.ListPayments(ctx, id)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payments")
	}
	return detail, payments, nil
}

// Create opens a fee ledger for a student.
func (s *FeeService) Create(ctx context.Context, req CreateFeeLedgerRequest) (*models.FeeLedger, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee ledger payload")
	}
	if req.TotalFees.LessThanOrEqual(decimal.Zero) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "total fees must be positive")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	ledger := &models.FeeLedger{
		StudentID:  req.StudentID,
		ClassID:    req.ClassID,
		TotalFees:  req.TotalFees,
		PaidAmount: decimal.Zero,
		DueDate:    req.DueDate,
		Status:     models.ComputeFeeStatus(decimal.Zero, req.TotalFees, req.DueDate, s.now()),
	}
	if err := s.fees.Create(ctx, ledger); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fee ledger")
	}
	return ledger, nil
}

// RecordPayment appends a payment. The amount must be positive and may not
// exceed the outstanding balance; the ledger status is recomputed from the
// new paid amount under the fixed precedence.
func (s *FeeService) RecordPayment(ctx context.Context, ledgerID string, req RecordPaymentRequest) (*models.FeePayment, *models.FeeLedger, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	ledger, err := s.fees.FindByID(ctx, ledgerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "fee ledger not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee ledger")
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "payment amount must be positive")
	}
	remaining := ledger.Remaining()
	if req.Amount.GreaterThan(remaining) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("payment exceeds outstanding balance of %s", remaining.StringFixed(2)))
	}

	now := s.now()
	ledger.PaidAmount = ledger.PaidAmount.Add(req.Amount)
	ledger.Status = models.ComputeFeeStatus(ledger.PaidAmount, ledger.TotalFees, ledger.DueDate, now)

	payment := &models.FeePayment{
		LedgerID:      ledgerID,
		Amount:        req.Amount,
		PaymentDate:   now,
		Mode:          req.Mode,
		TransactionID: newTransactionID(now),
		Note:          req.Note,
	}
	if err := s.fees.RecordPayment(ctx, ledger, payment); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}
	if s.metrics != nil {
		s.metrics.RecordPayment()
	}
	return payment, ledger, nil
}

// Receipt renders a PDF receipt for one payment.
func (s *FeeService) Receipt(ctx context.Context, ledgerID, transactionID string) ([]byte, error) {
	detail, err := s.fees.FindDetailByID(ctx, ledgerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee ledger not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee ledger")
	}
	payment, err := s.fees.FindPayment(ctx, ledgerID, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	fields := [][2]string{
		{"Transaction ID", payment.TransactionID},
		{"Student", detail.StudentName},
		{"Class", detail.ClassName},
		{"Payment Date", payment.PaymentDate.Format("2006-01-02 15:04")},
		{"Mode", payment.Mode},
		{"Amount", payment.Amount.StringFixed(2)},
		{"Total Fees", detail.TotalFees.StringFixed(2)},
		{"Paid To Date", detail.PaidAmount.StringFixed(2)},
		{"Balance", detail.Remaining().StringFixed(2)},
		{"Status", string(detail.Status)},
	}
	payload, err := s.pdf.RenderReceipt("Fee Payment Receipt", fields)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return payload, nil
}

// ExportCSV renders the filtered ledger list as CSV.
func (s *FeeService) ExportCSV(ctx context.Context, filter models.FeeFilter) ([]byte, error) {
	filter.Page = 1
	filter.PageSize = 100
	var rows []map[string]string
	for {
		ledgers, total, err := s.fees.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee ledgers")
		}
		for _, l := range ledgers {
			rows = append(rows, map[string]string{
				"Ledger ID":  l.ID,
				"Student":    l.StudentName,
				"Class":      l.ClassName,
				"Total Fees": l.TotalFees.StringFixed(2),
				"Paid":       l.PaidAmount.StringFixed(2),
				"Balance":    l.Remaining().StringFixed(2),
				"Due Date":   l.DueDate.Format("2006-01-02"),
				"Status":     string(l.Status),
			})
		}
		if filter.Page*filter.PageSize >= total {
			break
		}
		filter.Page++
	}

	dataset := export.Dataset{
		Headers: []string{"Ledger ID", "Student", "Class", "Total Fees", "Paid", "Balance", "Due Date", "Status"},
		Rows:    rows,
	}
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return payload, nil
}

// SweepOverdue marks unpaid ledgers past their due date as OVERDUE. Run
// periodically from the background queue.
func (s *FeeService) SweepOverdue(ctx context.Context) (int64, error) {
	affected, err := s.fees.MarkOverdue(ctx, s.now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sweep overdue ledgers")
	}
	if affected > 0 {
		s.logger.Info("marked ledgers overdue", zap.Int64("count", affected))
	}
	return affected, nil
}

// newTransactionID builds a sortable unique reference for a payment.
func newTransactionID(now time.Time) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("TXN-%d", now.UnixNano())
	}
	return fmt.Sprintf("TXN-%s-%s", now.Format("20060102150405"), hex.EncodeToString(buf))
}
