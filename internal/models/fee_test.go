package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeFeeStatus(t *testing.T) {
	due := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	total := decimal.NewFromInt(100)

	cases := []struct {
		name string
		paid decimal.Decimal
		now  time.Time
		want FeeStatus
	}{
		{"nothing paid before due", decimal.Zero, due.AddDate(0, 0, -5), FeeStatusUnpaid},
		{"nothing paid on due date", decimal.Zero, due, FeeStatusUnpaid},
		{"nothing paid past due", decimal.Zero, due.AddDate(0, 0, 1), FeeStatusOverdue},
		{"partial before due", decimal.NewFromInt(40), due.AddDate(0, 0, -5), FeeStatusPartial},
		{"one unit paid past due stays partial", decimal.NewFromInt(1), due.AddDate(0, 0, 30), FeeStatusPartial},
		{"settled", total, due.AddDate(0, 0, -1), FeeStatusPaid},
		{"settled past due", total, due.AddDate(0, 0, 30), FeeStatusPaid},
		{"overpaid reports paid", decimal.NewFromInt(120), due, FeeStatusPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeFeeStatus(tc.paid, total, due, tc.now))
		})
	}
}

func TestFeeLedgerRemaining(t *testing.T) {
	ledger := &FeeLedger{TotalFees: decimal.NewFromInt(100), PaidAmount: decimal.NewFromInt(35)}
	assert.Equal(t, "65", ledger.Remaining().String())
}
