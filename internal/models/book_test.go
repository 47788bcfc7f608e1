package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from IssueStatus
		to   IssueStatus
		want bool
	}{
		{IssueStatusIssued, IssueStatusReturned, true},
		{IssueStatusIssued, IssueStatusDamaged, true},
		{IssueStatusIssued, IssueStatusLost, true},
		{IssueStatusReturned, IssueStatusIssued, false},
		{IssueStatusReturned, IssueStatusReturned, false},
		{IssueStatusDamaged, IssueStatusReturned, false},
		{IssueStatusLost, IssueStatusIssued, false},
		{IssueStatusIssued, IssueStatusIssued, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStatusForCondition(t *testing.T) {
	assert.Equal(t, IssueStatusReturned, StatusForCondition(ConditionGood))
	assert.Equal(t, IssueStatusReturned, StatusForCondition(ConditionFair))
	assert.Equal(t, IssueStatusDamaged, StatusForCondition(ConditionDamaged))
	assert.Equal(t, IssueStatusLost, StatusForCondition(ConditionLost))
}

func TestOverdueFine(t *testing.T) {
	due := time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		now  time.Time
		want string
	}{
		{"before due date", due.AddDate(0, 0, -3), "0"},
		{"on due date", due, "0"},
		{"hours late counts as zero days", due.Add(6 * time.Hour), "0"},
		{"one day late", due.AddDate(0, 0, 1), "10"},
		{"five days late", due.AddDate(0, 0, 5), "50"},
		{"thirty days late", due.AddDate(0, 0, 30), "300"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, OverdueFine(tc.now, due, 10).String())
		})
	}
}
