package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/campus-api/internal/models"
	"github.com/campuskit/campus-api/internal/repository"
)

type mockUniformRepo struct {
	items        map[string]*models.UniformItem
	issues       map[string]*models.UniformIssue
	activeIssues map[string]int
	held         map[string]bool
	noStock      map[string]bool
	listResult   []models.UniformItem
	listTotal    int
	listCalls    int
	issueSeq     int
	deleted      []string
	writeOffs    []string
}

func newMockUniformRepo() *mockUniformRepo {
	return &mockUniformRepo{
		items:        make(map[string]*models.UniformItem),
		issues:       make(map[string]*models.UniformIssue),
		activeIssues: make(map[string]int),
		held:         make(map[string]bool),
		noStock:      make(map[string]bool),
	}
}

func (m *mockUniformRepo) List(ctx context.Context, filter models.UniformFilter) ([]models.UniformItem, int, error) {
	m.listCalls++
	return m.listResult, m.listTotal, nil
}

func (m *mockUniformRepo) FindByID(ctx context.Context, id string) (*models.UniformItem, error) {
	if item, ok := m.items[id]; ok {
		cp := *item
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUniformRepo) ExistsByNameAndSize(ctx context.Context, name, size, excludeID string) (bool, error) {
	for id, item := range m.items {
		if item.Name == name && item.Size == size && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUniformRepo) Create(ctx context.Context, item *models.UniformItem) error {
	if item.ID == "" {
		item.ID = "generated"
	}
	item.AvailableStock = item.TotalStock - item.IssuedCount - item.DamagedCount
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockUniformRepo) Update(ctx context.Context, item *models.UniformItem) error {
	item.AvailableStock = item.TotalStock - item.IssuedCount - item.DamagedCount
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockUniformRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.items, id)
	return nil
}

func (m *mockUniformRepo) CountActiveIssues(ctx context.Context, itemID string) (int, error) {
	return m.activeIssues[itemID], nil
}

func (m *mockUniformRepo) ExistsActiveIssue(ctx context.Context, studentID, itemID string) (bool, error) {
	return m.held[studentID+"/"+itemID], nil
}

func (m *mockUniformRepo) CreateIssue(ctx context.Context, issue *models.UniformIssue) error {
	if m.noStock[issue.ItemID] {
		return repository.ErrNoStock
	}
	m.issueSeq++
	issue.ID = fmt.Sprintf("uissue-%d", m.issueSeq)
	cp := *issue
	m.issues[issue.ID] = &cp
	m.held[issue.StudentID+"/"+issue.ItemID] = true
	if item, ok := m.items[issue.ItemID]; ok {
		item.IssuedCount++
		item.AvailableStock = item.TotalStock - item.IssuedCount - item.DamagedCount
	}
	return nil
}

func (m *mockUniformRepo) ListIssues(ctx context.Context, filter models.UniformIssueFilter) ([]models.UniformIssueDetail, int, error) {
	return nil, 0, nil
}

func (m *mockUniformRepo) FindIssueByID(ctx context.Context, id string) (*models.UniformIssue, error) {
	if issue, ok := m.issues[id]; ok {
		cp := *issue
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUniformRepo) FindIssueDetailByID(ctx context.Context, id string) (*models.UniformIssueDetail, error) {
	issue, err := m.FindIssueByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.UniformIssueDetail{UniformIssue: *issue}, nil
}

func (m *mockUniformRepo) CompleteReturn(ctx context.Context, issue *models.UniformIssue, writeOff bool) error {
	stored, ok := m.issues[issue.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.Status != models.IssueStatusIssued {
		return repository.ErrNotIssued
	}
	cp := *issue
	m.issues[issue.ID] = &cp
	if writeOff {
		m.writeOffs = append(m.writeOffs, issue.ID)
	}
	if item, ok := m.items[issue.ItemID]; ok {
		item.IssuedCount--
		if writeOff {
			item.DamagedCount++
		}
		item.AvailableStock = item.TotalStock - item.IssuedCount - item.DamagedCount
	}
	return nil
}

func uniformFixture(t *testing.T) (*UniformService, *mockUniformRepo) {
	t.Helper()
	repo := newMockUniformRepo()
	repo.items["u1"] = &models.UniformItem{ID: "u1", Name: "Sports Shirt", Size: "M", TotalStock: 2, AvailableStock: 2}
	students := &mockStudentLookup{students: map[string]*models.StudentDetail{
		"s1": {Student: models.Student{ID: "s1", FullName: "Amina Yusuf", Active: true}},
	}}
	svc := NewUniformService(repo, students, nil, nil, validator.New(), zap.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc, repo
}

func TestIssueUniform(t *testing.T) {
	svc, repo := uniformFixture(t)

	issue, err := svc.IssueItem(context.Background(), IssueUniformRequest{StudentID: "s1", ItemID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusIssued, issue.Status)
	assert.Equal(t, 1, repo.items["u1"].IssuedCount)
	assert.Equal(t, 1, repo.items["u1"].AvailableStock)
}

func TestIssueUniformDuplicateHolding(t *testing.T) {
	svc, _ := uniformFixture(t)

	_, err := svc.IssueItem(context.Background(), IssueUniformRequest{StudentID: "s1", ItemID: "u1"})
	require.NoError(t, err)

	_, err = svc.IssueItem(context.Background(), IssueUniformRequest{StudentID: "s1", ItemID: "u1"})
	require.Error(t, err)
	assert.Equal(t, "ALREADY_ISSUED", appErrorCode(err))
}

func TestIssueUniformOutOfStock(t *testing.T) {
	svc, repo := uniformFixture(t)
	repo.noStock["u1"] = true

	_, err := svc.IssueItem(context.Background(), IssueUniformRequest{StudentID: "s1", ItemID: "u1"})
	require.Error(t, err)
	assert.Equal(t, "OUT_OF_STOCK", appErrorCode(err))
}

func TestReturnUniformNoFine(t *testing.T) {
	svc, repo := uniformFixture(t)

	issue, err := svc.IssueItem(context.Background(), IssueUniformRequest{StudentID: "s1", ItemID: "u1"})
	require.NoError(t, err)

	returned, err := svc.ReturnItem(context.Background(), issue.ID, ReturnUniformRequest{Condition: models.ConditionGood})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusReturned, returned.Status)
	assert.Equal(t, 0, repo.items["u1"].IssuedCount)
	assert.Equal(t, 2, repo.items["u1"].AvailableStock)
}

func TestReturnUniformLostWritesOff(t *testing.T) {
	svc, repo := uniformFixture(t)

	issue, err := svc.IssueItem(context.Background(), IssueUniformRequest{StudentID: "s1", ItemID: "u1"})
	require.NoError(t, err)

	returned, err := svc.ReturnItem(context.Background(), issue.ID, ReturnUniformRequest{Condition: models.ConditionLost})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusLost, returned.Status)
	assert.Equal(t, []string{issue.ID}, repo.writeOffs)
	assert.Equal(t, 1, repo.items["u1"].AvailableStock)
}

func TestDeleteUniformWithActiveIssues(t *testing.T) {
	svc, repo := uniformFixture(t)
	repo.activeIssues["u1"] = 1

	err := svc.DeleteItem(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 active issue(s)")
	assert.Empty(t, repo.deleted)
}

func TestListItemsReadThroughCache(t *testing.T) {
	svc, repo := uniformFixture(t)
	svc.cache = NewCacheService(newMemCacheRepo(), nil, time.Minute, zap.NewNop(), true)
	repo.listResult = []models.UniformItem{{ID: "u1", Name: "Sports Shirt", Size: "M"}}
	repo.listTotal = 1

	items, page, hit, err := svc.ListItems(context.Background(), models.UniformFilter{})
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, items, 1)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 1, repo.listCalls)

	items, _, hit, err = svc.ListItems(context.Background(), models.UniformFilter{})
	require.NoError(t, err)
	assert.True(t, hit)
	require.Len(t, items, 1)
	assert.Equal(t, "Sports Shirt", items[0].Name)
	assert.Equal(t, 1, repo.listCalls)

	// Issuing an item changes counters, so cached pages are dropped.
	_, err = svc.IssueItem(context.Background(), IssueUniformRequest{StudentID: "s1", ItemID: "u1"})
	require.NoError(t, err)

	_, _, hit, err = svc.ListItems(context.Background(), models.UniformFilter{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, repo.listCalls)
}

func TestUpdateUniformCounterOverflowRejected(t *testing.T) {
	svc, _ := uniformFixture(t)

	_, err := svc.UpdateItem(context.Background(), "u1", UpdateUniformRequest{
		Name:         "Sports Shirt",
		Size:         "M",
		TotalStock:   2,
		IssuedCount:  2,
		DamagedCount: 1,
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", appErrorCode(err))
}
