package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/campus-api/internal/models"
)

type mockAnnouncementRepo struct {
	items   map[string]*models.Announcement
	deleted []string
}

func newMockAnnouncementRepo() *mockAnnouncementRepo {
	return &mockAnnouncementRepo{items: make(map[string]*models.Announcement)}
}

func (m *mockAnnouncementRepo) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	return nil, 0, nil
}

func (m *mockAnnouncementRepo) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	if item, ok := m.items[id]; ok {
		cp := *item
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAnnouncementRepo) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = "generated"
	}
	cp := *announcement
	m.items[announcement.ID] = &cp
	return nil
}

func (m *mockAnnouncementRepo) Update(ctx context.Context, announcement *models.Announcement) error {
	cp := *announcement
	m.items[announcement.ID] = &cp
	return nil
}

func (m *mockAnnouncementRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.items, id)
	return nil
}

func TestAnnouncementCreateDefaults(t *testing.T) {
	repo := newMockAnnouncementRepo()
	svc := NewAnnouncementService(repo, validator.New(), zap.NewNop())

	announcement, err := svc.Create(context.Background(), "u1", CreateAnnouncementRequest{
		Title:    "Exam Schedule",
		Content:  "Finals start Monday.",
		Audience: models.AnnouncementAudienceAll,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AnnouncementPriorityNormal, announcement.Priority)
	assert.Equal(t, "u1", announcement.CreatedBy)
	assert.False(t, announcement.PublishedAt.IsZero())
}

func TestAnnouncementClassAudienceRequiresTarget(t *testing.T) {
	repo := newMockAnnouncementRepo()
	svc := NewAnnouncementService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "u1", CreateAnnouncementRequest{
		Title:    "Class Trip",
		Content:  "Bring consent forms.",
		Audience: models.AnnouncementAudienceClass,
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", appErrorCode(err))
	assert.Empty(t, repo.items)
}

func TestAnnouncementDelete(t *testing.T) {
	repo := newMockAnnouncementRepo()
	repo.items["a1"] = &models.Announcement{ID: "a1", Title: "Old"}
	svc := NewAnnouncementService(repo, validator.New(), zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), "a1"))
	assert.Equal(t, []string{"a1"}, repo.deleted)

	err := svc.Delete(context.Background(), "a1")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", appErrorCode(err))
}
