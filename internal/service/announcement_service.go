package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/campus-api/internal/models"
	appErrors "github.com/campuskit/campus-api/pkg/errors"
)

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	FindByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	Delete(ctx context.Context, id string) error
}

// CreateAnnouncementRequest holds payload for publishing announcements.
type CreateAnnouncementRequest struct {
	Title         string                      `json:"title" validate:"required"`
	Content       string                      `json:"content" validate:"required"`
	Audience      models.AnnouncementAudience `json:"audience" validate:"required,oneof=ALL TEACHERS STUDENTS CLASS"`
	TargetClassID *string                     `json:"target_class_id"`
	Priority      models.AnnouncementPriority `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH"`
	IsPinned      bool                        `json:"is_pinned"`
	PublishedAt   *time.Time                  `json:"published_at"`
	ExpiresAt     *time.Time                  `json:"expires_at"`
}

// UpdateAnnouncementRequest holds payload for editing announcements.
type UpdateAnnouncementRequest = CreateAnnouncementRequest

// AnnouncementService handles announcement use-cases.
type AnnouncementService struct {
	repo      announcementRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAnnouncementService constructs the announcement service.
func NewAnnouncementService(repo announcementRepository, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{repo: repo, validator: validate, logger: logger}
}

// List returns announcements visible to the caller.
func (s *AnnouncementService) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, *models.Pagination, error) {
	announcements, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return announcements, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one announcement.
func (s *AnnouncementService) Get(ctx context.Context, id string) (*models.Announcement, error) {
	announcement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	return announcement, nil
}

// Create publishes an announcement. CLASS audience requires a target class.
func (s *AnnouncementService) Create(ctx context.Context, createdBy string, req CreateAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	if req.Audience == models.AnnouncementAudienceClass && req.TargetClassID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class announcements require a target class")
	}
	priority := req.Priority
	if priority == "" {
		priority = models.AnnouncementPriorityNormal
	}
	publishedAt := time.Now().UTC()
	if req.PublishedAt != nil {
		publishedAt = *req.PublishedAt
	}
	announcement := &models.Announcement{
		Title:         req.Title,
		Content:       req.Content,
		Audience:      req.Audience,
		TargetClassID: req.TargetClassID,
		Priority:      priority,
		IsPinned:      req.IsPinned,
		PublishedAt:   publishedAt,
		ExpiresAt:     req.ExpiresAt,
		CreatedBy:     createdBy,
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	return announcement, nil
}

// Update edits an announcement.
func (s *AnnouncementService) Update(ctx context.Context, id string, req UpdateAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	if req.Audience == models.AnnouncementAudienceClass && req.TargetClassID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class announcements require a target class")
	}
	announcement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	announcement.Title = req.Title
	announcement.Content = req.Content
	announcement.Audience = req.Audience
	announcement.TargetClassID = req.TargetClassID
	if req.Priority != "" {
		announcement.Priority = req.Priority
	}
	announcement.IsPinned = req.IsPinned
	if req.PublishedAt != nil {
		announcement.PublishedAt = *req.PublishedAt
	}
	announcement.ExpiresAt = req.ExpiresAt
	if err := s.repo.Update(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	return announcement, nil
}

// Delete removes an announcement.
func (s *AnnouncementService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	return nil
}
