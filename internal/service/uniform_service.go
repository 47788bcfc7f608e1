package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/campus-api/internal/models"
	"github.com/campuskit/campus-api/internal/repository"
	appErrors "github.com/campuskit/campus-api/pkg/errors"
)

type uniformRepository interface {
	List(ctx context.Context, filter models.UniformFilter) ([]models.UniformItem, int, error)
	FindByID(ctx context.Context, id string) (*models.UniformItem, error)
	ExistsByNameAndSize(ctx context.Context, name, size, excludeID string) (bool, error)
	Create(ctx context.Context, item *models.UniformItem) error
	Update(ctx context.Context, item *models.UniformItem) error
	Delete(ctx context.Context, id string) error
	CountActiveIssues(ctx context.Context, itemID string) (int, error)
	ExistsActiveIssue(ctx context.Context, studentID, itemID string) (bool, error)
	CreateIssue(ctx context.Context, issue *models.UniformIssue) error
	ListIssues(ctx context.Context, filter models.UniformIssueFilter) ([]models.UniformIssueDetail, int, error)
	FindIssueByID(ctx context.Context, id string) (*models.UniformIssue, error)
	FindIssueDetailByID(ctx context.Context, id string) (*models.UniformIssueDetail, error)
	CompleteReturn(ctx context.Context, issue *models.UniformIssue, writeOff bool) error
}

// CreateUniformRequest holds payload for adding a uniform article.
type CreateUniformRequest struct {
	Name       string `json:"name" validate:"required"`
	Size       string `json:"size" validate:"required"`
	Gender     string `json:"gender"`
	Price      int64  `json:"price" validate:"gte=0"`
	TotalStock int    `json:"total_stock" validate:"gte=0"`
}

// UpdateUniformRequest holds payload for editing a uniform article.
type UpdateUniformRequest struct {
	Name         string `json:"name" validate:"required"`
	Size         string `json:"size" validate:"required"`
	Gender       string `json:"gender"`
	Price        int64  `json:"price" validate:"gte=0"`
	TotalStock   int    `json:"total_stock" validate:"gte=0"`
	IssuedCount  int    `json:"issued_count" validate:"gte=0"`
	DamagedCount int    `json:"damaged_count" validate:"gte=0"`
}

// IssueUniformRequest issues one article to one student.
type IssueUniformRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ItemID    string `json:"item_id" validate:"required"`
	Notes     string `json:"notes"`
}

// BatchIssueUniformsRequest issues several articles to one student.
type BatchIssueUniformsRequest struct {
	StudentID string   `json:"student_id" validate:"required"`
	ItemIDs   []string `json:"item_ids" validate:"required,min=1,dive,required"`
	Notes     string   `json:"notes"`
}

// ReturnUniformRequest closes a uniform assignment record.
type ReturnUniformRequest struct {
	Condition models.IssueCondition `json:"condition" validate:"required,oneof=GOOD FAIR DAMAGED LOST"`
	Notes     string                `json:"notes"`
}

// UniformService handles the uniform catalog, issuance and return workflows.
// Uniform issues carry no due date, so returns never accrue a fine.
type UniformService struct {
	items     uniformRepository
	students  studentLookup
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewUniformService constructs the uniform service.
func NewUniformService(items uniformRepository, students studentLookup, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *UniformService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UniformService{
		items:     items,
		students:  students,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

const uniformCachePattern = "uniforms:*"

type uniformListPage struct {
	Items []models.UniformItem `json:"items"`
	Total int                  `json:"total"`
}

func uniformListCacheKey(f models.UniformFilter) string {
	return fmt.Sprintf("uniforms:list:%s:%s:%s:%s:%d:%d", f.Search, f.Size, f.SortBy, f.SortOrder, f.Page, f.PageSize)
}

// ListItems returns uniform articles and pagination metadata. The boolean
// reports whether the page came from cache.
func (s *UniformService) ListItems(ctx context.Context, filter models.UniformFilter) ([]models.UniformItem, *models.Pagination, bool, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	cacheKey := uniformListCacheKey(filter)
	var cached uniformListPage
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached.Items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: cached.Total}, true, nil
		}
	}

	items, total, err := s.items.List(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list uniforms")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, uniformListPage{Items: items, Total: total}, 0); err != nil {
			s.logger.Warn("uniform list cache write failed", zap.Error(err))
		}
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, false, nil
}

// GetItem returns one uniform article.
func (s *UniformService) GetItem(ctx context.Context, id string) (*models.UniformItem, error) {
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "uniform item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load uniform item")
	}
	return item, nil
}

// CreateItem adds a uniform article with zeroed counters.
func (s *UniformService) CreateItem(ctx context.Context, req CreateUniformRequest) (*models.UniformItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid uniform payload")
	}
	exists, err := s.items.ExistsByNameAndSize(ctx, req.Name, req.Size, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate uniform")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "uniform already exists in this size")
	}
	item := &models.UniformItem{
		Name:       req.Name,
		Size:       req.Size,
		Gender:     req.Gender,
		Price:      req.Price,
		TotalStock: req.TotalStock,
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create uniform item")
	}
	s.invalidateCatalog(ctx)
	return item, nil
}

// UpdateItem edits a uniform article under the same counter invariant as
// the book catalog.
func (s *UniformService) UpdateItem(ctx context.Context, id string, req UpdateUniformRequest) (*models.UniformItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid uniform payload")
	}
	if req.IssuedCount+req.DamagedCount > req.TotalStock {
		return nil, appErrors.Clone(appErrors.ErrValidation, "issued and damaged counts exceed total stock")
	}
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "uniform item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load uniform item")
	}
	exists, err := s.items.ExistsByNameAndSize(ctx, req.Name, req.Size, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate uniform")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "uniform already exists in this size")
	}
	item.Name = req.Name
	item.Size = req.Size
	item.Gender = req.Gender
	item.Price = req.Price
	item.TotalStock = req.TotalStock
	item.IssuedCount = req.IssuedCount
	item.DamagedCount = req.DamagedCount
	if err := s.items.Update(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update uniform item")
	}
	s.invalidateCatalog(ctx)
	return item, nil
}

// DeleteItem removes a uniform article unless pieces are still outstanding.
func (s *UniformService) DeleteItem(ctx context.Context, id string) error {
	if _, err := s.items.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "uniform item not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load uniform item")
	}
	active, err := s.items.CountActiveIssues(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count active issues")
	}
	if active > 0 {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot delete uniform item: %d active issue(s) outstanding", active))
	}
	if err := s.items.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete uniform item")
	}
	s.invalidateCatalog(ctx)
	return nil
}

// IssueItem hands one article to one student.
func (s *UniformService) IssueItem(ctx context.Context, req IssueUniformRequest) (*models.UniformIssueDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issue payload")
	}
	issue, err := s.issueOne(ctx, req.StudentID, req.ItemID, req.Notes)
	if err != nil {
		s.recordIssueOutcome("rejected")
		return nil, err
	}
	s.recordIssueOutcome("issued")
	s.invalidateCatalog(ctx)
	return issue, nil
}

// BatchIssueItems hands several articles to one student with per-item outcomes.
func (s *UniformService) BatchIssueItems(ctx context.Context, req BatchIssueUniformsRequest) (*models.UniformBatchIssueResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	result := &models.UniformBatchIssueResult{}
	for _, itemID := range req.ItemIDs {
		issue, err := s.issueOne(ctx, req.StudentID, itemID, req.Notes)
		if err != nil {
			s.recordIssueOutcome("rejected")
			appErr := appErrors.FromError(err)
			result.Errors = append(result.Errors, models.IssueError{ItemID: itemID, Code: appErr.Code, Message: appErr.Message})
			continue
		}
		s.recordIssueOutcome("issued")
		result.Issued = append(result.Issued, *issue)
	}
	if len(result.Issued) > 0 {
		s.invalidateCatalog(ctx)
	}
	return result, nil
}

func (s *UniformService) issueOne(ctx context.Context, studentID, itemID, notes string) (*models.UniformIssueDetail, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.items.FindByID(ctx, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "uniform item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load uniform item")
	}
	held, err := s.items.ExistsActiveIssue(ctx, studentID, itemID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check holdings")
	}
	if held {
		return nil, appErrors.Clone(appErrors.ErrAlreadyIssued, "student already holds this uniform item")
	}

	issue := &models.UniformIssue{
		StudentID: studentID,
		ItemID:    itemID,
		Status:    models.IssueStatusIssued,
		Condition: models.ConditionGood,
		IssueDate: s.now(),
		Notes:     notes,
	}
	if err := s.items.CreateIssue(ctx, issue); err != nil {
		if errors.Is(err, repository.ErrNoStock) {
			return nil, appErrors.Clone(appErrors.ErrOutOfStock, "no pieces available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue uniform")
	}

	detail, err := s.items.FindIssueDetailByID(ctx, issue.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	return detail, nil
}

// ListIssues returns uniform assignment records.
func (s *UniformService) ListIssues(ctx context.Context, filter models.UniformIssueFilter) ([]models.UniformIssueDetail, *models.Pagination, error) {
	issues, total, err := s.items.ListIssues(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list issues")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return issues, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetIssue returns one uniform assignment record with context.
func (s *UniformService) GetIssue(ctx context.Context, id string) (*models.UniformIssueDetail, error) {
	detail, err := s.items.FindIssueDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	return detail, nil
}

// ReturnItem closes a uniform assignment record.
func (s *UniformService) ReturnItem(ctx context.Context, issueID string, req ReturnUniformRequest) (*models.UniformIssueDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid return payload")
	}
	issue, err := s.items.FindIssueByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}

	target := models.StatusForCondition(req.Condition)
	if !models.CanTransition(issue.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrNotIssued, fmt.Sprintf("cannot return record in status %s", issue.Status))
	}

	now := s.now()
	issue.Status = target
	issue.Condition = req.Condition
	issue.ReturnDate = &now
	if req.Notes != "" {
		issue.Notes = req.Notes
	}

	writeOff := target == models.IssueStatusDamaged || target == models.IssueStatusLost
	if err := s.items.CompleteReturn(ctx, issue, writeOff); err != nil {
		if errors.Is(err, repository.ErrNotIssued) {
			return nil, appErrors.Clone(appErrors.ErrNotIssued, "record already returned")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to return uniform")
	}
	s.recordIssueOutcome("returned")
	s.invalidateCatalog(ctx)

	detail, err := s.items.FindIssueDetailByID(ctx, issueID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	return detail, nil
}

func (s *UniformService) recordIssueOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordIssue("uniform", outcome)
	}
}

func (s *UniformService) invalidateCatalog(ctx context.Context) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, uniformCachePattern); err != nil {
			s.logger.Warn("uniform cache invalidation failed", zap.Error(err))
		}
	}
}
