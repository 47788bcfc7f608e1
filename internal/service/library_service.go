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

type bookRepository interface {
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
	FindByID(ctx context.Context, id string) (*models.Book, error)
	ExistsByTitleAndLevel(ctx context.Context, title, classLevel, excludeID string) (bool, error)
	Create(ctx context.Context, book *models.Book) error
	Update(ctx context.Context, book *models.Book) error
	Delete(ctx context.Context, id string) error
	CountActiveIssues(ctx context.Context, bookID string) (int, error)
	ExistsActiveIssue(ctx context.Context, studentID, bookID string) (bool, error)
	CreateIssue(ctx context.Context, issue *models.BookIssue) error
	ListIssues(ctx context.Context, filter models.BookIssueFilter) ([]models.BookIssueDetail, int, error)
	FindIssueByID(ctx context.Context, id string) (*models.BookIssue, error)
	FindIssueDetailByID(ctx context.Context, id string) (*models.BookIssueDetail, error)
	CompleteReturn(ctx context.Context, issue *models.BookIssue, writeOff bool) error
}

type studentLookup interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// CreateBookRequest holds payload for adding a catalog entry.
type CreateBookRequest struct {
	Title      string `json:"title" validate:"required"`
	Author     string `json:"author" validate:"required"`
	Category   string `json:"category"`
	ClassLevel string `json:"class_level" validate:"required"`
	TotalStock int    `json:"total_stock" validate:"gte=0"`
}

// UpdateBookRequest holds payload for editing a catalog entry. Counter edits
// are accepted but must keep issued + damaged within total.
type UpdateBookRequest struct {
	Title        string `json:"title" validate:"required"`
	Author       string `json:"author" validate:"required"`
	Category     string `json:"category"`
	ClassLevel   string `json:"class_level" validate:"required"`
	TotalStock   int    `json:"total_stock" validate:"gte=0"`
	IssuedCount  int    `json:"issued_count" validate:"gte=0"`
	DamagedCount int    `json:"damaged_count" validate:"gte=0"`
}

// IssueBookRequest issues one title to one student.
type IssueBookRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	BookID    string `json:"book_id" validate:"required"`
	Notes     string `json:"notes"`
}

// BatchIssueBooksRequest issues several titles to one student.
type BatchIssueBooksRequest struct {
	StudentID string   `json:"student_id" validate:"required"`
	BookIDs   []string `json:"book_ids" validate:"required,min=1,dive,required"`
	Notes     string   `json:"notes"`
}

// ReturnBookRequest closes an assignment record.
type ReturnBookRequest struct {
	Condition models.IssueCondition `json:"condition" validate:"required,oneof=GOOD FAIR DAMAGED LOST"`
	Notes     string                `json:"notes"`
}

// LibraryService handles the book catalog, issuance and return workflows.
type LibraryService struct {
	books          bookRepository
	students       studentLookup
	cache          *CacheService
	metrics        *MetricsService
	validator      *validator.Validate
	logger         *zap.Logger
	loanPeriodDays int
	finePerDay     int64
	now            func() time.Time
}

// NewLibraryService constructs the library service.
func NewLibraryService(books bookRepository, students studentLookup, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, loanPeriodDays int, finePerDay int64) *LibraryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loanPeriodDays <= 0 {
		loanPeriodDays = 30
	}
	if finePerDay <= 0 {
		finePerDay = 10
	}
	return &LibraryService{
		books:          books,
		students:       students,
		cache:          cache,
		metrics:        metrics,
		validator:      validate,
		logger:         logger,
		loanPeriodDays: loanPeriodDays,
		finePerDay:     finePerDay,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

const bookCachePattern = "books:*"

type bookListPage struct {
	Books []models.Book `json:"books"`
	Total int           `json:"total"`
}

func bookListCacheKey(f models.BookFilter) string {
	return fmt.Sprintf("books:list:%s:%s:%s:%s:%s:%d:%d", f.Search, f.Category, f.ClassLevel, f.SortBy, f.SortOrder, f.Page, f.PageSize)
}

// ListBooks returns catalog entries and pagination metadata. The boolean
// reports whether the page came from cache.
func (s *LibraryService) ListBooks(ctx context.Context, filter models.BookFilter) ([]models.Book, *models.Pagination, bool, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	cacheKey := bookListCacheKey(filter)
	var cached bookListPage
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached.Books, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: cached.Total}, true, nil
		}
	}

	books, total, err := s.books.List(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list books")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, bookListPage{Books: books, Total: total}, 0); err != nil {
			s.logger.Warn("book list cache write failed", zap.Error(err))
		}
	}
	return books, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, false, nil
}

// GetBook returns one catalog entry.
func (s *LibraryService) GetBook(ctx context.Context, id string) (*models.Book, error) {
	book, err := s.books.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	return book, nil
}

// CreateBook adds a catalog entry with zeroed counters.
func (s *LibraryService) CreateBook(ctx context.Context, req CreateBookRequest) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid book payload")
	}
	exists, err := s.books.ExistsByTitleAndLevel(ctx, req.Title, req.ClassLevel, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate title")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "title already exists for this class level")
	}
	book := &models.Book{
		Title:      req.Title,
		Author:     req.Author,
		Category:   req.Category,
		ClassLevel: req.ClassLevel,
		TotalStock: req.TotalStock,
	}
	if err := s.books.Create(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create book")
	}
	s.invalidateCatalog(ctx)
	return book, nil
}

// UpdateBook edits a catalog entry. Direct counter edits must keep
// issued + damaged within the total so available stock stays non-negative.
func (s *LibraryService) UpdateBook(ctx context.Context, id string, req UpdateBookRequest) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid book payload")
	}
	if req.IssuedCount+req.DamagedCount > req.TotalStock {
		return nil, appErrors.Clone(appErrors.ErrValidation, "issued and damaged counts exceed total stock")
	}
	book, err := s.books.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	exists, err := s.books.ExistsByTitleAndLevel(ctx, req.Title, req.ClassLevel, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate title")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "title already exists for this class level")
	}
	book.Title = req.Title
	book.Author = req.Author
	book.Category = req.Category
	book.ClassLevel = req.ClassLevel
	book.TotalStock = req.TotalStock
	book.IssuedCount = req.IssuedCount
	book.DamagedCount = req.DamagedCount
	if err := s.books.Update(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update book")
	}
	s.invalidateCatalog(ctx)
	return book, nil
}

// DeleteBook removes a catalog entry unless copies are still outstanding.
func (s *LibraryService) DeleteBook(ctx context.Context, id string) error {
	if _, err := s.books.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	active, err := s.books.CountActiveIssues(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count active issues")
	}
	if active > 0 {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot delete book: %d active issue(s) outstanding", active))
	}
	if err := s.books.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete book")
	}
	s.invalidateCatalog(ctx)
	return nil
}

// IssueBook lends one title to one student. Preconditions are checked in a
// fixed order: student, book, duplicate holding, then stock. The stock claim
// itself happens atomically in the repository.
func (s *LibraryService) IssueBook(ctx context.Context, req IssueBookRequest) (*models.BookIssueDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issue payload")
	}
	issue, err := s.issueOne(ctx, req.StudentID, req.BookID, req.Notes)
	if err != nil {
		s.recordIssueOutcome("rejected")
		return nil, err
	}
	s.recordIssueOutcome("issued")
	s.invalidateCatalog(ctx)
	return issue, nil
}

// BatchIssueBooks lends several titles to one student, collecting per-item
// outcomes. Items that succeeded stay issued even when later items fail.
func (s *LibraryService) BatchIssueBooks(ctx context.Context, req BatchIssueBooksRequest) (*models.BatchIssueResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	result := &models.BatchIssueResult{}
	for _, bookID := range req.BookIDs {
		issue, err := s.issueOne(ctx, req.StudentID, bookID, req.Notes)
		if err != nil {
			s.recordIssueOutcome("rejected")
			appErr := appErrors.FromError(err)
			result.Errors = append(result.Errors, models.IssueError{ItemID: bookID, Code: appErr.Code, Message: appErr.Message})
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

func (s *LibraryService) issueOne(ctx context.Context, studentID, bookID, notes string) (*models.BookIssueDetail, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.books.FindByID(ctx, bookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	held, err := s.books.ExistsActiveIssue(ctx, studentID, bookID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check holdings")
	}
	if held {
		return nil, appErrors.Clone(appErrors.ErrAlreadyIssued, "student already holds this book")
	}

	now := s.now()
	due := now.AddDate(0, 0, s.loanPeriodDays)
	issue := &models.BookIssue{
		StudentID: studentID,
		BookID:    bookID,
		Status:    models.IssueStatusIssued,
		Condition: models.ConditionGood,
		IssueDate: now,
		DueDate:   &due,
		Notes:     notes,
	}
	if err := s.books.CreateIssue(ctx, issue); err != nil {
		if errors.Is(err, repository.ErrNoStock) {
			return nil, appErrors.Clone(appErrors.ErrOutOfStock, "no copies available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue book")
	}

	detail, err := s.books.FindIssueDetailByID(ctx, issue.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	return detail, nil
}

// ListIssues returns assignment records.
func (s *LibraryService) ListIssues(ctx context.Context, filter models.BookIssueFilter) ([]models.BookIssueDetail, *models.Pagination, error) {
	issues, total, err := s.books.ListIssues(ctx, filter)
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

// GetIssue returns an assignment record with context.
func (s *LibraryService) GetIssue(ctx context.Context, id string) (*models.BookIssueDetail, error) {
	detail, err := s.books.FindIssueDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	return detail, nil
}

// ReturnBook closes an assignment record. The terminal status follows the
// reported condition, the fine is a pure function of the return instant and
// the due date, and damaged or lost copies are written off the ledger.
func (s *LibraryService) ReturnBook(ctx context.Context, issueID string, req ReturnBookRequest) (*models.BookIssueDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid return payload")
	}
	issue, err := s.books.FindIssueByID(ctx, issueID)
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
	if issue.DueDate != nil {
		issue.Fine = models.OverdueFine(now, *issue.DueDate, s.finePerDay)
	}

	writeOff := target == models.IssueStatusDamaged || target == models.IssueStatusLost
	if err := s.books.CompleteReturn(ctx, issue, writeOff); err != nil {
		if errors.Is(err, repository.ErrNotIssued) {
			return nil, appErrors.Clone(appErrors.ErrNotIssued, "record already returned")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to return book")
	}
	s.recordIssueOutcome("returned")
	s.invalidateCatalog(ctx)

	detail, err := s.books.FindIssueDetailByID(ctx, issueID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	return detail, nil
}

func (s *LibraryService) recordIssueOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordIssue("book", outcome)
	}
}

func (s *LibraryService) invalidateCatalog(ctx context.Context) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, bookCachePattern); err != nil {
			s.logger.Warn("book cache invalidation failed", zap.Error(err))
		}
	}
}
