package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/campus-api/internal/models"
	"github.com/campuskit/campus-api/internal/repository"
	"github.com/campuskit/campus-api/internal/service"
)

type bookRepoStub struct {
	books   map[string]*models.Book
	noStock bool
	seq     int
	issues  map[string]*models.BookIssue
}

func newBookRepoStub() *bookRepoStub {
	return &bookRepoStub{
		books:  map[string]*models.Book{"b1": {ID: "b1", Title: "Algebra I", TotalStock: 3}},
		issues: make(map[string]*models.BookIssue),
	}
}

func (s *bookRepoStub) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	return nil, 0, nil
}

func (s *bookRepoStub) FindByID(ctx context.Context, id string) (*models.Book, error) {
	if book, ok := s.books[id]; ok {
		return book, nil
	}
	return nil, sql.ErrNoRows
}

func (s *bookRepoStub) ExistsByTitleAndLevel(ctx context.Context, title, classLevel, excludeID string) (bool, error) {
	return false, nil
}

func (s *bookRepoStub) Create(ctx context.Context, book *models.Book) error  { return nil }
func (s *bookRepoStub) Update(ctx context.Context, book *models.Book) error  { return nil }
func (s *bookRepoStub) Delete(ctx context.Context, id string) error          { return nil }
func (s *bookRepoStub) CountActiveIssues(ctx context.Context, bookID string) (int, error) {
	return 0, nil
}

func (s *bookRepoStub) ExistsActiveIssue(ctx context.Context, studentID, bookID string) (bool, error) {
	return false, nil
}

func (s *bookRepoStub) CreateIssue(ctx context.Context, issue *models.BookIssue) error {
	if s.noStock {
		return repository.ErrNoStock
	}
	s.seq++
	issue.ID = "issue-1"
	cp := *issue
	s.issues[issue.ID] = &cp
	return nil
}

func (s *bookRepoStub) ListIssues(ctx context.Context, filter models.BookIssueFilter) ([]models.BookIssueDetail, int, error) {
	return nil, 0, nil
}

func (s *bookRepoStub) FindIssueByID(ctx context.Context, id string) (*models.BookIssue, error) {
	if issue, ok := s.issues[id]; ok {
		return issue, nil
	}
	return nil, sql.ErrNoRows
}

func (s *bookRepoStub) FindIssueDetailByID(ctx context.Context, id string) (*models.BookIssueDetail, error) {
	issue, err := s.FindIssueByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.BookIssueDetail{BookIssue: *issue}, nil
}

func (s *bookRepoStub) CompleteReturn(ctx context.Context, issue *models.BookIssue, writeOff bool) error {
	return nil
}

type studentLookupStub struct{}

func (studentLookupStub) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if id == "s1" {
		return &models.StudentDetail{Student: models.Student{ID: "s1", Active: true}}, nil
	}
	return nil, sql.ErrNoRows
}

func newLibraryHandler(repo *bookRepoStub) *LibraryHandler {
	svc := service.NewLibraryService(repo, studentLookupStub{}, nil, nil, validator.New(), zap.NewNop(), 30, 10)
	return NewLibraryHandler(svc)
}

func postJSON(t *testing.T, h gin.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	h(c)
	return w
}

func TestLibraryHandlerBatchIssueCreated(t *testing.T) {
	handler := newLibraryHandler(newBookRepoStub())

	w := postJSON(t, handler.BatchIssue, "/library/issues/batch", `{"student_id":"s1","book_ids":["b1"]}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestLibraryHandlerBatchIssueAllFailed(t *testing.T) {
	repo := newBookRepoStub()
	repo.noStock = true
	handler := newLibraryHandler(repo)

	w := postJSON(t, handler.BatchIssue, "/library/issues/batch", `{"student_id":"s1","book_ids":["b1"]}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "OUT_OF_STOCK")
}

func TestLibraryHandlerBatchIssueInvalidBody(t *testing.T) {
	handler := newLibraryHandler(newBookRepoStub())

	w := postJSON(t, handler.BatchIssue, "/library/issues/batch", `{"student_id":"s1"`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLibraryHandlerIssueCreated(t *testing.T) {
	handler := newLibraryHandler(newBookRepoStub())

	w := postJSON(t, handler.Issue, "/library/issues", `{"student_id":"s1","book_id":"b1"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestLibraryHandlerIssueUnknownStudent(t *testing.T) {
	handler := newLibraryHandler(newBookRepoStub())

	w := postJSON(t, handler.Issue, "/library/issues", `{"student_id":"ghost","book_id":"b1"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
