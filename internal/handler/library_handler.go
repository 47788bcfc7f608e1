package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/campus-api/internal/middleware"
	"github.com/campuskit/campus-api/internal/models"
	"github.com/campuskit/campus-api/internal/service"
	appErrors "github.com/campuskit/campus-api/pkg/errors"
	"github.com/campuskit/campus-api/pkg/response"
)

// LibraryHandler exposes book catalog and issuance endpoints.
type LibraryHandler struct {
	library *service.LibraryService
}

// NewLibraryHandler constructs LibraryHandler.
func NewLibraryHandler(library *service.LibraryService) *LibraryHandler {
	return &LibraryHandler{library: library}
}

// ListBooks godoc
// @Summary List catalog entries
// @Tags Library
// @Produce json
// @Param search query string false "Search by title or author"
// @Param category query string false "Filter by category"
// @Param classLevel query string false "Filter by class level"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /library/books [get]
func (h *LibraryHandler) ListBooks(c *gin.Context) {
	var filter models.BookFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Category = c.Query("category")
	filter.ClassLevel = c.Query("classLevel")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	books, pagination, cacheHit, err := h.library.ListBooks(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, books, pagination)
}

// GetBook godoc
// @Summary Get catalog entry detail
// @Tags Library
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Router /library/books/{id} [get]
func (h *LibraryHandler) GetBook(c *gin.Context) {
	book, err := h.library.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// CreateBook godoc
// @Summary Add a catalog entry
// @Tags Library
// @Accept json
// @Produce json
// @Param payload body service.CreateBookRequest true "Book payload"
// @Success 201 {object} response.Envelope
// @Router /library/books [post]
func (h *LibraryHandler) CreateBook(c *gin.Context) {
	var req service.CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	book, err := h.library.CreateBook(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, book)
}

// UpdateBook godoc
// @Summary Edit a catalog entry
// @Tags Library
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param payload body service.UpdateBookRequest true "Book payload"
// @Success 200 {object} response.Envelope
// @Router /library/books/{id} [put]
func (h *LibraryHandler) UpdateBook(c *gin.Context) {
	var req service.UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	book, err := h.library.UpdateBook(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// DeleteBook godoc
// @Summary Remove a catalog entry
// @Tags Library
// @Produce json
// @Param id path string true "Book ID"
// @Success 204
// @Router /library/books/{id} [delete]
func (h *LibraryHandler) DeleteBook(c *gin.Context) {
	if err := h.library.DeleteBook(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListIssues godoc
// @Summary List assignment records
// @Tags Library
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param bookId query string false "Filter by book"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /library/issues [get]
func (h *LibraryHandler) ListIssues(c *gin.Context) {
	var filter models.BookIssueFilter
	filter.StudentID = c.Query("studentId")
	filter.BookID = c.Query("bookId")
	filter.Status = models.IssueStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	issues, pagination, err := h.library.ListIssues(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issues, pagination)
}

// GetIssue godoc
// @Summary Get assignment record detail
// @Tags Library
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Router /library/issues/{id} [get]
func (h *LibraryHandler) GetIssue(c *gin.Context) {
	issue, err := h.library.GetIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// Issue godoc
// @Summary Issue a book to a student
// @Tags Library
// @Accept json
// @Produce json
// @Param payload body service.IssueBookRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Router /library/issues [post]
func (h *LibraryHandler) Issue(c *gin.Context) {
	var req service.IssueBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	issue, err := h.library.IssueBook(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, issue)
}

// BatchIssue godoc
// @Summary Issue several books to one student
// @Tags Library
// @Accept json
// @Produce json
// @Param payload body service.BatchIssueBooksRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /library/issues/batch [post]
func (h *LibraryHandler) BatchIssue(c *gin.Context) {
	var req service.BatchIssueBooksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.library.BatchIssueBooks(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if len(result.Issued) == 0 {
		status = http.StatusConflict
	}
	response.JSON(c, status, result, nil)
}

// Return godoc
// @Summary Return a book
// @Tags Library
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body service.ReturnBookRequest true "Return payload"
// @Success 200 {object} response.Envelope
// @Router /library/issues/{id}/return [post]
func (h *LibraryHandler) Return(c *gin.Context) {
	var req service.ReturnBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	issue, err := h.library.ReturnBook(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}
