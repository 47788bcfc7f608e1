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

// UniformHandler exposes uniform catalog and issuance endpoints.
type UniformHandler struct {
	uniforms *service.UniformService
}

// NewUniformHandler constructs UniformHandler.
func NewUniformHandler(uniforms *service.UniformService) *UniformHandler {
	return &UniformHandler{uniforms: uniforms}
}

// ListItems godoc
// @Summary List uniform articles
// @Tags Uniforms
// @Produce json
// @Param search query string false "Search by name"
// @Param size query string false "Filter by size"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /uniforms [get]
func (h *UniformHandler) ListItems(c *gin.Context) {
	var filter models.UniformFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Size = c.Query("size")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	items, pagination, cacheHit, err := h.uniforms.ListItems(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetItem godoc
// @Summary Get uniform article detail
// @Tags Uniforms
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Router /uniforms/{id} [get]
func (h *UniformHandler) GetItem(c *gin.Context) {
	item, err := h.uniforms.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// CreateItem godoc
// @Summary Add a uniform article
// @Tags Uniforms
// @Accept json
// @Produce json
// @Param payload body service.CreateUniformRequest true "Uniform payload"
// @Success 201 {object} response.Envelope
// @Router /uniforms [post]
func (h *UniformHandler) CreateItem(c *gin.Context) {
	var req service.CreateUniformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	item, err := h.uniforms.CreateItem(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateItem godoc
// @Summary Edit a uniform article
// @Tags Uniforms
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param payload body service.UpdateUniformRequest true "Uniform payload"
// @Success 200 {object} response.Envelope
// @Router /uniforms/{id} [put]
func (h *UniformHandler) UpdateItem(c *gin.Context) {
	var req service.UpdateUniformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	item, err := h.uniforms.UpdateItem(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteItem godoc
// @Summary Remove a uniform article
// @Tags Uniforms
// @Produce json
// @Param id path string true "Item ID"
// @Success 204
// @Router /uniforms/{id} [delete]
func (h *UniformHandler) DeleteItem(c *gin.Context) {
	if err := h.uniforms.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListIssues godoc
// @Summary List uniform assignment records
// @Tags Uniforms
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param itemId query string false "Filter by item"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /uniforms/issues [get]
func (h *UniformHandler) ListIssues(c *gin.Context) {
	var filter models.UniformIssueFilter
	filter.StudentID = c.Query("studentId")
	filter.ItemID = c.Query("itemId")
	filter.Status = models.IssueStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	issues, pagination, err := h.uniforms.ListIssues(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issues, pagination)
}

// GetIssue godoc
// @Summary Get uniform assignment record detail
// @Tags Uniforms
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Router /uniforms/issues/{id} [get]
func (h *UniformHandler) GetIssue(c *gin.Context) {
	issue, err := h.uniforms.GetIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// Issue godoc
// @Summary Issue a uniform article to a student
// @Tags Uniforms
// @Accept json
// @Produce json
// @Param payload body service.IssueUniformRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Router /uniforms/issues [post]
func (h *UniformHandler) Issue(c *gin.Context) {
	var req service.IssueUniformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	issue, err := h.uniforms.IssueItem(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, issue)
}

// BatchIssue godoc
// @Summary Issue several uniform articles to one student
// @Tags Uniforms
// @Accept json
// @Produce json
// @Param payload body service.BatchIssueUniformsRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /uniforms/issues/batch [post]
func (h *UniformHandler) BatchIssue(c *gin.Context) {
	var req service.BatchIssueUniformsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.uniforms.BatchIssueItems(c.Request.Context(), req)
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
// @Summary Return a uniform article
// @Tags Uniforms
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body service.ReturnUniformRequest true "Return payload"
// @Success 200 {object} response.Envelope
// @Router /uniforms/issues/{id}/return [post]
func (h *UniformHandler) Return(c *gin.Context) {
	var req service.ReturnUniformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	issue, err := h.uniforms.ReturnItem(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}
