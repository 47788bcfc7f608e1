package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/campus-api/internal/models"
	"github.com/campuskit/campus-api/internal/service"
	appErrors "github.com/campuskit/campus-api/pkg/errors"
	"github.com/campuskit/campus-api/pkg/response"
)

// FeeHandler exposes fee ledger and payment endpoints.
type FeeHandler struct {
	fees *service.FeeService
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(fees *service.FeeService) *FeeHandler {
	return &FeeHandler{fees: fees}
}

// List godoc
// @Summary List fee ledgers
// @Tags Fees
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param classId query string false "Filter by class"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /fees [get]
func (h *FeeHandler) List(c *gin.Context) {
	filter := feeFilterFromQuery(c)
	ledgers, pagination, err := h.fees.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ledgers, pagination)
}

// Get godoc
// @Summary Get a fee ledger with payment history
// @Tags Fees
// @Produce json
// @Param id path string true "Ledger ID"
// @Success 200 {object} response.Envelope
// @Router /fees/{id} [get]
func (h *FeeHandler) Get(c *gin.Context) {
	ledger, payments, err := h.fees.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"ledger": ledger, "payments": payments}, nil)
}

// Create godoc
// @Summary Open a fee ledger for a student
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body service.CreateFeeLedgerRequest true "Ledger payload"
// @Success 201 {object} response.Envelope
// @Router /fees [post]
func (h *FeeHandler) Create(c *gin.Context) {
	var req service.CreateFeeLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	ledger, err := h.fees.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ledger)
}

// RecordPayment godoc
// @Summary Record a payment against a ledger
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Ledger ID"
// @Param payload body service.RecordPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Router /fees/{id}/payments [post]
func (h *FeeHandler) RecordPayment(c *gin.Context) {
	var req service.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	payment, ledger, err := h.fees.RecordPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"payment": payment, "ledger": ledger})
}

// Receipt godoc
// @Summary Download a PDF receipt for one payment
// @Tags Fees
// @Produce application/pdf
// @Param id path string true "Ledger ID"
// @Param txn path string true "Transaction ID"
// @Success 200
// @Router /fees/{id}/payments/{txn}/receipt [get]
func (h *FeeHandler) Receipt(c *gin.Context) {
	payload, err := h.fees.Receipt(c.Request.Context(), c.Param("id"), c.Param("txn"))
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("receipt-%s.pdf", c.Param("txn"))
	response.File(c, "application/pdf", filename, payload)
}

// Export godoc
// @Summary Export the filtered ledger list as CSV
// @Tags Fees
// @Produce text/csv
// @Param studentId query string false "Filter by student"
// @Param classId query string false "Filter by class"
// @Param status query string false "Filter by status"
// @Success 200
// @Router /fees/export [get]
func (h *FeeHandler) Export(c *gin.Context) {
	filter := feeFilterFromQuery(c)
	payload, err := h.fees.ExportCSV(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("fees-%s.csv", time.Now().UTC().Format("20060102"))
	response.File(c, "text/csv", filename, payload)
}

func feeFilterFromQuery(c *gin.Context) models.FeeFilter {
	var filter models.FeeFilter
	filter.StudentID = c.Query("studentId")
	filter.ClassID = c.Query("classId")
	filter.Status = models.FeeStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	return filter
}
