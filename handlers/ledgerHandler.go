package handlers

import (
	"PearlDental/middlewares"
	"PearlDental/models"
	"PearlDental/services"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type LedgerHandler struct {
	service *services.LedgerService
}

func NewLedgerHandler(service *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{service: service}
}

// GetLedgerView returns balances, unpaid items, the discount default, and a
// fresh submission key for the payment screen.
func (h *LedgerHandler) GetLedgerView(c *gin.Context) {
	patientID := c.Param("patient_id")
	view, err := h.service.View(c, patientID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

// SubmitPayment runs one composed payment submission.
func (h *LedgerHandler) SubmitPayment(c *gin.Context) {
	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.PatientID = c.Param("patient_id")

	result, err := h.service.Submit(c, req)
	if err != nil {
		status, payload := submissionErrorResponse(err, result)
		c.JSON(status, payload)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// GetPayments returns the patient's payment history with allocations.
func (h *LedgerHandler) GetPayments(c *gin.Context) {
	payments, err := h.service.Payments(c, c.Param("patient_id"))
	if err != nil {
		middlewares.HttpError(c, "Failed to list payments", http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

// submissionErrorResponse maps ledger error kinds onto HTTP responses. Partial
// failures carry the committed lines and the rotated submission key so the
// client can show what went through and retry the rest safely.
func submissionErrorResponse(err error, result *services.SubmitResult) (int, gin.H) {
	payload := gin.H{"error": err.Error()}
	if result != nil {
		payload["committed"] = result.Committed
		if result.NewSubmissionKey != "" {
			payload["new_submission_key"] = result.NewSubmissionKey
		}
	}

	var insufficient *models.InsufficientBalanceError
	var outOfRange *models.AmountOutOfRangeError
	var conflict *models.StoreConflictError
	var partial *models.PartialSubmissionError

	switch {
	case errors.As(err, &partial):
		return http.StatusConflict, payload
	case errors.As(err, &insufficient):
		payload["pool"] = insufficient.Pool
		return http.StatusUnprocessableEntity, payload
	case errors.As(err, &outOfRange):
		return http.StatusBadRequest, payload
	case errors.As(err, &conflict):
		return http.StatusConflict, payload
	default:
		return http.StatusBadRequest, payload
	}
}
