package handlers

import (
	"PearlDental/middlewares"
	"PearlDental/models"
	"PearlDental/services"
	"PearlDental/utils"
	"net/http"

	"github.com/gin-gonic/gin"
)

type WorkHandler struct {
	service *services.WorkService
}

func NewWorkHandler(service *services.WorkService) *WorkHandler {
	return &WorkHandler{service: service}
}

func (h *WorkHandler) CreateWork(c *gin.Context) {
	var work models.PerformedWork
	if err := c.ShouldBindJSON(&work); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	work.PatientID = c.Param("patient_id")

	if err := utils.ValidatePerformedWork(work); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.Create(c, &work); err != nil {
		middlewares.HttpError(c, "Failed to record performed work", http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, work)
}

func (h *WorkHandler) GetUnpaidWorks(c *gin.Context) {
	works, err := h.service.ListUnpaid(c, c.Param("patient_id"))
	if err != nil {
		middlewares.HttpError(c, "Failed to list unpaid works", http.StatusInternalServerError, err)
		return
	}
	middlewares.RespondJSON(c, works, http.StatusOK)
}

func (h *WorkHandler) GetAllWorks(c *gin.Context) {
	works, err := h.service.GetAllByPatient(c, c.Param("patient_id"))
	if err != nil {
		middlewares.HttpError(c, "Failed to list performed works", http.StatusInternalServerError, err)
		return
	}
	middlewares.RespondJSON(c, works, http.StatusOK)
}
