package controllers

import (
	"PearlDental/handlers"
	"PearlDental/middlewares"

	"github.com/gin-gonic/gin"
)

// SetupLedgerRoutes registers the patient ledger and supporting routes.
// Mutating routes require a staff session token.
func SetupLedgerRoutes(router *gin.Engine, patientHandler *handlers.PatientHandler, workHandler *handlers.WorkHandler, ledgerHandler *handlers.LedgerHandler) {
	staff := middlewares.StaffAuthMiddleware("Admin", "Doctor", "Receptionist")

	router.POST("/patients", staff, patientHandler.CreatePatient)
	router.GET("/patients", patientHandler.GetAllPatients)
	router.GET("/patients/:patient_id", patientHandler.GetPatientByID)

	router.POST("/patients/:patient_id/works", staff, workHandler.CreateWork)
	router.GET("/patients/:patient_id/works", workHandler.GetAllWorks)
	router.GET("/patients/:patient_id/works/unpaid", workHandler.GetUnpaidWorks)

	router.GET("/patients/:patient_id/ledger", ledgerHandler.GetLedgerView)
	router.POST("/patients/:patient_id/payments", staff, ledgerHandler.SubmitPayment)
	router.GET("/patients/:patient_id/payments", ledgerHandler.GetPayments)
}
