package utils

import (
	"PearlDental/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// ValidatePatientData validates a patient payload before it reaches the store.
func ValidatePatientData(patient models.Patient) error {
	return validation.ValidateStruct(&patient,
		validation.Field(&patient.ID, validation.Required),
		validation.Field(&patient.ClinicID, validation.Required),
		validation.Field(&patient.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&patient.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&patient.Email, is.Email),
	)
}

// ValidatePerformedWork validates a billable item payload.
func ValidatePerformedWork(work models.PerformedWork) error {
	return validation.ValidateStruct(&work,
		validation.Field(&work.PatientID, validation.Required),
		validation.Field(&work.ServiceName, validation.Required, validation.Length(1, 200)),
		validation.Field(&work.Price, validation.Required, validation.Min(int64(1))),
		validation.Field(&work.Quantity, validation.Min(0)),
		validation.Field(&work.ToothNumber, validation.By(validateToothNumber)),
	)
}

func validateToothNumber(value interface{}) error {
	tooth, _ := value.(*int)
	if tooth == nil {
		return nil
	}
	// FDI two-digit notation: quadrants 1-4, positions 1-8.
	quadrant := *tooth / 10
	position := *tooth % 10
	if quadrant < 1 || quadrant > 4 || position < 1 || position > 8 {
		return validation.NewError("validation_tooth_number", "tooth number must use FDI notation (11-48)")
	}
	return nil
}
