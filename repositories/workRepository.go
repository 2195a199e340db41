package repositories

import (
	"PearlDental/cache"
	"PearlDental/database"
	"PearlDental/models"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// WorkRepository stores performed clinical work (the billable items).
type WorkRepository struct {
	cache *cache.Cache
}

func NewWorkRepository(cache *cache.Cache) *WorkRepository {
	return &WorkRepository{cache: cache}
}

func (r *WorkRepository) Create(ctx context.Context, work *models.PerformedWork) error {
	// Check if the patient exists
	var patient models.Patient
	if err := database.DB.WithContext(ctx).First(&patient, "id = ?", work.PatientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("patient not found")
		}
		return fmt.Errorf("failed to find patient: %w", err)
	}

	if work.Quantity <= 0 {
		work.Quantity = 1
	}
	work.ClinicID = patient.ClinicID
	work.CollectedAmount = 0

	if err := database.DB.WithContext(ctx).Create(work).Error; err != nil {
		return fmt.Errorf("failed to create performed work: %w", err)
	}
	return nil
}

func (r *WorkRepository) GetByID(ctx context.Context, id uint) (*models.PerformedWork, error) {
	var work models.PerformedWork
	err := database.DB.WithContext(ctx).First(&work, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrWorkNotFound
		}
		return nil, fmt.Errorf("failed to get performed work: %w", err)
	}
	return &work, nil
}

// ListUnpaid returns the patient's items with outstanding amount > 0, in
// creation order. The allocation engine relies on this order as its tie-break,
// so the ordering must stay stable.
func (r *WorkRepository) ListUnpaid(ctx context.Context, patientID string) ([]models.PerformedWork, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var works []models.PerformedWork
	err := database.DB.WithContext(ctx).
		Where("patient_id = ? AND price * quantity > collected_amount", patientID).
		Order("created_at ASC, id ASC").
		Find(&works).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unpaid works: %w", err)
	}
	return works, nil
}

func (r *WorkRepository) GetAllByPatient(ctx context.Context, patientID string) ([]models.PerformedWork, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var works []models.PerformedWork
	err := database.DB.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at ASC, id ASC").
		Find(&works).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list performed works: %w", err)
	}
	return works, nil
}
