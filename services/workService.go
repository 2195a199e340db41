package services

import (
	"PearlDental/models"
	"PearlDental/repositories"
	"context"
)

type WorkService struct {
	repository *repositories.WorkRepository
}

func NewWorkService(repository *repositories.WorkRepository) *WorkService {
	return &WorkService{repository: repository}
}

func (s *WorkService) Create(ctx context.Context, work *models.PerformedWork) error {
	return s.repository.Create(ctx, work)
}

func (s *WorkService) ListUnpaid(ctx context.Context, patientID string) ([]models.PerformedWork, error) {
	return s.repository.ListUnpaid(ctx, patientID)
}

func (s *WorkService) GetAllByPatient(ctx context.Context, patientID string) ([]models.PerformedWork, error) {
	return s.repository.GetAllByPatient(ctx, patientID)
}
