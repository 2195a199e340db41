package repositories

import (
	"PearlDental/database"
	"PearlDental/models"
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrUserNotFound is returned when no user matches the given username.
var ErrUserNotFound = errors.New("user not found")

type AuthRepository struct{}

func NewAuthRepository() *AuthRepository {
	return &AuthRepository{}
}

func (r *AuthRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := database.DB.WithContext(ctx).First(&user, "username = ?", username).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
