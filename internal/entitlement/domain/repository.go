package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, userID string) (*User, error)
	UpdatePremium(ctx context.Context, db *gorm.DB, userID string, until *time.Time, updatedAt time.Time) (bool, error)
}
