package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/studyquota/internal/entitlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, userID string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).
		Select("id", "role", "is_premium", "premium_expires_at", "created_at", "updated_at").
		Where("id = ?", userID).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) UpdatePremium(ctx context.Context, db *gorm.DB, userID string, until *time.Time, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"is_premium":         until != nil,
			"premium_expires_at": until,
			"updated_at":         updatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
