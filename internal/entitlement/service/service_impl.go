package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/studyquota/internal/clock"
	"github.com/smallbiznis/studyquota/internal/entitlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("entitlement.service"),
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Get(ctx context.Context, userID string) (domain.Entitlement, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Entitlement{}, domain.ErrUserNotFound
	}

	user, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	if user == nil {
		return domain.Entitlement{}, domain.ErrUserNotFound
	}
	return domain.FromUser(*user), nil
}

// IsExempt reports an active paid subscription. Errors are never treated as exempt.
func (s *Service) IsExempt(ctx context.Context, userID string) (bool, error) {
	ent, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return ent.IsActivePremium(s.clock.Now()), nil
}

// GrantPremium marks the user as paid until the given instant.
func (s *Service) GrantPremium(ctx context.Context, userID string, until time.Time) (domain.Entitlement, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Entitlement{}, domain.ErrInvalidUser
	}
	now := s.clock.Now()
	if !until.After(now) {
		return domain.Entitlement{}, domain.ErrInvalidUntil
	}

	until = until.UTC()
	updated, err := s.repo.UpdatePremium(ctx, s.db, userID, &until, now)
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	if !updated {
		return domain.Entitlement{}, domain.ErrUserNotFound
	}

	s.log.Info("premium granted",
		zap.String("user_id", userID),
		zap.Time("premium_expires_at", until),
	)
	return s.Get(ctx, userID)
}
