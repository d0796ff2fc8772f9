package seed

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/studyquota/internal/clock"
	"github.com/smallbiznis/studyquota/internal/config"
	entitlementdomain "github.com/smallbiznis/studyquota/internal/entitlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DemoFreeUserID    = "demo-free"
	DemoPremiumUserID = "demo-premium"
	DemoAdminUserID   = "demo-admin"

	demoPremiumPeriod = 30 * 24 * time.Hour
)

// Module seeds demo users when SEED_DEV_USERS is set outside production.
var Module = fx.Module("seed",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, clk clock.Clock, log *zap.Logger) error {
		if !cfg.SeedDevUsers {
			return nil
		}
		if cfg.IsProduction() {
			log.Warn("demo user seeding ignored in production")
			return nil
		}
		created, err := EnsureDevUsers(context.Background(), conn, clk.Now())
		if err != nil {
			return err
		}
		log.Info("demo users seeded", zap.Int("created", created))
		return nil
	}),
)

// EnsureDevUsers inserts a free, a premium and an admin user. Existing rows are
// left untouched, so reseeding never resets a premium grant.
func EnsureDevUsers(ctx context.Context, db *gorm.DB, now time.Time) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}

	now = now.UTC()
	premiumUntil := now.Add(demoPremiumPeriod)
	users := []entitlementdomain.User{
		{ID: DemoFreeUserID, Role: "user"},
		{ID: DemoPremiumUserID, Role: "user", IsPremium: true, PremiumExpiresAt: &premiumUntil},
		{ID: DemoAdminUserID, Role: "admin"},
	}

	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range users {
			users[i].CreatedAt = now
			users[i].UpdatedAt = now
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&users[i])
			if res.Error != nil {
				return res.Error
			}
			created += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}
