package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/studyquota/internal/clock"
	"github.com/smallbiznis/studyquota/internal/entitlement/domain"
	"github.com/smallbiznis/studyquota/internal/entitlement/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseNow = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

func setupEntitlementService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:entitlement_%d?mode=memory&cache=shared&_loc=auto", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&domain.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	fake := clock.NewFakeClock(baseNow)
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Clock: fake,
	})
	return svc, db, fake
}

func seedUser(t *testing.T, db *gorm.DB, user domain.User) {
	t.Helper()
	user.CreatedAt = baseNow
	user.UpdatedAt = baseNow
	if user.Role == "" {
		user.Role = "user"
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user %s: %v", user.ID, err)
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestIsExempt(t *testing.T) {
	svc, db, _ := setupEntitlementService(t)

	seedUser(t, db, domain.User{ID: "free"})
	seedUser(t, db, domain.User{ID: "paid", IsPremium: true, PremiumExpiresAt: timePtr(baseNow.Add(24 * time.Hour))})
	seedUser(t, db, domain.User{ID: "lapsed", IsPremium: true, PremiumExpiresAt: timePtr(baseNow.Add(-time.Minute))})
	seedUser(t, db, domain.User{ID: "expires-now", IsPremium: true, PremiumExpiresAt: timePtr(baseNow)})
	seedUser(t, db, domain.User{ID: "no-expiry", IsPremium: true})

	cases := map[string]bool{
		"free":        false,
		"paid":        true,
		"lapsed":      false,
		"expires-now": false,
		"no-expiry":   false,
	}
	for userID, want := range cases {
		t.Run(userID, func(t *testing.T) {
			got, err := svc.IsExempt(context.Background(), userID)
			if err != nil {
				t.Fatalf("is exempt: %v", err)
			}
			if got != want {
				t.Fatalf("expected exempt=%v, got %v", want, got)
			}
		})
	}
}

func TestIsExemptFollowsClock(t *testing.T) {
	svc, db, fake := setupEntitlementService(t)
	seedUser(t, db, domain.User{ID: "paid", IsPremium: true, PremiumExpiresAt: timePtr(baseNow.Add(time.Hour))})

	if exempt, err := svc.IsExempt(context.Background(), "paid"); err != nil || !exempt {
		t.Fatalf("expected exempt before expiry, exempt=%v err=%v", exempt, err)
	}

	fake.Advance(2 * time.Hour)
	if exempt, err := svc.IsExempt(context.Background(), "paid"); err != nil || exempt {
		t.Fatalf("expected quota to apply after expiry, exempt=%v err=%v", exempt, err)
	}
}

func TestUnknownUser(t *testing.T) {
	svc, _, _ := setupEntitlementService(t)

	for _, userID := range []string{"ghost", "", "   "} {
		exempt, err := svc.IsExempt(context.Background(), userID)
		if !errors.Is(err, domain.ErrUserNotFound) {
			t.Fatalf("user %q: expected ErrUserNotFound, got %v", userID, err)
		}
		if exempt {
			t.Fatalf("user %q: unknown users must never be exempt", userID)
		}
	}
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	svc, db, _ := setupEntitlementService(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	_ = sqlDB.Close()

	exempt, err := svc.IsExempt(context.Background(), "paid")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if exempt {
		t.Fatalf("a failed lookup must never exempt")
	}
}

func TestGrantPremium(t *testing.T) {
	svc, db, _ := setupEntitlementService(t)
	seedUser(t, db, domain.User{ID: "free"})

	until := baseNow.Add(30 * 24 * time.Hour)
	ent, err := svc.GrantPremium(context.Background(), "free", until)
	if err != nil {
		t.Fatalf("grant premium: %v", err)
	}
	if !ent.IsPremium || ent.PremiumExpiresAt == nil || !ent.PremiumExpiresAt.Equal(until) {
		t.Fatalf("unexpected entitlement: %+v", ent)
	}

	if _, err := svc.GrantPremium(context.Background(), "ghost", until); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.GrantPremium(context.Background(), "free", baseNow.Add(-time.Hour)); !errors.Is(err, domain.ErrInvalidUntil) {
		t.Fatalf("expected ErrInvalidUntil, got %v", err)
	}
}
