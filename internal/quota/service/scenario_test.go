package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/studyquota/internal/clock"
	entitlementdomain "github.com/smallbiznis/studyquota/internal/entitlement/domain"
	entitlementrepo "github.com/smallbiznis/studyquota/internal/entitlement/repository"
	entitlementservice "github.com/smallbiznis/studyquota/internal/entitlement/service"
	"github.com/smallbiznis/studyquota/internal/quota/domain"
	"github.com/smallbiznis/studyquota/internal/quota/repository"
	"github.com/smallbiznis/studyquota/internal/quota/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type scenario struct {
	gate  domain.Service
	db    *gorm.DB
	clock *clock.FakeClock
}

func setupScenario(t *testing.T, start time.Time) *scenario {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_loc=auto", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	require.NoError(t, db.AutoMigrate(&entitlementdomain.User{}, &domain.UsageRecord{}, &domain.UsageCounter{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(start)
	ents := entitlementservice.New(entitlementservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  entitlementrepo.Provide(),
		Clock: fake,
	})

	gate := NewService(ServiceParam{
		Log:          zap.NewNop(),
		Limits:       domain.DefaultFeatureLimits(),
		Calculator:   window.New(time.UTC),
		Store:        repository.NewGormStore(db, node, zap.NewNop(), nil),
		Entitlements: ents,
	})
	return &scenario{gate: gate, db: db, clock: fake}
}

func (s *scenario) addUser(t *testing.T, user entitlementdomain.User) {
	t.Helper()
	user.Role = "user"
	user.CreatedAt = s.clock.Now()
	user.UpdatedAt = s.clock.Now()
	require.NoError(t, s.db.Create(&user).Error)
}

func (s *scenario) consume(t *testing.T, userID, feature string) domain.GateResult {
	t.Helper()
	res, err := s.gate.CheckAndConsume(context.Background(), userID, feature, s.clock.Now())
	require.NoError(t, err)
	return res
}

func TestSummariesResetNextDay(t *testing.T) {
	s := setupScenario(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	s.addUser(t, entitlementdomain.User{ID: "student"})

	first := s.consume(t, "student", "summaries")
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)

	s.clock.Advance(4 * time.Hour)
	second := s.consume(t, "student", "summaries")
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	s.clock.Advance(10 * time.Hour)
	third := s.consume(t, "student", "summaries")
	assert.False(t, third.Allowed)
	assert.Equal(t, domain.ReasonLimitExceeded, third.Reason)
	assert.Equal(t, 2, third.Used)

	s.clock.Set(time.Date(2024, 3, 6, 0, 0, 1, 0, time.UTC))
	next := s.consume(t, "student", "summaries")
	assert.True(t, next.Allowed)
	assert.Equal(t, 1, next.Used)
}

func TestRoadmapsResetOnSunday(t *testing.T) {
	s := setupScenario(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	s.addUser(t, entitlementdomain.User{ID: "student"})

	tuesday := s.consume(t, "student", "roadmaps")
	assert.True(t, tuesday.Allowed)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), tuesday.ResetsAt)

	s.clock.Set(time.Date(2024, 3, 9, 23, 59, 59, 0, time.UTC))
	saturday := s.consume(t, "student", "roadmaps")
	assert.False(t, saturday.Allowed)

	s.clock.Set(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	sunday := s.consume(t, "student", "roadmaps")
	assert.True(t, sunday.Allowed)
	assert.Equal(t, 1, sunday.Used)
}

func TestFeaturesDoNotShareCounters(t *testing.T) {
	s := setupScenario(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	s.addUser(t, entitlementdomain.User{ID: "student"})

	for i := 0; i < 3; i++ {
		assert.True(t, s.consume(t, "student", "doubts").Allowed)
	}
	assert.False(t, s.consume(t, "student", "doubts").Allowed)
	assert.True(t, s.consume(t, "student", "summaries").Allowed)
	assert.True(t, s.consume(t, "student", "roadmaps").Allowed)
}

func TestPremiumExpiryMidWindow(t *testing.T) {
	start := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)
	s := setupScenario(t, start)
	until := start.Add(2 * time.Hour)
	s.addUser(t, entitlementdomain.User{ID: "vip", IsPremium: true, PremiumExpiresAt: &until})

	for i := 0; i < 5; i++ {
		res := s.consume(t, "vip", "summaries")
		assert.True(t, res.Exempt())
	}

	s.clock.Set(until)
	res := s.consume(t, "vip", "summaries")
	assert.Equal(t, domain.ReasonAllowed, res.Reason)
	assert.Equal(t, 1, res.Used, "exempt calls must not have been counted")
}

func TestConcurrentCheckAndConsume(t *testing.T) {
	s := setupScenario(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	s.addUser(t, entitlementdomain.User{ID: "student"})

	const callers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	now := s.clock.Now()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.gate.CheckAndConsume(context.Background(), "student", "doubts", now)
			if err != nil {
				t.Errorf("check: %v", err)
				return
			}
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, allowed)
}

func TestSnapshotIsReadOnly(t *testing.T) {
	s := setupScenario(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	s.addUser(t, entitlementdomain.User{ID: "student"})
	ctx := context.Background()

	empty, err := s.gate.Snapshot(ctx, "student", s.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"doubts": 0, "summaries": 0, "roadmaps": 0}, empty.Counts)
	assert.False(t, empty.IsPremium)

	var records int64
	require.NoError(t, s.db.Model(&domain.UsageRecord{}).Count(&records).Error)
	assert.Zero(t, records)

	s.consume(t, "student", "doubts")
	s.consume(t, "student", "roadmaps")

	for i := 0; i < 3; i++ {
		snap, err := s.gate.Snapshot(ctx, "student", s.clock.Now())
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"doubts": 1, "summaries": 0, "roadmaps": 1}, snap.Counts)
		assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), snap.ResetsAt[domain.CadenceDaily])
		assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), snap.ResetsAt[domain.CadenceWeekly])
	}

	s.clock.Set(time.Date(2024, 3, 6, 1, 0, 0, 0, time.UTC))
	nextDay, err := s.gate.Snapshot(ctx, "student", s.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, nextDay.Counts["doubts"])
	assert.Equal(t, 1, nextDay.Counts["roadmaps"])
}

func TestSnapshotPremiumReportsZeros(t *testing.T) {
	start := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	s := setupScenario(t, start)
	until := start.AddDate(0, 0, 30)
	s.addUser(t, entitlementdomain.User{ID: "vip", IsPremium: true, PremiumExpiresAt: &until})

	s.consume(t, "vip", "doubts")
	snap, err := s.gate.Snapshot(context.Background(), "vip", s.clock.Now())
	require.NoError(t, err)
	assert.True(t, snap.IsPremium)
	assert.Equal(t, 0, snap.Counts["doubts"])
}

func TestSnapshotUnknownUser(t *testing.T) {
	s := setupScenario(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	_, err := s.gate.Snapshot(context.Background(), "ghost", s.clock.Now())
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}
