package seed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	entitlementdomain "github.com/smallbiznis/studyquota/internal/entitlement/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEnsureDevUsers(t *testing.T) {
	dsn := fmt.Sprintf("file:seed_%d?mode=memory&cache=shared&_loc=auto", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&entitlementdomain.User{}))

	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	created, err := EnsureDevUsers(context.Background(), db, now)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	var premium entitlementdomain.User
	require.NoError(t, db.First(&premium, "id = ?", DemoPremiumUserID).Error)
	assert.True(t, entitlementdomain.FromUser(premium).IsActivePremium(now))

	var admin entitlementdomain.User
	require.NoError(t, db.First(&admin, "id = ?", DemoAdminUserID).Error)
	assert.Equal(t, "admin", admin.Role)

	created, err = EnsureDevUsers(context.Background(), db, now.Add(90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	require.NoError(t, db.First(&premium, "id = ?", DemoPremiumUserID).Error)
	assert.True(t, entitlementdomain.FromUser(premium).IsActivePremium(now), "reseeding must not touch existing rows")
}

func TestEnsureDevUsersRequiresDB(t *testing.T) {
	_, err := EnsureDevUsers(context.Background(), nil, time.Now())
	assert.Error(t, err)
}
