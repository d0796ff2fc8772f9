package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smallbiznis/studyquota/internal/quota/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLimits(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "limits.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write limits: %v", err)
	}
	return path
}

func TestLoadFeatureLimitsFromFile(t *testing.T) {
	path := writeLimits(t, `
quota:
  features:
    doubts:
      cadence: daily
      limit: 5
    Roadmaps:
      cadence: WEEKLY
      limit: 2
`)

	limits, err := LoadFeatureLimits(Config{Quota: QuotaConfig{LimitsFile: path}})
	require.NoError(t, err)

	assert.Equal(t, []string{"doubts", "roadmaps"}, limits.Features())
	doubts, ok := limits.Lookup("doubts")
	require.True(t, ok)
	assert.Equal(t, domain.CadenceDaily, doubts.Cadence)
	assert.Equal(t, 5, doubts.Limit)

	roadmaps, ok := limits.Lookup("roadmaps")
	require.True(t, ok)
	assert.Equal(t, domain.CadenceWeekly, roadmaps.Cadence)

	_, ok = limits.Lookup("summaries")
	assert.False(t, ok)
}

func TestLoadFeatureLimitsRejectsInvalidEntries(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{
			name: "unknown cadence",
			body: "quota:\n  features:\n    doubts:\n      cadence: monthly\n      limit: 1\n",
			want: domain.ErrInvalidCadence,
		},
		{
			name: "zero limit",
			body: "quota:\n  features:\n    doubts:\n      cadence: daily\n      limit: 0\n",
			want: domain.ErrInvalidLimit,
		},
		{
			name: "empty table",
			body: "quota:\n  features: {}\n",
			want: domain.ErrEmptyLimitTable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFeatureLimits(Config{Quota: QuotaConfig{LimitsFile: writeLimits(t, tc.body)}})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestLoadFeatureLimitsDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	limits, err := LoadFeatureLimits(Config{})
	require.NoError(t, err)

	want := domain.DefaultFeatureLimits().All()
	assert.Equal(t, want, limits.All())
}

func TestLoadFeatureLimitsEnvOverridesFile(t *testing.T) {
	path := writeLimits(t, `
quota:
  features:
    doubts:
      cadence: daily
      limit: 3
    roadmaps:
      cadence: weekly
      limit: 1
`)
	t.Setenv("STUDYQUOTA_QUOTA_FEATURES_DOUBTS_LIMIT", "9")
	t.Setenv("STUDYQUOTA_QUOTA_FEATURES_ROADMAPS_CADENCE", "daily")

	limits, err := LoadFeatureLimits(Config{Quota: QuotaConfig{LimitsFile: path}})
	require.NoError(t, err)

	doubts, ok := limits.Lookup("doubts")
	require.True(t, ok)
	assert.Equal(t, 9, doubts.Limit)
	assert.Equal(t, domain.CadenceDaily, doubts.Cadence)

	roadmaps, ok := limits.Lookup("roadmaps")
	require.True(t, ok)
	assert.Equal(t, domain.CadenceDaily, roadmaps.Cadence)
	assert.Equal(t, 1, roadmaps.Limit)
}

func TestLoadFeatureLimitsEnvOverridesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STUDYQUOTA_QUOTA_FEATURES_SUMMARIES_LIMIT", "4")

	limits, err := LoadFeatureLimits(Config{})
	require.NoError(t, err)

	summaries, ok := limits.Lookup("summaries")
	require.True(t, ok)
	assert.Equal(t, 4, summaries.Limit)

	doubts, ok := limits.Lookup("doubts")
	require.True(t, ok)
	assert.Equal(t, 3, doubts.Limit)
}

func TestLoadFeatureLimitsRejectsInvalidEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STUDYQUOTA_QUOTA_FEATURES_DOUBTS_LIMIT", "0")

	_, err := LoadFeatureLimits(Config{})
	assert.True(t, errors.Is(err, domain.ErrInvalidLimit), "got %v", err)
}
