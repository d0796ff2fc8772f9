package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/studyquota/internal/quota/domain"
	"github.com/spf13/viper"
)

type featureLimitEntry struct {
	Cadence string
	Limit   int
}

// LoadFeatureLimits reads quota.features from limits.yml, falling back to the
// built-in table when no file exists. Each feature's cadence and limit can be
// overridden from STUDYQUOTA_QUOTA_FEATURES_<NAME>_<FIELD>. The result never
// changes after startup.
func LoadFeatureLimits(cfg Config) (domain.FeatureLimits, error) {
	v := viper.New()

	if path := strings.TrimSpace(cfg.Quota.LimitsFile); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("limits")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/studyquota")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return domain.FeatureLimits{}, fmt.Errorf("read limits: %w", err)
		}
		for _, limit := range domain.DefaultFeatureLimits().All() {
			v.SetDefault(featureKey(limit.Feature, "cadence"), string(limit.Cadence))
			v.SetDefault(featureKey(limit.Feature, "limit"), limit.Limit)
		}
	}

	// Nested keys are only overridable from the environment once bound, e.g.
	// STUDYQUOTA_QUOTA_FEATURES_DOUBTS_LIMIT=5.
	entries := map[string]featureLimitEntry{}
	for name := range v.GetStringMap("quota.features") {
		for _, field := range []string{"cadence", "limit"} {
			key := featureKey(name, field)
			if err := v.BindEnv(key, limitEnvName(key)); err != nil {
				return domain.FeatureLimits{}, fmt.Errorf("bind %s: %w", key, err)
			}
		}
		entries[name] = featureLimitEntry{
			Cadence: v.GetString(featureKey(name, "cadence")),
			Limit:   v.GetInt(featureKey(name, "limit")),
		}
	}

	return buildFeatureLimits(entries)
}

func featureKey(name, field string) string {
	return "quota.features." + name + "." + field
}

func limitEnvName(key string) string {
	return "STUDYQUOTA_" + strings.ToUpper(limitEnvReplacer.Replace(key))
}

var limitEnvReplacer = strings.NewReplacer(".", "_", "-", "_")

func buildFeatureLimits(entries map[string]featureLimitEntry) (domain.FeatureLimits, error) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	limits := make([]domain.FeatureLimit, 0, len(entries))
	for _, name := range names {
		entry := entries[name]
		feature := slug.Make(name)
		cadence, err := domain.ParseCadence(entry.Cadence)
		if err != nil {
			return domain.FeatureLimits{}, fmt.Errorf("feature %q: %w", feature, err)
		}
		limits = append(limits, domain.FeatureLimit{
			Feature: feature,
			Cadence: cadence,
			Limit:   entry.Limit,
		})
	}

	return domain.NewFeatureLimits(limits...)
}
