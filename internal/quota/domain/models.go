package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Cadence identifies the reset period of a feature's counter.
type Cadence string

const (
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)

func (c Cadence) Valid() bool {
	return c == CadenceDaily || c == CadenceWeekly
}

// ParseCadence normalizes raw into a known cadence.
func ParseCadence(raw string) (Cadence, error) {
	cadence := Cadence(strings.ToLower(strings.TrimSpace(raw)))
	if !cadence.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCadence, raw)
	}
	return cadence, nil
}

const (
	FeatureDoubts    = "doubts"
	FeatureSummaries = "summaries"
	FeatureRoadmaps  = "roadmaps"
)

// FeatureLimit is the allowance of one feature per window.
type FeatureLimit struct {
	Feature string  `json:"feature" yaml:"feature"`
	Cadence Cadence `json:"cadence" yaml:"cadence"`
	Limit   int     `json:"limit" yaml:"limit"`
}

// FeatureLimits is the validated, read-only limit table.
type FeatureLimits struct {
	byName map[string]FeatureLimit
	names  []string
}

func DefaultFeatureLimits() FeatureLimits {
	limits, _ := NewFeatureLimits(
		FeatureLimit{Feature: FeatureDoubts, Cadence: CadenceDaily, Limit: 3},
		FeatureLimit{Feature: FeatureSummaries, Cadence: CadenceDaily, Limit: 2},
		FeatureLimit{Feature: FeatureRoadmaps, Cadence: CadenceWeekly, Limit: 1},
	)
	return limits
}

func NewFeatureLimits(limits ...FeatureLimit) (FeatureLimits, error) {
	if len(limits) == 0 {
		return FeatureLimits{}, ErrEmptyLimitTable
	}

	byName := make(map[string]FeatureLimit, len(limits))
	names := make([]string, 0, len(limits))
	for _, limit := range limits {
		name := strings.TrimSpace(limit.Feature)
		if name == "" {
			return FeatureLimits{}, fmt.Errorf("%w: empty feature name", ErrInvalidLimit)
		}
		if !limit.Cadence.Valid() {
			return FeatureLimits{}, fmt.Errorf("%w: feature %q: %q", ErrInvalidCadence, name, limit.Cadence)
		}
		if limit.Limit < 1 {
			return FeatureLimits{}, fmt.Errorf("%w: feature %q: limit must be >= 1", ErrInvalidLimit, name)
		}
		if _, exists := byName[name]; exists {
			return FeatureLimits{}, fmt.Errorf("%w: feature %q declared twice", ErrInvalidLimit, name)
		}
		limit.Feature = name
		byName[name] = limit
		names = append(names, name)
	}
	sort.Strings(names)

	return FeatureLimits{byName: byName, names: names}, nil
}

func (l FeatureLimits) Lookup(feature string) (FeatureLimit, bool) {
	limit, ok := l.byName[feature]
	return limit, ok
}

// Features returns the configured feature names in sorted order.
func (l FeatureLimits) Features() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

func (l FeatureLimits) All() []FeatureLimit {
	out := make([]FeatureLimit, 0, len(l.names))
	for _, name := range l.names {
		out = append(out, l.byName[name])
	}
	return out
}

// Cadences returns each cadence used by at least one feature.
func (l FeatureLimits) Cadences() []Cadence {
	seen := make(map[Cadence]struct{}, 2)
	out := make([]Cadence, 0, 2)
	for _, name := range l.names {
		cadence := l.byName[name].Cadence
		if _, ok := seen[cadence]; ok {
			continue
		}
		seen[cadence] = struct{}{}
		out = append(out, cadence)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (l FeatureLimits) Len() int {
	return len(l.names)
}

// UsageRecord is one user's counters for one window of one cadence.
type UsageRecord struct {
	ID          snowflake.ID   `gorm:"primaryKey;autoIncrement:false"`
	UserID      string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_usage_records_window,priority:1"`
	Cadence     Cadence        `gorm:"type:varchar(16);not null;uniqueIndex:ux_usage_records_window,priority:2"`
	WindowStart time.Time      `gorm:"not null;uniqueIndex:ux_usage_records_window,priority:3"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
	Counters    []UsageCounter `gorm:"foreignKey:RecordID;references:ID"`
}

func (UsageRecord) TableName() string { return "usage_records" }

// Counts flattens the counter rows into a feature keyed map.
func (r *UsageRecord) Counts() map[string]int {
	if r == nil {
		return map[string]int{}
	}
	out := make(map[string]int, len(r.Counters))
	for _, counter := range r.Counters {
		out[counter.Feature] = counter.Count
	}
	return out
}

// UsageCounter holds the count of one feature inside a UsageRecord.
type UsageCounter struct {
	RecordID  snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Feature   string       `gorm:"primaryKey;type:varchar(64)"`
	Count     int          `gorm:"not null;default:0"`
	UpdatedAt time.Time    `gorm:"not null"`
}

func (UsageCounter) TableName() string { return "usage_counters" }

type TryIncrementRequest struct {
	UserID      string
	Cadence     Cadence
	WindowStart time.Time
	Feature     string
	Limit       int
}

func (r TryIncrementRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.UserID) == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidIncrement)
	case strings.TrimSpace(r.Feature) == "":
		return fmt.Errorf("%w: feature is required", ErrInvalidIncrement)
	case !r.Cadence.Valid():
		return fmt.Errorf("%w: cadence %q", ErrInvalidIncrement, r.Cadence)
	case r.Limit < 1:
		return fmt.Errorf("%w: limit must be >= 1", ErrInvalidIncrement)
	case r.WindowStart.IsZero():
		return fmt.Errorf("%w: window start is required", ErrInvalidIncrement)
	}
	return nil
}

type IncrementResult struct {
	Allowed   bool
	Used      int
	Remaining int
}

type Reason string

const (
	ReasonAllowed       Reason = "allowed"
	ReasonExempt        Reason = "exempt"
	ReasonLimitExceeded Reason = "limit_exceeded"
)

// GateResult is the decision of one CheckAndConsume call.
type GateResult struct {
	Allowed     bool
	Reason      Reason
	Feature     string
	Cadence     Cadence
	Used        int
	Limit       int
	Remaining   int
	WindowStart time.Time
	ResetsAt    time.Time
}

func (r GateResult) Exempt() bool {
	return r.Reason == ReasonExempt
}

// Err returns ErrLimitExceeded for a denied result and nil otherwise.
func (r GateResult) Err() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s used %d/%d", ErrLimitExceeded, r.Feature, r.Used, r.Limit)
}

// PremiumMessage is shown to exempt users in place of per-feature counts.
const PremiumMessage = "Premium user - unlimited access"

// Message is the user-facing summary of the decision.
func (r GateResult) Message() string {
	switch {
	case r.Exempt():
		return PremiumMessage
	case !r.Allowed:
		return fmt.Sprintf("You've reached your %s limit for %s. Upgrade to premium for unlimited access!", r.Cadence, r.Feature)
	case r.Remaining <= 0:
		return fmt.Sprintf("You've reached your %s limit for %s!", r.Cadence, r.Feature)
	default:
		return fmt.Sprintf("%s used: %d/%d (%d remaining)", r.Feature, r.Used, r.Limit, r.Remaining)
	}
}

// UsageSnapshot is a read-only view of a user's current windows.
type UsageSnapshot struct {
	UserID    string
	IsPremium bool
	Counts    map[string]int
	Limits    []FeatureLimit
	ResetsAt  map[Cadence]time.Time
}
