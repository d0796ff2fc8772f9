package window

import (
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/studyquota/internal/config"
	"github.com/smallbiznis/studyquota/internal/quota/domain"
)

// Calculator maps an instant to the start of its daily or weekly window.
// Boundaries are local midnights in the reference location; weeks start on Sunday.
type Calculator struct {
	loc *time.Location
}

func New(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{loc: loc}
}

// NewFromConfig resolves the reference timezone from QUOTA_TIMEZONE.
func NewFromConfig(cfg config.Config) (*Calculator, error) {
	name := strings.TrimSpace(cfg.Quota.Timezone)
	if name == "" {
		return New(time.UTC), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load quota timezone %q: %w", name, err)
	}
	return New(loc), nil
}

func (c *Calculator) Location() *time.Location {
	return c.loc
}

// Start returns the UTC instant at which the window containing now began.
func (c *Calculator) Start(cadence domain.Cadence, now time.Time) (time.Time, error) {
	local := now.In(c.loc)
	y, m, d := local.Date()
	switch cadence {
	case domain.CadenceDaily:
		return time.Date(y, m, d, 0, 0, 0, 0, c.loc).UTC(), nil
	case domain.CadenceWeekly:
		return time.Date(y, m, d-int(local.Weekday()), 0, 0, 0, 0, c.loc).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidCadence, cadence)
	}
}

// End returns the start of the window that follows the one beginning at start.
func (c *Calculator) End(cadence domain.Cadence, start time.Time) (time.Time, error) {
	local := start.In(c.loc)
	y, m, d := local.Date()
	switch cadence {
	case domain.CadenceDaily:
		return time.Date(y, m, d+1, 0, 0, 0, 0, c.loc).UTC(), nil
	case domain.CadenceWeekly:
		return time.Date(y, m, d+7, 0, 0, 0, 0, c.loc).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidCadence, cadence)
	}
}

// Bounds returns both edges of the window containing now.
func (c *Calculator) Bounds(cadence domain.Cadence, now time.Time) (time.Time, time.Time, error) {
	start, err := c.Start(cadence, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := c.End(cadence, start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
