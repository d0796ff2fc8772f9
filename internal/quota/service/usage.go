package service

import (
	"context"
	"errors"
	"time"

	entitlementdomain "github.com/smallbiznis/studyquota/internal/entitlement/domain"
	"github.com/smallbiznis/studyquota/internal/quota/domain"
	"golang.org/x/sync/errgroup"
)

// Snapshot reports the user's counts in the windows containing now without
// creating records. Exempt users get zero counts and IsPremium set.
func (s *Service) Snapshot(ctx context.Context, userID string, now time.Time) (domain.UsageSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "quota.Snapshot")
	defer span.End()

	ent, err := s.entitlements.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, entitlementdomain.ErrUserNotFound) {
			return domain.UsageSnapshot{}, err
		}
		span.RecordError(err)
		return domain.UsageSnapshot{}, unavailable(err)
	}

	snapshot := domain.UsageSnapshot{
		UserID:   userID,
		Counts:   make(map[string]int, s.limits.Len()),
		Limits:   s.limits.All(),
		ResetsAt: make(map[domain.Cadence]time.Time, 2),
	}
	for _, feature := range s.limits.Features() {
		snapshot.Counts[feature] = 0
	}

	cadences := s.limits.Cadences()
	starts := make([]time.Time, len(cadences))
	for i, cadence := range cadences {
		start, end, err := s.calc.Bounds(cadence, now)
		if err != nil {
			return domain.UsageSnapshot{}, err
		}
		starts[i] = start
		snapshot.ResetsAt[cadence] = end
	}

	if ent.IsActivePremium(now) {
		snapshot.IsPremium = true
		return snapshot, nil
	}

	records := make([]*domain.UsageRecord, len(cadences))
	g, gctx := errgroup.WithContext(ctx)
	for i, cadence := range cadences {
		g.Go(func() error {
			rec, err := s.store.Get(gctx, userID, cadence, starts[i])
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return domain.UsageSnapshot{}, unavailable(err)
	}

	byCadence := make(map[domain.Cadence]map[string]int, len(cadences))
	for i, cadence := range cadences {
		byCadence[cadence] = records[i].Counts()
	}
	for _, limit := range snapshot.Limits {
		snapshot.Counts[limit.Feature] = byCadence[limit.Cadence][limit.Feature]
	}

	return snapshot, nil
}
