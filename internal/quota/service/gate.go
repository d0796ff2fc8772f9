package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	entitlementdomain "github.com/smallbiznis/studyquota/internal/entitlement/domain"
	"github.com/smallbiznis/studyquota/internal/observability/logger"
	"github.com/smallbiznis/studyquota/internal/observability/metrics"
	"github.com/smallbiznis/studyquota/internal/quota/domain"
	"github.com/smallbiznis/studyquota/internal/quota/window"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const outcomeError = "error"

type ServiceParam struct {
	fx.In

	Log          *zap.Logger
	Limits       domain.FeatureLimits
	Calculator   *window.Calculator
	Store        domain.Store
	Entitlements entitlementdomain.Service
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	limits       domain.FeatureLimits
	calc         *window.Calculator
	store        domain.Store
	entitlements entitlementdomain.Service
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:          p.Log.Named("quota.service"),
		limits:       p.Limits,
		calc:         p.Calculator,
		store:        p.Store,
		entitlements: p.Entitlements,
		metrics:      p.Metrics,
		tracer:       otel.Tracer("studyquota/quota"),
	}
}

func (s *Service) Limits() domain.FeatureLimits {
	return s.limits
}

// CheckAndConsume decides whether userID may use feature at now and, when the
// user is not exempt, consumes one unit of the current window atomically.
// Any failure to resolve the entitlement or reach the store denies the call.
func (s *Service) CheckAndConsume(ctx context.Context, userID, feature string, now time.Time) (result domain.GateResult, err error) {
	feature = strings.TrimSpace(feature)
	ctx, span := s.tracer.Start(ctx, "quota.CheckAndConsume", trace.WithAttributes(
		attribute.String("quota.feature", feature),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "quota check failed")
		} else {
			span.SetAttributes(
				attribute.String("quota.reason", string(result.Reason)),
				attribute.Int("quota.remaining", result.Remaining),
			)
		}
		span.End()
	}()

	limit, ok := s.limits.Lookup(feature)
	if !ok {
		return domain.GateResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownFeature, feature)
	}
	log := logger.WithContext(ctx, s.log).With(
		zap.String("feature", feature),
		zap.String("cadence", string(limit.Cadence)),
	)

	// Get plus IsActivePremium(now) instead of IsExempt, so exemption is judged
	// at the same now as the window.
	ent, err := s.entitlements.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, entitlementdomain.ErrUserNotFound) {
			return domain.GateResult{}, err
		}
		s.recordDecision(ctx, limit, outcomeError)
		log.Warn("entitlement lookup failed, denying", zap.Error(err))
		return domain.GateResult{}, unavailable(err)
	}

	start, end, err := s.calc.Bounds(limit.Cadence, now)
	if err != nil {
		return domain.GateResult{}, err
	}

	result = domain.GateResult{
		Feature:     feature,
		Cadence:     limit.Cadence,
		Limit:       limit.Limit,
		WindowStart: start,
		ResetsAt:    end,
	}

	if ent.IsActivePremium(now) {
		result.Allowed = true
		result.Reason = domain.ReasonExempt
		result.Remaining = limit.Limit
		s.recordDecision(ctx, limit, string(domain.ReasonExempt))
		log.Debug("quota exempt")
		return result, nil
	}

	inc, err := s.store.TryIncrement(ctx, domain.TryIncrementRequest{
		UserID:      userID,
		Cadence:     limit.Cadence,
		WindowStart: start,
		Feature:     feature,
		Limit:       limit.Limit,
	})
	if err != nil {
		s.recordDecision(ctx, limit, outcomeError)
		log.Error("usage store failed, denying", zap.Error(err))
		return domain.GateResult{}, unavailable(err)
	}

	result.Allowed = inc.Allowed
	result.Used = inc.Used
	result.Remaining = inc.Remaining
	if !inc.Allowed {
		result.Reason = domain.ReasonLimitExceeded
		result.Remaining = 0
		s.recordDecision(ctx, limit, string(domain.ReasonLimitExceeded))
		log.Info("quota exhausted", zap.Int("used", inc.Used), zap.Int("limit", limit.Limit))
		return result, nil
	}

	result.Reason = domain.ReasonAllowed
	s.recordDecision(ctx, limit, string(domain.ReasonAllowed))
	log.Debug("quota consumed", zap.Int("used", inc.Used), zap.Int("remaining", inc.Remaining))
	return result, nil
}

func (s *Service) recordDecision(ctx context.Context, limit domain.FeatureLimit, outcome string) {
	s.metrics.RecordQuotaDecision(ctx, limit.Feature, string(limit.Cadence), outcome)
}

func unavailable(err error) error {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}
