package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obstracing "github.com/smallbiznis/studyquota/internal/observability/tracing"
	quotadomain "github.com/smallbiznis/studyquota/internal/quota/domain"
)

type consumeUsageRequest struct {
	Feature string `json:"feature"`
}

type consumeUsageResponse struct {
	Success bool `json:"success"`
	usageView
}

type usageView struct {
	Feature   string     `json:"feature"`
	Used      int        `json:"used"`
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
	Exempt    bool       `json:"exempt,omitempty"`
	ResetsAt  *time.Time `json:"resetsAt,omitempty"`
	Message   string     `json:"message"`
}

func newUsageView(res quotadomain.GateResult) usageView {
	view := usageView{
		Feature:   res.Feature,
		Used:      res.Used,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		Exempt:    res.Exempt(),
		Message:   res.Message(),
	}
	if !res.Exempt() && !res.ResetsAt.IsZero() {
		resetsAt := res.ResetsAt
		view.ResetsAt = &resetsAt
	}
	return view
}

// GetUsage reports the caller's counts for the current windows without consuming.
func (s *Server) GetUsage(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	s.writeSnapshot(c, identity.UserID)
}

// GetUserUsage is the admin view of another user's counts.
func (s *Server) GetUserUsage(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		AbortWithError(c, newValidationError("id", "required", "user id is required"))
		return
	}
	s.writeSnapshot(c, userID)
}

func (s *Server) writeSnapshot(c *gin.Context, userID string) {
	ctx, cancel := s.storeContext(c)
	defer cancel()

	snapshot, err := s.quotaSvc.Snapshot(ctx, userID, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body := gin.H{"isPremium": snapshot.IsPremium}
	if snapshot.IsPremium {
		body["message"] = quotadomain.PremiumMessage
	}
	for feature, count := range snapshot.Counts {
		body[feature] = count
	}
	if !snapshot.IsPremium {
		limits := make(gin.H, len(snapshot.Limits))
		resetsAt := make(gin.H, len(snapshot.Limits))
		for _, limit := range snapshot.Limits {
			limits[limit.Feature] = limit.Limit
			resetsAt[limit.Feature] = snapshot.ResetsAt[limit.Cadence]
		}
		body["limits"] = limits
		body["resetsAt"] = resetsAt
	}

	c.JSON(http.StatusOK, body)
}

// ConsumeUsage runs one gated consumption for the feature named in the body.
func (s *Server) ConsumeUsage(c *gin.Context) {
	var req consumeUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	feature := strings.TrimSpace(req.Feature)
	if feature == "" {
		AbortWithError(c, newValidationError("feature", "required", "feature is required"))
		return
	}

	res, ok := s.consume(c, feature)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, consumeUsageResponse{Success: true, usageView: newUsageView(res)})
}

func (s *Server) ListLimits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.quotaSvc.Limits().All()})
}

// consume passes the caller through the quota gate. It writes the error or
// 429 response itself and reports false when the handler must stop.
func (s *Server) consume(c *gin.Context, feature string) (quotadomain.GateResult, bool) {
	identity, ok := identityFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return quotadomain.GateResult{}, false
	}
	c.Set(obstracing.FeatureKey, feature)

	ctx, cancel := s.storeContext(c)
	defer cancel()

	res, err := s.quotaSvc.CheckAndConsume(ctx, identity.UserID, feature, s.clock.Now())
	if err != nil {
		c.Set(obstracing.DecisionKey, "error")
		AbortWithError(c, err)
		return quotadomain.GateResult{}, false
	}
	c.Set(obstracing.DecisionKey, string(res.Reason))

	if !res.Allowed {
		_ = c.Error(res.Err())
		body := gin.H{
			"error":     "Usage limit exceeded",
			"feature":   res.Feature,
			"used":      res.Used,
			"limit":     res.Limit,
			"remaining": 0,
			"message":   res.Message(),
		}
		if !res.ResetsAt.IsZero() {
			body["resetsAt"] = res.ResetsAt
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, body)
		return res, false
	}
	return res, true
}
