package server

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/studyquota/internal/auth/domain"
	obscontext "github.com/smallbiznis/studyquota/internal/observability/context"
)

const (
	contextIdentityKey = "identity"
	contextUserIDKey   = "user_id"
)

// AuthRequired verifies the caller's token and stores the identity on the context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		identity, err := s.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextIdentityKey, identity)
		c.Set(contextUserIDKey, identity.UserID)
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), identity.UserID))
		c.Next()
	}
}

func identityFromContext(c *gin.Context) (authdomain.Identity, bool) {
	value, ok := c.Get(contextIdentityKey)
	if !ok {
		return authdomain.Identity{}, false
	}
	identity, ok := value.(authdomain.Identity)
	if !ok || identity.UserID == "" {
		return authdomain.Identity{}, false
	}
	return identity, true
}

// storeContext bounds quota store calls by the configured timeout.
func (s *Server) storeContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Quota.StoreTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), s.cfg.Quota.StoreTimeout)
}

// RateLimited throttles request bursts per user. A limiter failure denies the
// request like any other storage failure.
func (s *Server) RateLimited() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}
		identity, ok := identityFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx, cancel := s.storeContext(c)
		defer cancel()

		res, err := s.limiter.Allow(ctx, identity.UserID)
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrServiceUnavailable, err))
			return
		}
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
