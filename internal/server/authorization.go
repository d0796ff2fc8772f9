package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) authorizeAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), identity, strings.TrimSpace(object), strings.TrimSpace(action)); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
