package session

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/studyquota/internal/config"
)

const DefaultCookieName = "token"

// Manager locates the identity token on an incoming request.
type Manager struct {
	cookieName string
}

func NewManager(cfg config.Config) *Manager {
	name := strings.TrimSpace(cfg.Auth.CookieName)
	if name == "" {
		name = DefaultCookieName
	}
	return &Manager{cookieName: name}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

// ReadToken prefers the Authorization bearer header and falls back to the cookie.
func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	if header := strings.TrimSpace(c.GetHeader("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token), true
		}
	}

	token, err := c.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}
	if strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}
