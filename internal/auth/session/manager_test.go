package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/studyquota/internal/config"
	"github.com/stretchr/testify/assert"
)

func contextFor(req *http.Request) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req
	return c
}

func TestReadToken(t *testing.T) {
	m := NewManager(config.Config{})
	assert.Equal(t, DefaultCookieName, m.CookieName())

	req := httptest.NewRequest(http.MethodGet, "/usage", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "from-cookie"})
	token, ok := m.ReadToken(contextFor(req))
	assert.True(t, ok)
	assert.Equal(t, "from-cookie", token)

	req = httptest.NewRequest(http.MethodGet, "/usage", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer from-header")
	token, ok = m.ReadToken(contextFor(req))
	assert.True(t, ok)
	assert.Equal(t, "from-header", token)

	req = httptest.NewRequest(http.MethodGet, "/usage", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, ok = m.ReadToken(contextFor(req))
	assert.False(t, ok)
}

func TestReadTokenCustomCookie(t *testing.T) {
	m := NewManager(config.Config{Auth: config.AuthConfig{CookieName: "sq_session"}})

	req := httptest.NewRequest(http.MethodGet, "/usage", nil)
	req.AddCookie(&http.Cookie{Name: "sq_session", Value: "abc"})
	token, ok := m.ReadToken(contextFor(req))
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
}
