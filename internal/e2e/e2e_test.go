package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/smallbiznis/studyquota/internal/ai"
	"github.com/smallbiznis/studyquota/internal/auth"
	"github.com/smallbiznis/studyquota/internal/authorization"
	"github.com/smallbiznis/studyquota/internal/cache"
	"github.com/smallbiznis/studyquota/internal/clock"
	"github.com/smallbiznis/studyquota/internal/config"
	"github.com/smallbiznis/studyquota/internal/entitlement"
	"github.com/smallbiznis/studyquota/internal/migration"
	"github.com/smallbiznis/studyquota/internal/observability"
	"github.com/smallbiznis/studyquota/internal/quota"
	"github.com/smallbiznis/studyquota/internal/ratelimit"
	"github.com/smallbiznis/studyquota/internal/seed"
	"github.com/smallbiznis/studyquota/internal/server"
	"github.com/smallbiznis/studyquota/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const e2eSecret = "e2e-secret"

type testEnv struct {
	app     *fx.App
	db      *gorm.DB
	baseURL string
	httpSrv *httptest.Server
	dataDir string
}

var env *testEnv

func TestMain(m *testing.M) {
	if os.Getenv("STUDYQUOTA_E2E") != "1" {
		fmt.Fprintln(os.Stderr, "skipping e2e tests: set STUDYQUOTA_E2E=1")
		os.Exit(0)
	}

	gin.SetMode(gin.TestMode)
	dataDir, err := os.MkdirTemp("", "studyquota-e2e")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create data dir:", err)
		os.Exit(1)
	}
	setDefaultEnv(dataDir)

	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		_ = os.RemoveAll(dataDir)
		os.Exit(1)
	}
	env.dataDir = dataDir

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, _ := doJSON(t, http.MethodGet, "/health", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_DemoUsersSeeded(t *testing.T) {
	var count int64
	if err := env.db.Table("users").Where("id IN ?", []string{
		seed.DemoFreeUserID, seed.DemoPremiumUserID, seed.DemoAdminUserID,
	}).Count(&count).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 demo users, got %d", count)
	}
}

func TestE2E_SummariesQuota(t *testing.T) {
	userID := createUser(t, "user", false)
	token := signToken(t, userID, "user")

	for i := 1; i <= 2; i++ {
		resp, body := doJSON(t, http.MethodPost, "/usage", map[string]string{"feature": "summaries"}, token)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("summary %d: expected 200, got %d: %s", i, resp.StatusCode, body)
		}
	}

	resp, body := doJSON(t, http.MethodPost, "/usage", map[string]string{"feature": "summaries"}, token)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, "/usage", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for usage, got %d: %s", resp.StatusCode, body)
	}
	var usage map[string]any
	if err := json.Unmarshal(body, &usage); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if usage["summaries"] != float64(2) || usage["doubts"] != float64(0) {
		t.Fatalf("unexpected usage: %s", body)
	}
}

func TestE2E_PremiumUserIsExempt(t *testing.T) {
	token := signToken(t, seed.DemoPremiumUserID, "user")

	for i := 0; i < 3; i++ {
		resp, body := doJSON(t, http.MethodPost, "/usage", map[string]string{"feature": "roadmaps"}, token)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("roadmap %d: expected 200, got %d: %s", i, resp.StatusCode, body)
		}
	}
}

func TestE2E_ErrorsFailClosed(t *testing.T) {
	userID := createUser(t, "user", false)

	resp, body := doJSON(t, http.MethodPost, "/usage", map[string]string{"feature": "doubts"}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, "/usage", map[string]string{"feature": "doubts"}, signToken(t, "nobody", "user"))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for an unknown user, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, "/usage", map[string]string{"feature": "essays"}, signToken(t, userID, "user"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown feature, got %d: %s", resp.StatusCode, body)
	}
}

func TestE2E_AdminRoutes(t *testing.T) {
	userID := createUser(t, "user", false)

	resp, body := doJSON(t, http.MethodGet, "/admin/limits", nil, signToken(t, userID, "user"))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for a regular user, got %d: %s", resp.StatusCode, body)
	}

	adminToken := signToken(t, seed.DemoAdminUserID, "admin")
	resp, body = doJSON(t, http.MethodGet, "/admin/limits", nil, adminToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin limits, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, "/admin/users/"+userID+"/usage", nil, adminToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin usage view, got %d: %s", resp.StatusCode, body)
	}
}

func startEnv() (*testEnv, error) {
	var (
		dbConn *gorm.DB
		engine *gin.Engine
	)

	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.NodeID)
		}),
		db.Module,
		cache.Module,
		ratelimit.Module,
		clock.Module,
		migration.Module,
		seed.Module,
		entitlement.Module,
		quota.Module,
		auth.Module,
		authorization.Module,
		ai.Module,
		server.Module,
		fx.Populate(&dbConn, &engine),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(engine)

	return &testEnv{
		app:     app,
		db:      dbConn,
		baseURL: httpSrv.URL,
		httpSrv: httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
	if e.dataDir != "" {
		_ = os.RemoveAll(e.dataDir)
	}
}

func setDefaultEnv(dataDir string) {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("HTTP_ADDR", "127.0.0.1:0")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("DATABASE_NAME", filepath.Join(dataDir, "studyquota.db"))
	setEnvIfEmpty("SEED_DEV_USERS", "true")
	setEnvIfEmpty("AUTH_JWT_SECRET", e2eSecret)
	setEnvIfEmpty("AI_PROVIDER", "static")
	setEnvIfEmpty("PROMETHEUS_ENABLED", "false")
	setEnvIfEmpty("LOG_LEVEL", "error")
}

func setEnvIfEmpty(key, value string) {
	if os.Getenv(key) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func createUser(t *testing.T, role string, premium bool) string {
	t.Helper()
	userID := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	now := time.Now().UTC()
	if err := env.db.Exec(
		`INSERT INTO users (id, role, is_premium, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		userID, role, premium, now, now,
	).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return userID
}

func signToken(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject(userID).
		Claim("role", role).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour)).
		Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(e2eSecret)))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return string(signed)
}

func doJSON(t *testing.T, method, path string, payload any, token string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}
