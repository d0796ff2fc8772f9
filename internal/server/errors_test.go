package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/smallbiznis/studyquota/internal/ai"
	authdomain "github.com/smallbiznis/studyquota/internal/auth/domain"
	"github.com/smallbiznis/studyquota/internal/authorization"
	quotadomain "github.com/smallbiznis/studyquota/internal/quota/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		typeName string
	}{
		{"unknown feature", fmt.Errorf("%w: %q", quotadomain.ErrUnknownFeature, "essays"), http.StatusBadRequest, "validation_error"},
		{"validation", newValidationError("input", "required", "input is required"), http.StatusBadRequest, "validation_error"},
		{"user not found", quotadomain.ErrUserNotFound, http.StatusUnauthorized, "unauthorized"},
		{"invalid token", fmt.Errorf("%w: expired", authdomain.ErrInvalidToken), http.StatusUnauthorized, "unauthorized"},
		{"forbidden", authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"limit exceeded", quotadomain.ErrLimitExceeded, http.StatusTooManyRequests, "limit_exceeded"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"storage unavailable", fmt.Errorf("%w: connection refused", quotadomain.ErrStorageUnavailable), http.StatusServiceUnavailable, "service_unavailable"},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "service_unavailable"},
		{"generation failed", ai.ErrGenerationFailed, http.StatusBadGateway, "upstream_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.typeName, payload.Type)
		})
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(fmt.Errorf("%w: timeout", quotadomain.ErrStorageUnavailable))
	assert.Equal(t, "service_unavailable", typ)
	assert.Equal(t, "storage_unavailable", code)

	typ, code = classifyErrorForLog(ErrRateLimited)
	assert.Equal(t, "rate_limited", typ)
	assert.Equal(t, "rate_limited", code)
}
