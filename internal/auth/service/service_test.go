package service

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/smallbiznis/studyquota/internal/auth/domain"
	"github.com/smallbiznis/studyquota/internal/clock"
	"github.com/smallbiznis/studyquota/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret-with-enough-entropy"

var issuedAt = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

func newVerifier(t *testing.T, issuer string) (domain.Verifier, *clock.FakeClock) {
	t.Helper()
	fake := clock.NewFakeClock(issuedAt)
	v, err := New(Params{
		Cfg:   config.Config{Auth: config.AuthConfig{JWTSecret: testSecret, Issuer: issuer}},
		Log:   zap.NewNop(),
		Clock: fake,
	})
	require.NoError(t, err)
	return v, fake
}

func sign(t *testing.T, secret string, build func(*jwt.Builder) *jwt.Builder) string {
	t.Helper()
	tok, err := build(jwt.NewBuilder().
		IssuedAt(issuedAt).
		Expiration(issuedAt.Add(time.Hour))).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(secret)))
	require.NoError(t, err)
	return string(signed)
}

func TestVerify(t *testing.T) {
	v, _ := newVerifier(t, "")

	tests := []struct {
		name    string
		token   string
		want    domain.Identity
		wantErr error
	}{
		{
			name: "id claim",
			token: sign(t, testSecret, func(b *jwt.Builder) *jwt.Builder {
				return b.Claim("id", "65f0c0ffee").Claim("role", "Admin")
			}),
			want: domain.Identity{UserID: "65f0c0ffee", Role: domain.RoleAdmin},
		},
		{
			name: "subject fallback",
			token: sign(t, testSecret, func(b *jwt.Builder) *jwt.Builder {
				return b.Subject("student-1")
			}),
			want: domain.Identity{UserID: "student-1", Role: domain.RoleUser},
		},
		{
			name: "wrong secret",
			token: sign(t, "another-secret", func(b *jwt.Builder) *jwt.Builder {
				return b.Claim("id", "u1")
			}),
			wantErr: domain.ErrInvalidToken,
		},
		{
			name: "no user claim",
			token: sign(t, testSecret, func(b *jwt.Builder) *jwt.Builder {
				return b.Claim("role", "user")
			}),
			wantErr: domain.ErrInvalidToken,
		},
		{
			name:    "garbage",
			token:   "not.a.jwt",
			wantErr: domain.ErrInvalidToken,
		},
		{
			name:    "empty",
			token:   "  ",
			wantErr: domain.ErrMissingToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(context.Background(), tt.token)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v, fake := newVerifier(t, "")
	token := sign(t, testSecret, func(b *jwt.Builder) *jwt.Builder {
		return b.Claim("id", "u1")
	})

	_, err := v.Verify(context.Background(), token)
	require.NoError(t, err)

	fake.Advance(2 * time.Hour)
	_, err = v.Verify(context.Background(), token)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerifyChecksIssuer(t *testing.T) {
	v, _ := newVerifier(t, "studyhub")

	good := sign(t, testSecret, func(b *jwt.Builder) *jwt.Builder {
		return b.Issuer("studyhub").Claim("id", "u1")
	})
	bad := sign(t, testSecret, func(b *jwt.Builder) *jwt.Builder {
		return b.Issuer("someone-else").Claim("id", "u1")
	})

	_, err := v.Verify(context.Background(), good)
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), bad)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(Params{Cfg: config.Config{}, Log: zap.NewNop(), Clock: clock.New()})
	require.ErrorIs(t, err, domain.ErrMissingSecret)
}
