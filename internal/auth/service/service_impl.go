package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/smallbiznis/studyquota/internal/auth/domain"
	"github.com/smallbiznis/studyquota/internal/clock"
	"github.com/smallbiznis/studyquota/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const acceptableSkew = 30 * time.Second

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock
}

// JWTVerifier validates HS256 tokens issued by the external session provider.
type JWTVerifier struct {
	secret []byte
	issuer string
	clock  clock.Clock
	log    *zap.Logger
}

func New(p Params) (domain.Verifier, error) {
	secret := strings.TrimSpace(p.Cfg.Auth.JWTSecret)
	if secret == "" {
		return nil, domain.ErrMissingSecret
	}
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: strings.TrimSpace(p.Cfg.Auth.Issuer),
		clock:  p.Clock,
		log:    p.Log.Named("auth.service"),
	}, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, raw string) (domain.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Identity{}, domain.ErrMissingToken
	}

	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(acceptableSkew),
		jwt.WithClock(jwt.ClockFunc(v.clock.Now)),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		v.log.Debug("token rejected", zap.Error(err))
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	userID := claimString(token, "id")
	if userID == "" {
		userID = strings.TrimSpace(token.Subject())
	}
	if userID == "" {
		return domain.Identity{}, fmt.Errorf("%w: no user id claim", domain.ErrInvalidToken)
	}

	role := strings.ToLower(claimString(token, "role"))
	if role == "" {
		role = domain.RoleUser
	}

	return domain.Identity{UserID: userID, Role: role}, nil
}

func claimString(token jwt.Token, key string) string {
	value, ok := token.Get(key)
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}
