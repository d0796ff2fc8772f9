package authorization

import (
	"context"
	"errors"

	authdomain "github.com/smallbiznis/studyquota/internal/auth/domain"
)

type Service interface {
	Authorize(ctx context.Context, actor authdomain.Identity, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
