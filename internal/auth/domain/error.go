package domain

import "errors"

var (
	ErrMissingToken  = errors.New("missing_token")
	ErrInvalidToken  = errors.New("invalid_token")
	ErrMissingSecret = errors.New("auth_secret_not_configured")
)
