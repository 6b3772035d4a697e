package auth

import "errors"

var (
	ErrMissingSecret = errors.New("auth: secret is not configured")
	ErrInvalidToken  = errors.New("auth: invalid token")
	ErrUnauthorized  = errors.New("auth: unauthorized")
	ErrForbidden     = errors.New("auth: forbidden")
)
