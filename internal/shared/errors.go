package shared

import (
	"errors"
	"fmt"

	"github.com/learnhub/console/internal/platform/httpx"
)

var (
	// ErrNotFound is returned by repositories for missing rows.
	ErrNotFound = fmt.Errorf("record %w", httpx.ErrNotFound)
	// ErrInvalidCredentials covers unknown email, wrong password and disabled accounts alike.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", httpx.ErrUnauthorized)
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
