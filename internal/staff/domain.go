// Package staff is the REST source of truth for staff identities and their capability flags.
package staff

import (
	"fmt"

	"github.com/learnhub/console/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the staff member does not exist.
	ErrNotFound = fmt.Errorf("staff: %w", httpx.ErrNotFound)
	// ErrUnknownCapability indicates a patch key outside the capability set.
	ErrUnknownCapability = fmt.Errorf("staff: unknown capability: %w", httpx.ErrValidation)
	// ErrEmptyPatch indicates a patch without any capability.
	ErrEmptyPatch = fmt.Errorf("staff: empty permission patch: %w", httpx.ErrValidation)
	// ErrSuperuserImmutable indicates an attempt to edit a superuser's flags.
	ErrSuperuserImmutable = fmt.Errorf("staff: superuser permissions are not editable: %w", httpx.ErrConflict)
)
