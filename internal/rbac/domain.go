package rbac

import (
	"context"
	"errors"

	"github.com/learnhub/console/internal/notify"
	"github.com/learnhub/console/internal/permissions"
)

var (
	// ErrUnknownStaff indicates the target row is not on the screen.
	ErrUnknownStaff = errors.New("rbac: unknown staff member")
	// ErrUnknownCapability indicates a capability outside the closed set.
	ErrUnknownCapability = errors.New("rbac: unknown capability")
	// ErrSuperuserLocked indicates an attempt to toggle a superuser row.
	ErrSuperuserLocked = errors.New("rbac: superuser rows are not editable")
	// ErrRowBusy indicates a mutation for the row is already in flight.
	ErrRowBusy = errors.New("rbac: row is being updated")
)

// UpdateResult is the backend reply to a single-field permission update.
type UpdateResult struct {
	Status string
	User   permissions.Record
}

// StaffClient is the backend surface the screen depends on.
type StaffClient interface {
	FetchAllStaffPermissions(ctx context.Context) ([]permissions.Record, error)
	UpdateStaffPermission(ctx context.Context, targetID int64, patch map[permissions.Capability]bool) (UpdateResult, error)
}

// Emitter wakes every other browsing context after a successful write.
type Emitter interface {
	Emit(ctx context.Context) error
}

// Notifier shows a toast in the acting context.
type Notifier interface {
	Push(item notify.Item) string
}

// Row is one staff member as displayed by the screen.
type Row struct {
	permissions.Identity
	Processing bool
}

// Granted reports the effective value of c, which is always true for superusers.
func (r Row) Granted(c permissions.Capability) bool {
	return permissions.HasPermission(&r.Identity, c)
}

// ToggleDisabled reports whether the row's controls must be disabled.
func (r Row) ToggleDisabled() bool {
	return r.IsSuperuser || r.Processing
}
