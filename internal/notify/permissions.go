package notify

import "github.com/learnhub/console/internal/permissions"

// PermissionsUpdated builds the toast announcing that the session's own flags changed.
func PermissionsUpdated(diff permissions.Diff) Item {
	return Item{
		Title:       "Permissions updated",
		Description: diff.String(),
		Variant:     VariantDefault,
	}
}
