package permissions

import "strings"

// Change is one capability flag that flipped between two resolutions of the same identity.
type Change struct {
	Capability Capability
	Granted    bool
}

// String renders the change as "manage users granted" or "manage users revoked".
func (c Change) String() string {
	if c.Granted {
		return c.Capability.Label() + " granted"
	}
	return c.Capability.Label() + " revoked"
}

// Diff is the ordered set of changes between two resolutions.
type Diff []Change

// String joins the changes with commas.
func (d Diff) String() string {
	parts := make([]string, len(d))
	for i, c := range d {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

// ComputeDiff compares the stored flags of two resolutions. It returns nil when either
// side is absent or the identifiers differ, since those are not the same principal.
func ComputeDiff(prev, next *Identity) Diff {
	if prev == nil || next == nil || prev.ID != next.ID {
		return nil
	}
	var diff Diff
	for _, c := range allCapabilities {
		before, after := prev.Flag(c), next.Flag(c)
		if before != after {
			diff = append(diff, Change{Capability: c, Granted: after})
		}
	}
	return diff
}
