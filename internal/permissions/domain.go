// Package permissions evaluates staff capabilities and derives the visible menu.
package permissions

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Capability names one boolean permission flag carried by a staff identity.
type Capability string

// The capability set is closed; the order below is the order used for diffs and columns.
const (
	CapManageUsers       Capability = "manage_users"
	CapManageContent     Capability = "manage_content"
	CapManageResources   Capability = "manage_resources"
	CapManageQuizzes     Capability = "manage_quizzes"
	CapManageCourses     Capability = "manage_courses"
	CapApproveAdmissions Capability = "approve_admissions"
	CapSendNotifications Capability = "send_notifications"
)

var allCapabilities = []Capability{
	CapManageUsers,
	CapManageContent,
	CapManageResources,
	CapManageQuizzes,
	CapManageCourses,
	CapApproveAdmissions,
	CapSendNotifications,
}

var titleCaser = cases.Title(language.English)

// All returns every capability in declaration order.
func All() []Capability {
	out := make([]Capability, len(allCapabilities))
	copy(out, allCapabilities)
	return out
}

// ParseCapability resolves a wire name into a known capability.
func ParseCapability(name string) (Capability, bool) {
	name = strings.TrimSpace(strings.ToLower(name))
	for _, c := range allCapabilities {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// Valid reports whether c belongs to the closed capability set.
func (c Capability) Valid() bool {
	_, ok := ParseCapability(string(c))
	return ok
}

// Label renders the capability for sentences, e.g. "manage users".
func (c Capability) Label() string {
	return strings.ReplaceAll(string(c), "_", " ")
}

// Title renders the capability for headings, e.g. "Manage Users".
func (c Capability) Title() string {
	return titleCaser.String(c.Label())
}

// Flags holds the stored value of every capability flag.
type Flags map[Capability]bool

// Identity is the authenticated staff principal of a session.
type Identity struct {
	ID          int64
	Username    string
	FirstName   string
	LastName    string
	Email       string
	IsSuperuser bool
	AvatarURL   string
	Flags       Flags
}

// Flag returns the stored value of a capability flag, ignoring superuser status.
func (i *Identity) Flag(c Capability) bool {
	if i == nil || i.Flags == nil {
		return false
	}
	return i.Flags[c]
}

// DisplayName prefers the full name and falls back to the username.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	full := strings.TrimSpace(i.FirstName + " " + i.LastName)
	if full != "" {
		return full
	}
	return i.Username
}

// Clone returns a deep copy so callers can mutate flags safely.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	out.Flags = make(Flags, len(i.Flags))
	for k, v := range i.Flags {
		out.Flags[k] = v
	}
	return &out
}

// Destination is one navigable feature area of the dashboard.
type Destination struct {
	Label         string
	Path          string
	Capability    Capability
	SuperuserOnly bool
}
