package permissions

// HasPermission reports whether identity holds capability. An empty capability means no
// restriction beyond being authenticated.
func HasPermission(identity *Identity, capability Capability) bool {
	if identity == nil {
		return false
	}
	if identity.IsSuperuser {
		return true
	}
	if capability == "" {
		return true
	}
	return identity.Flag(capability)
}

// IsDestinationVisible applies the destination's access predicate to identity.
func IsDestinationVisible(identity *Identity, destination Destination) bool {
	if identity == nil {
		return false
	}
	if destination.SuperuserOnly {
		return identity.IsSuperuser
	}
	return HasPermission(identity, destination.Capability)
}

// VisibleDestinations filters all by visibility, keeping menu order.
func VisibleDestinations(identity *Identity, all []Destination) []Destination {
	visible := make([]Destination, 0, len(all))
	for _, d := range all {
		if IsDestinationVisible(identity, d) {
			visible = append(visible, d)
		}
	}
	return visible
}

// Catalog lists the dashboard feature areas in menu order.
func Catalog() []Destination {
	return []Destination{
		{Label: "Dashboard", Path: "/"},
		{Label: "Knowledge Tree", Path: "/knowledge-tree", Capability: CapManageContent},
		{Label: "Resources", Path: "/resources", Capability: CapManageResources},
		{Label: "Quizzes", Path: "/quizzes", Capability: CapManageQuizzes},
		{Label: "Courses", Path: "/courses", Capability: CapManageCourses},
		{Label: "Users & Staff", Path: "/users", Capability: CapManageUsers},
		{Label: "Admissions", Path: "/admissions", Capability: CapApproveAdmissions},
		{Label: "Notifications", Path: "/notifications", Capability: CapSendNotifications},
		{Label: "Access Control", Path: "/rbac", SuperuserOnly: true},
	}
}
