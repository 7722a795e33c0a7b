package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func staff(id int64, superuser bool, granted ...Capability) *Identity {
	flags := make(Flags)
	for _, c := range All() {
		flags[c] = false
	}
	for _, c := range granted {
		flags[c] = true
	}
	return &Identity{ID: id, Username: "staff", IsSuperuser: superuser, Flags: flags}
}

func TestHasPermissionSuperuserShortCircuits(t *testing.T) {
	root := staff(1, true)
	for _, c := range All() {
		assert.True(t, HasPermission(root, c), "superuser must hold %s", c)
	}
	assert.True(t, HasPermission(root, ""))
}

func TestHasPermissionFollowsStoredFlag(t *testing.T) {
	admin := staff(2, false, CapManageContent)
	for _, c := range All() {
		assert.Equal(t, admin.Flags[c], HasPermission(admin, c), "capability %s", c)
	}
	assert.True(t, HasPermission(admin, ""), "no restriction means any authenticated staff")
}

func TestHasPermissionWithoutIdentity(t *testing.T) {
	assert.False(t, HasPermission(nil, ""))
	assert.False(t, HasPermission(nil, CapManageUsers))
	assert.False(t, HasPermission(&Identity{ID: 3}, CapManageUsers), "nil flags read as false")
}

func TestSuperuserOnlyIgnoresFlags(t *testing.T) {
	dest := Destination{Label: "Access Control", Path: "/rbac", SuperuserOnly: true, Capability: CapManageUsers}
	everything := staff(2, false, All()...)
	assert.False(t, IsDestinationVisible(everything, dest))
	assert.True(t, IsDestinationVisible(staff(1, true), dest))
	assert.False(t, IsDestinationVisible(nil, dest))
}

func TestVisibleDestinationsKeepsMenuOrder(t *testing.T) {
	admin := staff(2, false, CapManageQuizzes, CapManageContent)
	got := VisibleDestinations(admin, Catalog())

	var labels []string
	for _, d := range got {
		labels = append(labels, d.Label)
		assert.True(t, IsDestinationVisible(admin, d))
	}
	assert.Equal(t, []string{"Dashboard", "Knowledge Tree", "Quizzes"}, labels)
}

func TestVisibleDestinationsSuperuserSeesAll(t *testing.T) {
	assert.Equal(t, Catalog(), VisibleDestinations(staff(1, true), Catalog()))
	assert.Empty(t, VisibleDestinations(nil, Catalog()))
}

func TestParseCapability(t *testing.T) {
	c, ok := ParseCapability(" Manage_Users ")
	assert.True(t, ok)
	assert.Equal(t, CapManageUsers, c)

	_, ok = ParseCapability("is_superuser")
	assert.False(t, ok)
	assert.Equal(t, "Approve Admissions", CapApproveAdmissions.Title())
	assert.Equal(t, "approve admissions", CapApproveAdmissions.Label())
}
