package authz

const (
	RoleSales      = 10
	RoleOperations = 20
	RoleAudit      = 30
	RoleManagement = 40
	RoleAdmin      = 50
)

func IsElevated(roleID int) bool {
	return roleID == RoleOperations || roleID == RoleManagement || roleID == RoleAdmin
}

func IsReadOnly(roleID int) bool {
	return roleID == RoleAudit
}

// CanChangeStatus reports whether the role may request manual status
// transitions. Whether the transition itself is legal is decided elsewhere.
func CanChangeStatus(roleID int) bool {
	switch roleID {
	case RoleSales, RoleOperations, RoleManagement, RoleAdmin:
		return true
	}
	return false
}

// CanSeeAllLeads reports whether the role reads leads and history beyond its own.
func CanSeeAllLeads(roleID int) bool {
	return IsElevated(roleID) || IsReadOnly(roleID)
}
