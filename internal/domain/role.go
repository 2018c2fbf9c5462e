package domain

// Role constants define the allowed user roles.
const (
	RoleStudent = "student"
	RoleParent  = "parent"
	RoleAdmin   = "admin"
)

// ValidRoles returns the set of valid user roles.
func ValidRoles() []string {
	return []string{RoleStudent, RoleParent, RoleAdmin}
}

// IsValidRole checks whether role is one of ValidRoles.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// IsSelfAssignableRole reports whether a user may pick role at signup.
// Admins are only created by bootstrap or by another admin.
func IsSelfAssignableRole(role string) bool {
	return role == RoleStudent || role == RoleParent
}
