package models

// RoleWithPermissions is one role entry of the generated seeder payload.
type RoleWithPermissions struct {
	Name        string   `json:"name"`
	GuardName   string   `json:"guard_name"`
	Permissions []string `json:"permissions"`
}

// DirectPermission is a permission that no role references.
type DirectPermission struct {
	Name      string `json:"name"`
	GuardName string `json:"guard_name"`
}
