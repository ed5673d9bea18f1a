package models

type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	GuardName   string       `json:"guardName"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// PermissionNames returns the names of the role's permissions in load order.
func (r Role) PermissionNames() []string {
	names := make([]string, 0, len(r.Permissions))
	for _, permission := range r.Permissions {
		names = append(names, permission.Name)
	}
	return names
}
