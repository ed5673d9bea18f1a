package models

type RolePermission struct {
	RoleID       int64 `json:"roleId"`
	PermissionID int64 `json:"permissionId"`
}
