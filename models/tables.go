package models

import (
	"errors"
	"strings"
)

type Tables struct {
	Roles              string `json:"roles"`
	Permissions        string `json:"permissions"`
	RoleHasPermissions string `json:"roleHasPermissions"`
}

func DefaultTables() Tables {
	return Tables{
		Roles:              "roles",
		Permissions:        "permissions",
		RoleHasPermissions: "role_has_permissions",
	}
}

func (t Tables) Validate() error {
	if strings.TrimSpace(t.Roles) == "" || strings.TrimSpace(t.Permissions) == "" || strings.TrimSpace(t.RoleHasPermissions) == "" {
		return errors.New("role, permission and pivot table names must not be empty")
	}
	return nil
}
