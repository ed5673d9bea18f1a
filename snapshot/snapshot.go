// Package snapshot reads the current role/permission graph and splits it into
// the two payloads a seeder needs: roles with their permissions, and the
// permissions that are assigned directly rather than through a role.
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"shield/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrNothingToSeed is returned when neither roles nor permissions exist.
var ErrNothingToSeed = errors.New("snapshot: no roles or permissions found")

// Source is the read side of the permission store.
type Source interface {
	RolesExist(ctx context.Context) (bool, error)
	PermissionsExist(ctx context.Context) (bool, error)
	RolesWithPermissions(ctx context.Context) ([]models.Role, error)
	Permissions(ctx context.Context) ([]models.Permission, error)
}

type Snapshot struct {
	RolePermissions   []models.RoleWithPermissions
	DirectPermissions []models.DirectPermission
}

var meter = otel.Meter("shield/snapshot")

func Collect(ctx context.Context, src Source) (Snapshot, error) {
	ctx, span := otel.Tracer("shield/snapshot").Start(ctx, "snapshot.Collect")
	defer span.End()

	rolesExist, err := src.RolesExist(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	permissionsExist, err := src.PermissionsExist(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if !rolesExist && !permissionsExist {
		return Snapshot{}, ErrNothingToSeed
	}

	snap := Snapshot{
		RolePermissions:   []models.RoleWithPermissions{},
		DirectPermissions: []models.DirectPermission{},
	}
	covered := make(map[string]struct{})

	if rolesExist {
		roles, err := src.RolesWithPermissions(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("load roles: %w", err)
		}
		snap.RolePermissions = FromRoles(roles, covered)
	}

	if permissionsExist {
		permissions, err := src.Permissions(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("load permissions: %w", err)
		}
		snap.DirectPermissions = Direct(permissions, covered)
	}

	span.SetAttributes(
		attribute.Int("shield.role_permissions", len(snap.RolePermissions)),
		attribute.Int("shield.direct_permissions", len(snap.DirectPermissions)),
	)
	record(ctx, snap)
	return snap, nil
}

// FromRoles flattens each role's permission names and marks them as covered.
func FromRoles(roles []models.Role, covered map[string]struct{}) []models.RoleWithPermissions {
	out := make([]models.RoleWithPermissions, 0, len(roles))
	for _, role := range roles {
		names := role.PermissionNames()
		for _, name := range names {
			covered[name] = struct{}{}
		}
		out = append(out, models.RoleWithPermissions{
			Name:        role.Name,
			GuardName:   role.GuardName,
			Permissions: names,
		})
	}
	return out
}

// Direct keeps the permissions whose name no role references. Names are
// compared without regard to guard.
func Direct(permissions []models.Permission, covered map[string]struct{}) []models.DirectPermission {
	out := make([]models.DirectPermission, 0, len(permissions))
	seen := make(map[models.DirectPermission]struct{}, len(permissions))
	for _, permission := range permissions {
		if _, ok := covered[permission.Name]; ok {
			continue
		}
		entry := models.DirectPermission{Name: permission.Name, GuardName: permission.GuardName}
		if _, dup := seen[entry]; dup {
			continue
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}
	return out
}

func record(ctx context.Context, snap Snapshot) {
	roles, err := meter.Int64Counter("shield.seeder.roles",
		metric.WithDescription("Roles written to generated seeders"))
	if err == nil {
		roles.Add(ctx, int64(len(snap.RolePermissions)))
	}
	direct, err := meter.Int64Counter("shield.seeder.direct_permissions",
		metric.WithDescription("Direct permissions written to generated seeders"))
	if err == nil {
		direct.Add(ctx, int64(len(snap.DirectPermissions)))
	}
}
