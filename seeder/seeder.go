// Package seeder is the runtime behind generated shield seeders. A generated
// program embeds two JSON payloads and hands them to Run, which recreates the
// roles, their permissions and the directly assigned permissions.
package seeder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"shield/models"

	"github.com/lib/pq"
)

type options struct {
	tables models.Tables
}

type Option func(*options)

// WithTables overrides the role, permission and pivot table names.
func WithTables(roles, permissions, roleHasPermissions string) Option {
	return func(o *options) {
		o.tables = models.Tables{Roles: roles, Permissions: permissions, RoleHasPermissions: roleHasPermissions}
	}
}

// Run seeds the database inside a single transaction.
func Run(ctx context.Context, db *sql.DB, rolesWithPermissions, directPermissions string, opts ...Option) (err error) {
	o := options{tables: models.DefaultTables()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.tables.Validate(); err != nil {
		return err
	}

	var roles []models.RoleWithPermissions
	if err := decode(rolesWithPermissions, &roles); err != nil {
		return fmt.Errorf("decode roles with permissions: %w", err)
	}
	var direct []models.DirectPermission
	if err := decode(directPermissions, &direct); err != nil {
		return fmt.Errorf("decode direct permissions: %w", err)
	}
	if len(roles) == 0 && len(direct) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	s := &session{tx: tx, tables: o.tables}
	if err = s.makeRolesWithPermissions(ctx, roles); err != nil {
		return err
	}
	if err = s.makeDirectPermissions(ctx, direct); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func decode(payload string, v any) error {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}
	return json.Unmarshal([]byte(payload), v)
}

type session struct {
	tx     *sql.Tx
	tables models.Tables
}

func (s *session) makeRolesWithPermissions(ctx context.Context, roles []models.RoleWithPermissions) error {
	for _, role := range roles {
		roleID, err := s.firstOrCreate(ctx, s.tables.Roles, role.Name, role.GuardName)
		if err != nil {
			return fmt.Errorf("role %s: %w", role.Name, err)
		}
		if len(role.Permissions) == 0 {
			continue
		}

		permissionIDs := make([]int64, 0, len(role.Permissions))
		seen := make(map[int64]struct{}, len(role.Permissions))
		for _, name := range role.Permissions {
			id, err := s.firstOrCreate(ctx, s.tables.Permissions, name, role.GuardName)
			if err != nil {
				return fmt.Errorf("permission %s: %w", name, err)
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			permissionIDs = append(permissionIDs, id)
		}

		if err := s.syncPermissions(ctx, roleID, permissionIDs); err != nil {
			return fmt.Errorf("sync permissions for role %s: %w", role.Name, err)
		}
	}
	return nil
}

// makeDirectPermissions creates each permission unless one with the same name
// exists under any guard.
func (s *session) makeDirectPermissions(ctx context.Context, permissions []models.DirectPermission) error {
	table := pq.QuoteIdentifier(s.tables.Permissions)
	for _, permission := range permissions {
		var exists bool
		err := s.tx.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT EXISTS (SELECT 1 FROM %s WHERE name = $1)", table), permission.Name).Scan(&exists)
		if err != nil {
			return fmt.Errorf("lookup permission %s: %w", permission.Name, err)
		}
		if exists {
			continue
		}
		_, err = s.tx.ExecContext(ctx, fmt.Sprintf(
			"INSERT INTO %s (name, guard_name, created_at, updated_at) VALUES ($1, $2, NOW(), NOW())", table),
			permission.Name, permission.GuardName)
		if err != nil {
			return fmt.Errorf("create permission %s: %w", permission.Name, err)
		}
	}
	return nil
}

func (s *session) firstOrCreate(ctx context.Context, table, name, guardName string) (int64, error) {
	quoted := pq.QuoteIdentifier(table)

	var id int64
	err := s.tx.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT id FROM %s WHERE name = $1 AND guard_name = $2", quoted), name, guardName).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	err = s.tx.QueryRowContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (name, guard_name, created_at, updated_at) VALUES ($1, $2, NOW(), NOW()) RETURNING id", quoted),
		name, guardName).Scan(&id)
	return id, err
}

// syncPermissions replaces the role's pivot rows with exactly permissionIDs.
func (s *session) syncPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	pivot := pq.QuoteIdentifier(s.tables.RoleHasPermissions)
	if _, err := s.tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE role_id = $1", pivot), roleID); err != nil {
		return err
	}
	for _, permissionID := range permissionIDs {
		if _, err := s.tx.ExecContext(ctx, fmt.Sprintf(
			"INSERT INTO %s (permission_id, role_id) VALUES ($1, $2)", pivot), permissionID, roleID); err != nil {
			return err
		}
	}
	return nil
}
