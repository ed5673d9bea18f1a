package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shield/models"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PermissionStore is the persistence surface used by the seeder and the generator.
type PermissionStore interface {
	RolesExist(ctx context.Context) (bool, error)
	PermissionsExist(ctx context.Context) (bool, error)
	RolesWithPermissions(ctx context.Context) ([]models.Role, error)
	Permissions(ctx context.Context) ([]models.Permission, error)
	EnsurePermission(ctx context.Context, name, guardName string) (bool, error)
}

var tracer = otel.Tracer("shield/store")

type PostgresStore struct {
	db     *sql.DB
	tables models.Tables
}

func NewPostgresStore(db *sql.DB, tables models.Tables) *PostgresStore {
	return &PostgresStore{db: db, tables: tables}
}

func (s *PostgresStore) RolesExist(ctx context.Context) (bool, error) {
	return s.exists(ctx, "store.RolesExist", s.tables.Roles)
}

func (s *PostgresStore) PermissionsExist(ctx context.Context) (bool, error) {
	return s.exists(ctx, "store.PermissionsExist", s.tables.Permissions)
}

// RolesWithPermissions loads every role and then its permissions through the
// pivot table in a second query, grouping them in memory.
func (s *PostgresStore) RolesWithPermissions(ctx context.Context) (roles []models.Role, err error) {
	ctx, span := s.start(ctx, "store.RolesWithPermissions")
	defer func() { finish(span, err) }()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, name, guard_name FROM %s ORDER BY id", pq.QuoteIdentifier(s.tables.Roles)))
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	index := make(map[int64]int)
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.GuardName); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		index[role.ID] = len(roles)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	if len(roles) == 0 {
		return roles, nil
	}

	permRows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT rp.role_id, p.id, p.name, p.guard_name FROM %s rp JOIN %s p ON p.id = rp.permission_id ORDER BY rp.role_id, p.id",
		pq.QuoteIdentifier(s.tables.RoleHasPermissions), pq.QuoteIdentifier(s.tables.Permissions)))
	if err != nil {
		return nil, fmt.Errorf("query role permissions: %w", err)
	}
	defer permRows.Close()

	for permRows.Next() {
		var roleID int64
		var permission models.Permission
		if err := permRows.Scan(&roleID, &permission.ID, &permission.Name, &permission.GuardName); err != nil {
			return nil, fmt.Errorf("scan role permission: %w", err)
		}
		i, ok := index[roleID]
		if !ok {
			continue
		}
		roles[i].Permissions = append(roles[i].Permissions, permission)
	}
	if err := permRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role permissions: %w", err)
	}

	span.SetAttributes(attribute.Int("shield.roles", len(roles)))
	return roles, nil
}

func (s *PostgresStore) Permissions(ctx context.Context) (permissions []models.Permission, err error) {
	ctx, span := s.start(ctx, "store.Permissions")
	defer func() { finish(span, err) }()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, name, guard_name FROM %s ORDER BY id", pq.QuoteIdentifier(s.tables.Permissions)))
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var permission models.Permission
		if err := rows.Scan(&permission.ID, &permission.Name, &permission.GuardName); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permissions = append(permissions, permission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}

	span.SetAttributes(attribute.Int("shield.permissions", len(permissions)))
	return permissions, nil
}

// EnsurePermission creates the permission when no row with the same name and
// guard exists. It reports whether a row was inserted.
func (s *PostgresStore) EnsurePermission(ctx context.Context, name, guardName string) (created bool, err error) {
	ctx, span := s.start(ctx, "store.EnsurePermission")
	defer func() { finish(span, err) }()
	span.SetAttributes(attribute.String("shield.permission", name), attribute.String("shield.guard", guardName))

	table := pq.QuoteIdentifier(s.tables.Permissions)

	var id int64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT id FROM %s WHERE name = $1 AND guard_name = $2", table), name, guardName).Scan(&id)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("lookup permission %s: %w", name, err)
	}

	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (name, guard_name, created_at, updated_at) VALUES ($1, $2, NOW(), NOW()) RETURNING id", table),
		name, guardName).Scan(&id)
	if err != nil {
		return false, fmt.Errorf("create permission %s: %w", name, err)
	}
	return true, nil
}

func (s *PostgresStore) exists(ctx context.Context, spanName, table string) (found bool, err error) {
	ctx, span := s.start(ctx, spanName)
	defer func() { finish(span, err) }()

	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT EXISTS (SELECT 1 FROM %s)", pq.QuoteIdentifier(table))).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return found, nil
}

func (s *PostgresStore) start(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", "postgresql")))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
