package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the part of pgxpool.Pool the service needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Permission is an atomic capability granted through roles.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Service resolves permissions from the ERP role tables.
type Service struct {
	db Querier
}

// NewService constructs a Service.
func NewService(db Querier) *Service {
	return &Service{db: db}
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	perms, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Permission])
	if err != nil {
		return nil, fmt.Errorf("rbac: scan permissions: %w", err)
	}
	return perms, nil
}

// EnsurePermissions registers the given names so administrators can grant them.
func (s *Service) EnsurePermissions(ctx context.Context, descriptions map[string]string) error {
	for name, desc := range descriptions {
		_, err := s.db.Exec(ctx, `INSERT INTO permissions (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description`, strings.TrimSpace(name), strings.TrimSpace(desc))
		if err != nil {
			return fmt.Errorf("rbac: ensure %s: %w", name, err)
		}
	}
	return nil
}

// EffectivePermissions returns the deduplicated permission names of a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT p.name
FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
ORDER BY p.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: effective permissions: %w", err)
	}
	perms, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("rbac: scan effective permissions: %w", err)
	}
	return perms, nil
}
