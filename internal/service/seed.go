package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
	"github.com/berry-13/vicsam-group-sub002/internal/repository"
)

type RoleDefinition struct {
	Name        string
	Description string
	Permissions []string
}

// SystemRoles are created by SeedSystemRoles and marked as system roles.
var SystemRoles = []RoleDefinition{
	{
		Name:        "admin",
		Description: "Full access",
		Permissions: []string{PermissionSuperuser},
	},
	{
		Name:        DefaultRole,
		Description: "Default role for registered users",
		Permissions: []string{"profile.read", "profile.update", "sessions.read", "sessions.revoke"},
	},
	{
		Name:        "security_officer",
		Description: "Key, token and audit management",
		Permissions: []string{"keys.rotate", "keys.read", "tokens.rotate", "audit.read", "users.unlock"},
	},
}

// SeedSystemRoles makes storage hold every role in defs with exactly the
// listed permissions. Running it again is a no-op.
func SeedSystemRoles(ctx context.Context, repos repository.Repositories, defs []RoleDefinition, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	return repos.Transaction(ctx, func(tx repository.Repositories) error {
		for _, def := range defs {
			ids := make([]uint, 0, len(def.Permissions))
			for _, name := range def.Permissions {
				p, err := tx.Permissions().Ensure(ctx, name)
				if err != nil {
					return err
				}
				ids = append(ids, p.ID)
			}

			role, err := tx.Roles().FindByName(ctx, def.Name)
			switch {
			case errors.Is(err, repository.ErrRoleNotFound):
				role = &domain.Role{Name: def.Name, Description: def.Description, IsSystem: true}
				if err := tx.Roles().Create(ctx, role, ids); err != nil {
					return err
				}
				logger.InfoContext(ctx, "role seeded", "role", def.Name, "permissions", len(ids))
			case err != nil:
				return err
			default:
				if err := tx.Roles().SetPermissions(ctx, role.ID, ids); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
