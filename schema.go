package auth

import (
	"context"
	"fmt"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// CreateSchema creates the account and role tables if missing
func CreateSchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*Account)(nil),
		(*Role)(nil),
		(*RoleAssignment)(nil),
		(*RoleAssignmentAudit)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	return nil
}

// SeedOptions controls the bootstrap data written by Seed
type SeedOptions struct {
	AdminUsername string
	AdminPassword string
}

// Seed writes the default roles and the built in super admin. Running it
// again leaves existing rows untouched.
func Seed(ctx context.Context, repos RepositoryManager, hasher PasswordAuthenticator, opts SeedOptions) (*Account, error) {
	for _, role := range DefaultRoles() {
		if _, err := repos.Roles().CreateRole(ctx, role); err != nil {
			return nil, fmt.Errorf("seed role %s: %w", role.Name, err)
		}
	}

	username := opts.AdminUsername
	if username == "" {
		username = "admin"
	}

	existing, err := repos.Accounts().FindByUsername(ctx, username)
	if err == nil {
		return existing, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	hash, err := hasher.HashPassword(opts.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("seed admin password: %w", err)
	}

	admin, err := repos.Accounts().CreateAccount(ctx, &Account{
		Username:     username,
		PasswordHash: hash,
		FullName:     "Administrator",
		Title:        "Built-in Administrator",
		IsSuperAdmin: true,
	})
	if err != nil {
		return nil, err
	}

	if _, err := repos.Roles().GrantByName(ctx, admin.ID, RoleAdmin, admin.ID); err != nil {
		return nil, err
	}

	return admin, nil
}
