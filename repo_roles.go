package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RoleAssignments is the bun backed role ledger.
// Assignments are additive, there is no revoke.
type RoleAssignments interface {
	RoleLedger

	FindRoleByName(ctx context.Context, name string) (*Role, error)
	CreateRole(ctx context.Context, role *Role) (*Role, error)
	AuditTrail(ctx context.Context, accountID uuid.UUID) ([]RoleAssignmentAudit, error)
}

type roleAssignments struct {
	db     *bun.DB
	logger Logger
}

var _ RoleAssignments = (*roleAssignments)(nil)

// NewRoleAssignmentsRepository creates the ledger
func NewRoleAssignmentsRepository(db *bun.DB, logger Logger) RoleAssignments {
	return &roleAssignments{
		db:     db,
		logger: normalizeLogger(logger),
	}
}

// Grant assigns roleID to accountID. It returns true only when a new
// assignment was written, in which case an audit row is appended in the
// same transaction.
func (r *roleAssignments) Grant(ctx context.Context, accountID, roleID, adminID uuid.UUID) (bool, error) {
	granted := false

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()

		res, err := tx.NewInsert().
			Model(&RoleAssignment{
				ID:        uuid.New(),
				AccountID: accountID,
				RoleID:    roleID,
				CreatedAt: &now,
			}).
			On("CONFLICT (account_id, role_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}

		if affected == 0 {
			return nil
		}

		_, err = tx.NewInsert().
			Model(&RoleAssignmentAudit{
				ID:        uuid.New(),
				AccountID: accountID,
				RoleID:    roleID,
				AdminID:   adminID,
				Action:    AuditActionGrant,
				CreatedAt: &now,
			}).
			Exec(ctx)
		if err != nil {
			return err
		}

		granted = true
		return nil
	})

	if err != nil {
		return false, err
	}

	if granted {
		r.logger.Info("role %s granted to account %s by %s", roleID, accountID, adminID)
	}

	return granted, nil
}

func (r *roleAssignments) GrantByName(ctx context.Context, accountID uuid.UUID, roleName string, adminID uuid.UUID) (bool, error) {
	role, err := r.FindRoleByName(ctx, roleName)
	if err != nil {
		return false, err
	}
	return r.Grant(ctx, accountID, role.ID, adminID)
}

// ListRoleNames returns every role name when accountID is nil, otherwise
// the names assigned to that account. Names are sorted.
func (r *roleAssignments) ListRoleNames(ctx context.Context, accountID *uuid.UUID) ([]string, error) {
	names := []string{}

	q := r.db.NewSelect().
		TableExpr("roles AS r").
		Column("r.name").
		OrderExpr("r.name ASC")

	if accountID != nil {
		q = q.
			Join("JOIN role_assignments AS ra ON ra.role_id = r.id").
			Where("ra.account_id = ?", *accountID)
	}

	if err := q.Scan(ctx, &names); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []string{}, nil
		}
		return nil, err
	}

	return names, nil
}

func (r *roleAssignments) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	name = strings.TrimSpace(name)

	role := &Role{}
	err := r.db.NewSelect().
		Model(role).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}

	return role, nil
}

// CreateRole inserts role unless a role with the same name exists, the
// stored record is returned either way.
func (r *roleAssignments) CreateRole(ctx context.Context, role *Role) (*Role, error) {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}

	_, err := r.db.NewInsert().
		Model(role).
		On("CONFLICT (name) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return r.FindRoleByName(ctx, role.Name)
}

func (r *roleAssignments) AuditTrail(ctx context.Context, accountID uuid.UUID) ([]RoleAssignmentAudit, error) {
	var rows []RoleAssignmentAudit

	err := r.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.account_id = ?", accountID).
		OrderExpr("raa.created_at ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	return rows, nil
}
