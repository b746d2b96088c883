package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

var ResetAccountPasswordSQL = `UPDATE "accounts" AS "acc"
SET
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"acc"."username" = ?
RETURNING *;`

// Accounts is the account repository
type Accounts interface {
	repository.Repository[*Account]
	AccountStore

	FindByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*Account, error)
	CreateAccount(ctx context.Context, record *Account) (*Account, error)
	CreateAccountTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error)
	ResetPassword(ctx context.Context, username, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, username, passwordHash string) error
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ AccountStore                    = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

// NewAccountsRepository creates the account repository
func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return a.FindByUsernameTx(ctx, a.db, username)
}

func (a *accounts) FindByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.username = ?", username).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"username": username,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) CreateAccount(ctx context.Context, record *Account) (*Account, error) {
	return a.CreateAccountTx(ctx, a.db, record)
}

// CreateAccountTx inserts record, a duplicate username yields ErrAccountConflict
func (a *accounts) CreateAccountTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error) {
	prepareAccountDefaults(record)

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAccountConflict
		}
		return nil, err
	}

	return record, nil
}

// ReconcileDirectoryAccount creates the account on first directory login
// and refreshes the display attributes on later ones.
func (a *accounts) ReconcileDirectoryAccount(ctx context.Context, identity DirectoryIdentity) (*Account, error) {
	var out *Account

	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := a.FindByUsernameTx(ctx, tx, identity.Username)
		if err != nil {
			if !repository.IsRecordNotFound(err) {
				return err
			}

			created, err := a.CreateAccountTx(ctx, tx, &Account{
				Username:     identity.Username,
				FullName:     identity.DisplayName,
				Title:        identity.Title,
				IsDomainUser: true,
			})
			if err != nil {
				return err
			}
			out = created
			return nil
		}

		if existing.FullName == identity.DisplayName && existing.Title == identity.Title {
			out = existing
			return nil
		}

		now := time.Now()
		existing.FullName = identity.DisplayName
		existing.Title = identity.Title
		existing.UpdatedAt = &now

		_, err = tx.NewUpdate().
			Model(existing).
			Column("full_name", "title", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}

		out = existing
		return nil
	})

	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAccountConflict
		}
		return nil, err
	}

	return out, nil
}

func (a *accounts) ResetPassword(ctx context.Context, username, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, username, passwordHash)
}

func (a *accounts) ResetPasswordTx(ctx context.Context, tx bun.IDB, username, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, ResetAccountPasswordSQL, passwordHash, time.Now(), username)
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"username": username,
			})
	}

	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrAccountConflict) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
