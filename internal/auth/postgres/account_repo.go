// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package postgres implements the account store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool the repository uses.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectAccount = `
	SELECT id, name, email, password_hash, role, status,
	       failed_attempts, locked_until, created_at, updated_at
	FROM accounts`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool poolIface
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (
			id, name, email, password_hash, role, status,
			failed_attempts, locked_until, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		account.ID.String(),
		account.Name,
		account.Email,
		account.PasswordHash,
		string(account.Role),
		string(account.Status),
		int16(account.FailedAttempts),
		account.LockedUntil,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_EMAIL_TAKEN").
				With("email", account.Email).
				Wrap(err)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("email", account.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, selectAccount+` WHERE id = $1`, id.String())
	return r.lookup(row, "id", id.String())
}

// FindByEmail retrieves an account by its normalized email.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, selectAccount+` WHERE email = $1`, email)
	return r.lookup(row, "email", email)
}

func (r *AccountRepository) lookup(row pgx.Row, key, value string) (*auth.Account, error) {
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get account by "+key).With(key, value).Wrap(err)
	}
	return account, nil
}

// ApplyFailureUpdate writes the failure counter and lock expiry only when the
// stored counter still equals expectedPrior. Zero affected rows means another
// attempt moved the counter first.
func (r *AccountRepository) ApplyFailureUpdate(ctx context.Context, id ulid.ULID, expectedPrior, failedAttempts uint8, lockedUntil *time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET failed_attempts = $3, locked_until = $4, updated_at = now()
		WHERE id = $1 AND failed_attempts = $2
	`, id.String(), int16(expectedPrior), int16(failedAttempts), lockedUntil)
	if err != nil {
		return false, oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "apply failure update").
			With("id", id.String()).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// ApplySuccessReset clears the failure counter and lock expiry.
func (r *AccountRepository) ApplySuccessReset(ctx context.Context, id ulid.ULID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET failed_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "apply success reset").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetStatus changes the activation state of an account.
func (r *AccountRepository) SetStatus(ctx context.Context, id ulid.ULID, status auth.Status) error {
	if !status.Valid() {
		return oops.Code("ACCOUNT_INVALID_STATUS").With("status", string(status)).Errorf("unknown status %q", status)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET status = $2, updated_at = now() WHERE id = $1
	`, id.String(), string(status))
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "set status").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanAccount scans one row. pgx.ErrNoRows is returned unwrapped.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr          string
		role, status   string
		failedAttempts int16
		account        auth.Account
	)

	err := row.Scan(
		&idStr,
		&account.Name,
		&account.Email,
		&account.PasswordHash,
		&role,
		&status,
		&failedAttempts,
		&account.LockedUntil,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers attach lookup context
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").With("operation", "scan account").Wrap(err)
	}

	account.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if failedAttempts < 0 || failedAttempts > auth.MaxFailedAttempts {
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").
			With("id", idStr).
			Errorf("failed_attempts out of range: %d", failedAttempts)
	}
	account.FailedAttempts = uint8(failedAttempts)
	account.Role = auth.Role(role)
	account.Status = auth.Status(status)
	return &account, nil
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)
