// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/gatekeeper/internal/platform/postgres"
)

// PostgresStore implements [Store] on a pgx connection pool.
//
// Schema is owned by the migrations package; see migrations/000001_identity.up.sql.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL implementation of [Store].
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresUserColumns = `id, username, email, display_name, password_hash, created_at`

func scanPostgresUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// # Users

func insertPostgresUser(context context.Context, querier postgres.Querier, user *User) error {
	const query = `
		INSERT INTO users (id, username, email, display_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := querier.Exec(context, query,
		user.ID,
		user.Username,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.CreatedAt,
	)
	return err
}

/*
CreateUser persists a new account row.

Parameters:
  - context: context.Context
  - user: *User (ID and CreatedAt already set)

Returns:
  - error: ErrUsernameTaken, ErrEmailTaken or wrapped database errors
*/
func (repository *PostgresStore) CreateUser(context context.Context, user *User) error {
	return translate(insertPostgresUser(context, repository.pool, user), "postgres_identity_create_user_failed")
}

func (repository *PostgresStore) findUser(context context.Context, action, where string, args ...any) (*User, error) {
	query := `SELECT ` + postgresUserColumns + ` FROM users WHERE ` + where + ` LIMIT 1`
	user, err := scanPostgresUser(repository.pool.QueryRow(context, query, args...))
	if err != nil {
		return nil, translate(err, action)
	}
	return user, nil
}

// FindUserByID retrieves an account by primary key.
func (repository *PostgresStore) FindUserByID(context context.Context, id string) (*User, error) {
	return repository.findUser(context, "postgres_identity_find_user_by_id_failed", `id = $1`, id)
}

// FindUserByEmail retrieves an account by normalized email.
func (repository *PostgresStore) FindUserByEmail(context context.Context, email string) (*User, error) {
	return repository.findUser(context, "postgres_identity_find_user_by_email_failed", `email = $1`, NormalizeEmail(email))
}

// FindUserByLogin retrieves an account by username or email.
func (repository *PostgresStore) FindUserByLogin(context context.Context, identifier string) (*User, error) {
	return repository.findUser(context, "postgres_identity_find_user_by_login_failed",
		`username = $1 OR email = $2`, identifier, NormalizeEmail(identifier))
}

/*
DeleteUser removes the account. Provider links, owned codes and reset tokens go
with it through ON DELETE CASCADE; codes issued to the address before the
account existed carry no user_id and are removed explicitly.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: dberr.ErrNotFound or wrapped database errors
*/
func (repository *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	err := postgres.WithTx(ctx, repository.pool, func(ctx context.Context, tx postgres.Querier) error {
		var email *string
		err := tx.QueryRow(ctx, `DELETE FROM users WHERE id = $1 RETURNING email`, id).Scan(&email)
		if err != nil {
			return err
		}
		if email != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM email_codes WHERE email = $1`, *email); err != nil {
				return err
			}
		}
		return nil
	})
	return translate(err, "postgres_identity_delete_user_failed")
}

// # Provider Links

// FindUserByOAuth retrieves the owner of a provider identity.
func (repository *PostgresStore) FindUserByOAuth(context context.Context, provider, providerID string) (*User, error) {
	const query = `
		SELECT u.id, u.username, u.email, u.display_name, u.password_hash, u.created_at
		FROM oauth_accounts a
		JOIN users u ON u.id = a.user_id
		WHERE a.provider = $1 AND a.provider_id = $2`

	user, err := scanPostgresUser(repository.pool.QueryRow(context, query, provider, providerID))
	if err != nil {
		return nil, translate(err, "postgres_identity_find_user_by_oauth_failed")
	}
	return user, nil
}

// ListOAuthAccounts returns the provider links of a user, oldest first.
func (repository *PostgresStore) ListOAuthAccounts(context context.Context, userID string) ([]OAuthAccount, error) {
	const query = `
		SELECT id, user_id, provider, provider_id, email, display_name, created_at
		FROM oauth_accounts
		WHERE user_id = $1
		ORDER BY created_at, id`

	rows, err := repository.pool.Query(context, query, userID)
	if err != nil {
		return nil, translate(err, "postgres_identity_list_oauth_failed")
	}
	defer rows.Close()

	accounts := []OAuthAccount{}
	for rows.Next() {
		var account OAuthAccount
		if err := rows.Scan(
			&account.ID,
			&account.UserID,
			&account.Provider,
			&account.ProviderID,
			&account.Email,
			&account.DisplayName,
			&account.CreatedAt,
		); err != nil {
			return nil, translate(err, "postgres_identity_scan_oauth_failed")
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "postgres_identity_list_oauth_failed")
	}
	return accounts, nil
}

func insertPostgresOAuthAccount(context context.Context, querier postgres.Querier, account *OAuthAccount) error {
	const query = `
		INSERT INTO oauth_accounts (id, user_id, provider, provider_id, email, display_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := querier.Exec(context, query,
		account.ID,
		account.UserID,
		account.Provider,
		account.ProviderID,
		account.Email,
		account.DisplayName,
		account.CreatedAt,
	)
	return err
}

// LinkOAuthAccount inserts a provider link for an existing user.
func (repository *PostgresStore) LinkOAuthAccount(context context.Context, account *OAuthAccount) error {
	return translate(insertPostgresOAuthAccount(context, repository.pool, account), "postgres_identity_link_oauth_failed")
}

// CreateUserWithOAuth inserts a user and its first provider link atomically.
func (repository *PostgresStore) CreateUserWithOAuth(ctx context.Context, user *User, account *OAuthAccount) error {
	err := postgres.WithTx(ctx, repository.pool, func(ctx context.Context, tx postgres.Querier) error {
		if err := insertPostgresUser(ctx, tx, user); err != nil {
			return err
		}
		return insertPostgresOAuthAccount(ctx, tx, account)
	})
	return translate(err, "postgres_identity_create_oauth_user_failed")
}

// # Email Codes

// ReplaceEmailCode invalidates the live code for the address and stores a new one.
func (repository *PostgresStore) ReplaceEmailCode(ctx context.Context, code *EmailCode) error {
	err := postgres.WithTx(ctx, repository.pool, func(ctx context.Context, tx postgres.Querier) error {
		if _, err := tx.Exec(ctx,
			`UPDATE email_codes SET used = TRUE WHERE email = $1 AND used = FALSE`, code.Email); err != nil {
			return err
		}

		const insert = `
			INSERT INTO email_codes (id, email, code, user_id, expires_at, used, created_at)
			VALUES ($1, $2, $3, $4, $5, FALSE, $6)`
		_, err := tx.Exec(ctx, insert,
			code.ID,
			code.Email,
			code.Code,
			code.UserID,
			code.ExpiresAt,
			code.CreatedAt,
		)
		return err
	})
	return translate(err, "postgres_identity_replace_email_code_failed")
}

// FindActiveEmailCode looks up a redeemable code without consuming it.
func (repository *PostgresStore) FindActiveEmailCode(context context.Context, email, value string, now time.Time) (*EmailCode, error) {
	const query = `
		SELECT id, email, code, user_id, expires_at, used, created_at
		FROM email_codes
		WHERE email = $1 AND code = $2 AND used = FALSE AND expires_at > $3
		LIMIT 1`

	code := &EmailCode{}
	err := repository.pool.QueryRow(context, query, NormalizeEmail(email), value, now).Scan(
		&code.ID,
		&code.Email,
		&code.Code,
		&code.UserID,
		&code.ExpiresAt,
		&code.Used,
		&code.CreatedAt,
	)
	if err != nil {
		return nil, translate(err, "postgres_identity_find_email_code_failed")
	}
	return code, nil
}

func consumePostgresEmailCode(context context.Context, querier postgres.Querier, id string, now time.Time) error {
	tag, err := querier.Exec(context,
		`UPDATE email_codes SET used = TRUE WHERE id = $1 AND used = FALSE AND expires_at > $2`, id, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSecretSpent
	}
	return nil
}

// ConsumeEmailCode marks a code used if nobody else did first.
func (repository *PostgresStore) ConsumeEmailCode(context context.Context, id string, now time.Time) error {
	err := consumePostgresEmailCode(context, repository.pool, id, now)
	return translate(err, "postgres_identity_consume_email_code_failed")
}

// CreateUserFromEmailCode redeems the code and creates the passwordless account atomically.
func (repository *PostgresStore) CreateUserFromEmailCode(ctx context.Context, codeID string, user *User, now time.Time) error {
	err := postgres.WithTx(ctx, repository.pool, func(ctx context.Context, tx postgres.Querier) error {
		if err := consumePostgresEmailCode(ctx, tx, codeID, now); err != nil {
			return err
		}
		if err := insertPostgresUser(ctx, tx, user); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE email_codes SET user_id = $1 WHERE id = $2`, user.ID, codeID)
		return err
	})
	return translate(err, "postgres_identity_create_email_user_failed")
}

// # Password Reset Tokens

// CreateResetToken stores a reset token.
func (repository *PostgresStore) CreateResetToken(context context.Context, token *PasswordResetToken) error {
	const query = `
		INSERT INTO password_reset_tokens (id, user_id, token, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)`

	_, err := repository.pool.Exec(context, query,
		token.ID,
		token.UserID,
		token.Token,
		token.ExpiresAt,
		token.CreatedAt,
	)
	return translate(err, "postgres_identity_create_reset_token_failed")
}

/*
ConsumeResetToken spends the token and applies the new password in one transaction.

The UPDATE ... RETURNING claims the row; a concurrent caller holding the same
token waits on the row lock and then matches nothing.

Parameters:
  - context: context.Context
  - token: string
  - passwordHash: string
  - now: time.Time

Returns:
  - string: owning user id
  - error: dberr.ErrNotFound or wrapped database errors
*/
func (repository *PostgresStore) ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) (string, error) {
	var userID string
	err := postgres.WithTx(ctx, repository.pool, func(ctx context.Context, tx postgres.Querier) error {
		const claim = `
			UPDATE password_reset_tokens SET used = TRUE
			WHERE token = $1 AND used = FALSE AND expires_at > $2
			RETURNING user_id`
		if err := tx.QueryRow(ctx, claim, token, now).Scan(&userID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("postgres_identity_reset_owner_missing: %s", userID)
		}
		return nil
	})
	if err != nil {
		return "", translate(err, "postgres_identity_consume_reset_token_failed")
	}
	return userID, nil
}

// Ping checks pool connectivity.
func (repository *PostgresStore) Ping(context context.Context) error {
	return postgres.Ping(context, repository.pool)
}
