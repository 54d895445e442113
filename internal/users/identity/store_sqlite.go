// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taibuivan/gatekeeper/internal/platform/sqlite"
)

// sqliteSchema mirrors migrations/000001_identity.up.sql. Timestamps are Unix
// milliseconds so range predicates compare numerically.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT    PRIMARY KEY,
    username      TEXT    NOT NULL UNIQUE,
    email         TEXT    UNIQUE,
    display_name  TEXT,
    password_hash TEXT,
    created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS oauth_accounts (
    id           TEXT    PRIMARY KEY,
    user_id      TEXT    NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    provider     TEXT    NOT NULL,
    provider_id  TEXT    NOT NULL,
    email        TEXT,
    display_name TEXT,
    created_at   INTEGER NOT NULL,
    UNIQUE (provider, provider_id)
);

CREATE INDEX IF NOT EXISTS oauth_accounts_user_id_idx ON oauth_accounts (user_id);

CREATE TABLE IF NOT EXISTS email_codes (
    id         TEXT    PRIMARY KEY,
    email      TEXT    NOT NULL,
    code       TEXT    NOT NULL,
    user_id    TEXT    REFERENCES users (id) ON DELETE CASCADE,
    expires_at INTEGER NOT NULL,
    used       INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS email_codes_active_email_key ON email_codes (email) WHERE used = 0;

CREATE TABLE IF NOT EXISTS password_reset_tokens (
    id         TEXT    PRIMARY KEY,
    user_id    TEXT    NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    token      TEXT    NOT NULL UNIQUE,
    expires_at INTEGER NOT NULL,
    used       INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS password_reset_tokens_user_id_idx ON password_reset_tokens (user_id);
`

// SQLiteStore implements [Store] on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore applies the schema to db and returns a store over it.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("sqlite_identity_schema_failed: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func millis(moment time.Time) int64 { return moment.UnixMilli() }

func fromMillis(value int64) time.Time { return time.UnixMilli(value).UTC() }

const sqliteUserColumns = `id, username, email, display_name, password_hash, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row rowScanner) (*User, error) {
	user := &User{}
	var createdAt int64
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&createdAt,
	); err != nil {
		return nil, err
	}
	user.CreatedAt = fromMillis(createdAt)
	return user, nil
}

// # Users

func insertSQLiteUser(ctx context.Context, tx sqlite.DBTX, user *User) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, username, email, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		millis(user.CreatedAt),
	)
	return err
}

// CreateUser persists a new account row.
func (repository *SQLiteStore) CreateUser(context context.Context, user *User) error {
	return translate(insertSQLiteUser(context, repository.db, user), "sqlite_identity_create_user_failed")
}

func (repository *SQLiteStore) findUser(context context.Context, action, where string, args ...any) (*User, error) {
	query := `SELECT ` + sqliteUserColumns + ` FROM users WHERE ` + where + ` LIMIT 1`
	user, err := scanSQLiteUser(repository.db.QueryRowContext(context, query, args...))
	if err != nil {
		return nil, translate(err, action)
	}
	return user, nil
}

// FindUserByID retrieves an account by primary key.
func (repository *SQLiteStore) FindUserByID(context context.Context, id string) (*User, error) {
	return repository.findUser(context, "sqlite_identity_find_user_by_id_failed", `id = ?`, id)
}

// FindUserByEmail retrieves an account by normalized email.
func (repository *SQLiteStore) FindUserByEmail(context context.Context, email string) (*User, error) {
	return repository.findUser(context, "sqlite_identity_find_user_by_email_failed", `email = ?`, NormalizeEmail(email))
}

// FindUserByLogin retrieves an account by username or email.
func (repository *SQLiteStore) FindUserByLogin(context context.Context, identifier string) (*User, error) {
	return repository.findUser(context, "sqlite_identity_find_user_by_login_failed",
		`username = ? OR email = ?`, identifier, NormalizeEmail(identifier))
}

// DeleteUser removes the account and every secret issued to it or its address.
func (repository *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	err := sqlite.WithTx(ctx, repository.db, func(ctx context.Context, tx sqlite.DBTX) error {
		var email sql.NullString
		if err := tx.QueryRowContext(ctx, `DELETE FROM users WHERE id = ? RETURNING email`, id).Scan(&email); err != nil {
			return err
		}
		if email.Valid {
			if _, err := tx.ExecContext(ctx, `DELETE FROM email_codes WHERE email = ?`, email.String); err != nil {
				return err
			}
		}
		return nil
	})
	return translate(err, "sqlite_identity_delete_user_failed")
}

// # Provider Links

// FindUserByOAuth retrieves the owner of a provider identity.
func (repository *SQLiteStore) FindUserByOAuth(context context.Context, provider, providerID string) (*User, error) {
	const query = `
		SELECT u.id, u.username, u.email, u.display_name, u.password_hash, u.created_at
		FROM oauth_accounts a
		JOIN users u ON u.id = a.user_id
		WHERE a.provider = ? AND a.provider_id = ?`

	user, err := scanSQLiteUser(repository.db.QueryRowContext(context, query, provider, providerID))
	if err != nil {
		return nil, translate(err, "sqlite_identity_find_user_by_oauth_failed")
	}
	return user, nil
}

// ListOAuthAccounts returns the provider links of a user, oldest first.
func (repository *SQLiteStore) ListOAuthAccounts(context context.Context, userID string) ([]OAuthAccount, error) {
	rows, err := repository.db.QueryContext(context, `
		SELECT id, user_id, provider, provider_id, email, display_name, created_at
		FROM oauth_accounts
		WHERE user_id = ?
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, translate(err, "sqlite_identity_list_oauth_failed")
	}
	defer rows.Close()

	accounts := []OAuthAccount{}
	for rows.Next() {
		var (
			account   OAuthAccount
			createdAt int64
		)
		if err := rows.Scan(
			&account.ID,
			&account.UserID,
			&account.Provider,
			&account.ProviderID,
			&account.Email,
			&account.DisplayName,
			&createdAt,
		); err != nil {
			return nil, translate(err, "sqlite_identity_scan_oauth_failed")
		}
		account.CreatedAt = fromMillis(createdAt)
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "sqlite_identity_list_oauth_failed")
	}
	return accounts, nil
}

func insertSQLiteOAuthAccount(ctx context.Context, tx sqlite.DBTX, account *OAuthAccount) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO oauth_accounts (id, user_id, provider, provider_id, email, display_name, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.UserID,
		account.Provider,
		account.ProviderID,
		account.Email,
		account.DisplayName,
		millis(account.CreatedAt),
	)
	return err
}

// LinkOAuthAccount inserts a provider link for an existing user.
func (repository *SQLiteStore) LinkOAuthAccount(context context.Context, account *OAuthAccount) error {
	return translate(insertSQLiteOAuthAccount(context, repository.db, account), "sqlite_identity_link_oauth_failed")
}

// CreateUserWithOAuth inserts a user and its first provider link atomically.
func (repository *SQLiteStore) CreateUserWithOAuth(ctx context.Context, user *User, account *OAuthAccount) error {
	err := sqlite.WithTx(ctx, repository.db, func(ctx context.Context, tx sqlite.DBTX) error {
		if err := insertSQLiteUser(ctx, tx, user); err != nil {
			return err
		}
		return insertSQLiteOAuthAccount(ctx, tx, account)
	})
	return translate(err, "sqlite_identity_create_oauth_user_failed")
}

// # Email Codes

// ReplaceEmailCode invalidates the live code for the address and stores a new one.
func (repository *SQLiteStore) ReplaceEmailCode(ctx context.Context, code *EmailCode) error {
	err := sqlite.WithTx(ctx, repository.db, func(ctx context.Context, tx sqlite.DBTX) error {
		if _, err := tx.ExecContext(ctx, `UPDATE email_codes SET used = 1 WHERE email = ? AND used = 0`, code.Email); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO email_codes (id, email, code, user_id, expires_at, used, created_at) VALUES (?, ?, ?, ?, ?, 0, ?)`,
			code.ID,
			code.Email,
			code.Code,
			code.UserID,
			millis(code.ExpiresAt),
			millis(code.CreatedAt),
		)
		return err
	})
	return translate(err, "sqlite_identity_replace_email_code_failed")
}

// FindActiveEmailCode looks up a redeemable code without consuming it.
func (repository *SQLiteStore) FindActiveEmailCode(context context.Context, email, value string, now time.Time) (*EmailCode, error) {
	var (
		code                 EmailCode
		expiresAt, createdAt int64
	)
	err := repository.db.QueryRowContext(context, `
		SELECT id, email, code, user_id, expires_at, used, created_at
		FROM email_codes
		WHERE email = ? AND code = ? AND used = 0 AND expires_at > ?
		LIMIT 1`, NormalizeEmail(email), value, millis(now)).Scan(
		&code.ID,
		&code.Email,
		&code.Code,
		&code.UserID,
		&expiresAt,
		&code.Used,
		&createdAt,
	)
	if err != nil {
		return nil, translate(err, "sqlite_identity_find_email_code_failed")
	}
	code.ExpiresAt = fromMillis(expiresAt)
	code.CreatedAt = fromMillis(createdAt)
	return &code, nil
}

func consumeSQLiteEmailCode(ctx context.Context, tx sqlite.DBTX, id string, now time.Time) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE email_codes SET used = 1 WHERE id = ? AND used = 0 AND expires_at > ?`, id, millis(now))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSecretSpent
	}
	return nil
}

// ConsumeEmailCode marks a code used if nobody else did first.
func (repository *SQLiteStore) ConsumeEmailCode(context context.Context, id string, now time.Time) error {
	return translate(consumeSQLiteEmailCode(context, repository.db, id, now), "sqlite_identity_consume_email_code_failed")
}

// CreateUserFromEmailCode redeems the code and creates the passwordless account atomically.
func (repository *SQLiteStore) CreateUserFromEmailCode(ctx context.Context, codeID string, user *User, now time.Time) error {
	err := sqlite.WithTx(ctx, repository.db, func(ctx context.Context, tx sqlite.DBTX) error {
		if err := consumeSQLiteEmailCode(ctx, tx, codeID, now); err != nil {
			return err
		}
		if err := insertSQLiteUser(ctx, tx, user); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE email_codes SET user_id = ? WHERE id = ?`, user.ID, codeID)
		return err
	})
	return translate(err, "sqlite_identity_create_email_user_failed")
}

// # Password Reset Tokens

// CreateResetToken stores a reset token.
func (repository *SQLiteStore) CreateResetToken(context context.Context, token *PasswordResetToken) error {
	_, err := repository.db.ExecContext(context,
		`INSERT INTO password_reset_tokens (id, user_id, token, expires_at, used, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		token.ID,
		token.UserID,
		token.Token,
		millis(token.ExpiresAt),
		millis(token.CreatedAt),
	)
	return translate(err, "sqlite_identity_create_reset_token_failed")
}

// ConsumeResetToken spends the token and applies the new password in one transaction.
func (repository *SQLiteStore) ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) (string, error) {
	var userID string
	err := sqlite.WithTx(ctx, repository.db, func(ctx context.Context, tx sqlite.DBTX) error {
		if err := tx.QueryRowContext(ctx,
			`UPDATE password_reset_tokens SET used = 1 WHERE token = ? AND used = 0 AND expires_at > ? RETURNING user_id`,
			token, millis(now)).Scan(&userID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, userID)
		if err != nil {
			return err
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return fmt.Errorf("sqlite_identity_reset_owner_missing: %s", userID)
		}
		return nil
	})
	if err != nil {
		return "", translate(err, "sqlite_identity_consume_reset_token_failed")
	}
	return userID, nil
}

// Ping checks that the database handle is usable.
func (repository *SQLiteStore) Ping(context context.Context) error {
	return sqlite.Ping(context, repository.db)
}
