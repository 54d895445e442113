// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
//
// Both storage engines are understood: pgx for PostgreSQL and modernc.org/sqlite
// behind database/sql.
package dberr

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
)

var (
	// ErrNotFound is a standard error returned when a queried row doesn't exist.
	ErrNotFound = apperr.NotFound("Resource")
)

// sqliteUniquePrefix is the message SQLite uses for UNIQUE/PRIMARY KEY failures.
const sqliteUniquePrefix = "unique constraint failed: "

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// UniqueViolation reports whether err is a uniqueness violation and, if so,
// which constraint fired.
//
// For PostgreSQL the target is the constraint name (e.g. "users_email_key").
// For SQLite it is the column list from the error message
// (e.g. "users.email" or "oauth_accounts.provider, oauth_accounts.provider_id").
func UniqueViolation(err error) (target string, ok bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgerrcode.UniqueViolation {
			return pgErr.ConstraintName, true
		}
		return "", false
	}

	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return sqliteTarget(sqliteErr.Error()), true
		}
		return "", false
	}

	return "", false
}

func sqliteTarget(message string) string {
	lower := strings.ToLower(message)
	index := strings.Index(lower, sqliteUniquePrefix)
	if index < 0 {
		return ""
	}
	target := lower[index+len(sqliteUniquePrefix):]
	if end := strings.IndexAny(target, "()"); end >= 0 {
		target = target[:end]
	}
	return strings.TrimSpace(target)
}

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It hides internal database details from the client while classifying the error type.
func Wrap(err error, action string) error {
	if err == nil {
		return nil
	}

	if IsNoRows(err) {
		return ErrNotFound
	}

	if _, ok := UniqueViolation(err); ok {
		return apperr.Conflict("Resource already exists")
	}

	return apperr.Internal(fmt.Errorf("%s: %w", action, err))
}
