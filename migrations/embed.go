// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package migrations embeds the PostgreSQL schema migrations.
package migrations

import "embed"

// FS holds the ordered golang-migrate files.
//
//go:embed *.sql
var FS embed.FS
