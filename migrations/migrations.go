// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package migrations embeds the goose SQL migrations so the binary can
// migrate its own database.
package migrations

import "embed"

//go:embed *.sql
var EmbedMigrations embed.FS
