// Package migrations embeds the SQL schema for the PostgreSQL state store.
package migrations

import "embed"

// FS holds goose migration files.
//
//go:embed *.sql
var FS embed.FS
