// ABOUTME: Embedded goose migrations for the PostgreSQL document store
// ABOUTME: Applied on first successful connection

package migrations

import "embed"

// Migrations holds the SQL migration files applied by goose.
//
//go:embed *.sql
var Migrations embed.FS
