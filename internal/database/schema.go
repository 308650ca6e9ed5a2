package database

import _ "embed"

// Schema is the full ledger schema as produced by the migrations.
// Tests apply it directly to skip golang-migrate.
//
//go:embed sqlc/schema.sql
var Schema string
