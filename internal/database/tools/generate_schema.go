// Command generate_schema migrates an in-memory ledger and writes the
// resulting DDL for sqlc to compile queries against.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	"photodb/internal/database"
	"photodb/internal/database/migrations"
)

const schemaHeader = `-- Generated from internal/database/migrations/files by
-- internal/database/tools/generate_schema.go. Do not edit.

`

// ledgerObjects lists user tables before their indexes.
const ledgerObjects = `
	SELECT type, sql || ';'
	FROM sqlite_master
	WHERE type IN ('table', 'index')
	  AND sql IS NOT NULL
	  AND name NOT LIKE 'sqlite_%'
	  AND tbl_name != 'schema_migrations'
	ORDER BY type DESC, name`

func main() {
	out := flag.String("o", "internal/database/sqlc/schema.sql", "output file")
	flag.Parse()

	if err := run(*out); err != nil {
		fmt.Fprintf(os.Stderr, "generate_schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}

func run(out string) error {
	// One connection, or each pooled conn would see its own empty :memory: db.
	db, err := database.OpenConnection(":memory:", 1, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if _, err := migrations.MigrateUp(db); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}

	ddl, err := dumpSchema(db)
	if err != nil {
		return err
	}
	return os.WriteFile(out, []byte(ddl), 0644)
}

func dumpSchema(db *sql.DB) (string, error) {
	rows, err := db.Query(ledgerObjects)
	if err != nil {
		return "", fmt.Errorf("reading sqlite_master: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	b.WriteString(schemaHeader)
	for rows.Next() {
		var kind, stmt string
		if err := rows.Scan(&kind, &stmt); err != nil {
			return "", fmt.Errorf("reading sqlite_master: %w", err)
		}
		b.WriteString(stmt)
		b.WriteString("\n\n")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("reading sqlite_master: %w", err)
	}
	return b.String(), nil
}
