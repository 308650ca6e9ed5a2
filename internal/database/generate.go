package database

// sqlc/schema.sql is derived from the migrations, and the sqlc package is
// compiled from it and sqlc/queries. Both are checked in; after changing a
// migration or a query run:
//
//	go generate ./internal/database

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go -o internal/database/sqlc/schema.sql"
//go:generate sh -c "cd ../.. && sqlc generate -f internal/database/sqlc/sqlc.yaml"
