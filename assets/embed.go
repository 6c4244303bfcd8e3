// assets/embed.go
//
// Embedded SQL migrations, applied at startup by internal/store.

package assets

import "embed"

// Migrations holds golang-migrate files named NNNNNN_name.{up,down}.sql.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that holds the files.
const MigrationsDir = "migrations"
