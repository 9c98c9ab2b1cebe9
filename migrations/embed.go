// Package migrations holds the SQL schema migrations, embedded so the binaries
// carry their own schema.
package migrations

import "embed"

// FS contains every *.up.sql and *.down.sql file in this directory
//
//go:embed *.sql
var FS embed.FS
