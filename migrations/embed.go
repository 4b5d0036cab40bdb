// Package migrations embeds the SQL schema migrations so the migrator
// binary runs with zero configuration in containers.
package migrations

import "embed"

// FS holds every versioned migration file.
//
//go:embed *.sql
var FS embed.FS
