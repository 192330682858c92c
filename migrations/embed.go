// Package migrations embeds the SQL migrations applied after schema auto-migration.
package migrations

import "embed"

// FS contains all migration SQL files, applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
