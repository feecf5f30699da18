// Package migrations embeds the SQL schema so cmd/migrate works from any
// working directory.
package migrations

import "embed"

// FS contains all *.sql migration files
//
//go:embed *.sql
var FS embed.FS
