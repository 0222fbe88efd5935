// AngelaMos | 2026
// migrations.go

// Package migrations embeds the SQL schema applied by core.Migrate and cmd/migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
