// Package migrations embeds the SQL migration files for Goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
