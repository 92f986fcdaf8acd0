// Package migrations embeds the sqlite schema applied through goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
