// Package migrations embeds the SQL schema, applied in file-name order (001, 002, ...).
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
