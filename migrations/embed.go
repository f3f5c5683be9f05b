// Package migrations embeds the SQL schema migrations into the binary so a
// device can create its property store without files on disk.
package migrations

import "embed"

// FS holds every migration at its root, ready for database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
