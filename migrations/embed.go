// Package migrations embeds the hifilink SQL schema into the binary.
package migrations

import (
	"embed"

	"github.com/hifilink/hifilink/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
