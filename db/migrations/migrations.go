package migrations

import (
	"database/sql"
	"embed"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedMigrations embed.FS

// Run применяет все миграции, встроенные в бинарник из папки sql
func Run(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}
	if err := goose.Up(db, "sql"); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}
