package db

import (
	"embed"

	migrate "github.com/golang-migrate/migrate/v4"
	// registers the postgres database driver for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/diewo77/go-quotes/internal/config"
	"github.com/diewo77/go-quotes/internal/logging"
	"github.com/diewo77/go-quotes/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Models lists every persisted model, parents first.
func Models() []any {
	return []any{&models.Client{}, &models.Quote{}, &models.QuoteItem{}}
}

// Migrate brings the schema up to date. With MIGRATIONS enabled on postgres
// the embedded SQL migrations are applied; otherwise gorm AutoMigrate is
// used.
func Migrate(db *gorm.DB, cfg *config.Config, log logging.Logger) error {
	if cfg.App.Migrations && cfg.Database.IsPostgres() {
		log.Info("running sql migrations")
		return runSQLMigrations(cfg.Database.URL())
	}
	return AutoMigrate(db)
}

// AutoMigrate creates or alters tables from the model definitions.
func AutoMigrate(db *gorm.DB) error {
	for _, m := range Models() {
		if err := db.AutoMigrate(m); err != nil {
			return errors.Wrapf(err, "automigrate %T", m)
		}
	}
	return nil
}

func runSQLMigrations(url string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "open embedded migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return errors.Wrap(err, "init migrate")
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}
