// Package db opens the database and applies the schema.
package db

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/diewo77/go-quotes/internal/config"
	"github.com/diewo77/go-quotes/internal/logging"
)

const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

var passwordRegex = regexp.MustCompile(`(password=)(\S+)|(://[^:/@]+:)([^@]+)(@)`)

// Open connects to the configured database. Postgres connections are retried
// to give the server time to start.
func Open(cfg config.DatabaseConfig, log logging.Logger) (*gorm.DB, error) {
	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	}

	if !cfg.IsPostgres() {
		dsn := SQLiteDSN(cfg.Path)
		log.Info("opening sqlite database", "path", cfg.Path)
		db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
		if err != nil {
			return nil, errors.Wrapf(err, "open sqlite %s", cfg.Path)
		}
		return db, nil
	}

	dsn := cfg.DSN()
	log.Info("connecting to postgres", "dsn", MaskDSN(dsn))
	var (
		db  *gorm.DB
		err error
	)
	for i := 1; i <= connectAttempts; i++ {
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
		if err == nil {
			err = db.Exec("SELECT 1").Error
		}
		if err == nil {
			return db, nil
		}
		log.Warn("database not ready", "attempt", i, "of", connectAttempts, "error", err)
		if i < connectAttempts {
			time.Sleep(connectDelay)
		}
	}
	return nil, errors.Wrapf(err, "connect postgres after %d attempts", connectAttempts)
}

// SQLiteDSN enables foreign keys and a busy timeout on a sqlite path unless
// the path already carries parameters.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_foreign_keys=on&_busy_timeout=5000"
}

// MaskDSN hides the password of a key=value or URL DSN.
func MaskDSN(dsn string) string {
	return passwordRegex.ReplaceAllString(dsn, `${1}${3}***${5}`)
}

// Ping checks that the database answers.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql.DB")
	}
	return sqlDB.PingContext(ctx)
}
