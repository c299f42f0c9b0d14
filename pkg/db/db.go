// Package db opens the gorm connection used by every repository.
package db

import (
	"strings"

	"github.com/halfnote/halfnote/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the configured database. Postgres is the production
// engine; a sqlite DSN (or empty DATABASE_URL) yields an embedded database
// for local runs.
func Open(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	dsn := strings.TrimSpace(cfg.DatabaseURL)
	var dialector gorm.Dialector
	switch {
	case dsn == "" || strings.HasPrefix(dsn, "file:") || strings.HasSuffix(dsn, ".db"):
		if dsn == "" {
			dsn = "file:halfnote.db?_pragma=busy_timeout(5000)"
		}
		dialector = sqlite.Open(dsn)
	default:
		dialector = postgres.Open(dsn)
	}

	conn, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, err
	}
	log.Info("database connected", zap.String("dialect", conn.Dialector.Name()))
	return conn, nil
}

var Module = fx.Module("db",
	fx.Provide(Open),
)
