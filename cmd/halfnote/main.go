package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/halfnote/halfnote/internal/classifier"
	"github.com/halfnote/halfnote/internal/clock"
	"github.com/halfnote/halfnote/internal/config"
	"github.com/halfnote/halfnote/internal/enrichment"
	"github.com/halfnote/halfnote/internal/events"
	"github.com/halfnote/halfnote/internal/logger"
	"github.com/halfnote/halfnote/internal/memo"
	"github.com/halfnote/halfnote/internal/migration"
	"github.com/halfnote/halfnote/internal/observability"
	"github.com/halfnote/halfnote/internal/pipeline"
	"github.com/halfnote/halfnote/internal/queue"
	"github.com/halfnote/halfnote/internal/quota"
	"github.com/halfnote/halfnote/internal/seed"
	"github.com/halfnote/halfnote/internal/server"
	"github.com/halfnote/halfnote/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			if cfg.BootstrapDeviceKey != "" {
				return seed.EnsureBootstrapDeviceKey(conn, cfg.BootstrapDeviceKey, cfg.BootstrapDeviceUser)
			}
			return nil
		}),
		observability.Module,
		clock.Module,
		fx.Provide(events.NewOutbox),

		classifier.Module,
		queue.Module,
		memo.Module,
		quota.Module,
		pipeline.Module,
		enrichment.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
