package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/halfnote/halfnote/internal/config"
	"github.com/halfnote/halfnote/internal/enrichment"
	"github.com/halfnote/halfnote/internal/logger"
	"github.com/halfnote/halfnote/internal/memo"
	"github.com/halfnote/halfnote/internal/migration"
	"github.com/halfnote/halfnote/internal/queue"
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
		fx.Invoke(func(conn *gorm.DB) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return migration.RunMigrations(sqlDB)
		}),

		queue.Module,
		memo.Module,
		enrichment.WorkerModule,
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
