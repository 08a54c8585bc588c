package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/cache"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/history"
	"github.com/smallbiznis/creatorpay/internal/migration"
	"github.com/smallbiznis/creatorpay/internal/observability"
	"github.com/smallbiznis/creatorpay/internal/reward"
	"github.com/smallbiznis/creatorpay/internal/runlock"
	"github.com/smallbiznis/creatorpay/internal/server"
	"github.com/smallbiznis/creatorpay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		runlock.Module,

		// Reward domain
		history.Module,
		reward.Module,

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
