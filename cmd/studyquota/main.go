package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/studyquota/internal/ai"
	"github.com/smallbiznis/studyquota/internal/auth"
	"github.com/smallbiznis/studyquota/internal/authorization"
	"github.com/smallbiznis/studyquota/internal/cache"
	"github.com/smallbiznis/studyquota/internal/clock"
	"github.com/smallbiznis/studyquota/internal/config"
	"github.com/smallbiznis/studyquota/internal/entitlement"
	"github.com/smallbiznis/studyquota/internal/migration"
	"github.com/smallbiznis/studyquota/internal/observability"
	"github.com/smallbiznis/studyquota/internal/quota"
	"github.com/smallbiznis/studyquota/internal/ratelimit"
	"github.com/smallbiznis/studyquota/internal/seed"
	"github.com/smallbiznis/studyquota/internal/server"
	"github.com/smallbiznis/studyquota/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		cache.Module,
		ratelimit.Module,
		clock.Module,
		migration.Module,
		seed.Module,

		// Functional Domains
		entitlement.Module,
		quota.Module,
		auth.Module,
		authorization.Module,
		ai.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
