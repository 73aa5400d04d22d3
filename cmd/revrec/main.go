package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/fjordmetrics/revrec/internal/clock"
	"github.com/fjordmetrics/revrec/internal/config"
	"github.com/fjordmetrics/revrec/internal/gap"
	"github.com/fjordmetrics/revrec/internal/importer"
	"github.com/fjordmetrics/revrec/internal/logger"
	"github.com/fjordmetrics/revrec/internal/observability"
	"github.com/fjordmetrics/revrec/internal/product"
	productdomain "github.com/fjordmetrics/revrec/internal/product/domain"
	"github.com/fjordmetrics/revrec/internal/reconcile"
	revenuedomain "github.com/fjordmetrics/revrec/internal/revenue/domain"
	"github.com/fjordmetrics/revrec/internal/scheduler"
	"github.com/fjordmetrics/revrec/internal/snapshot"
	"github.com/fjordmetrics/revrec/internal/subscription"
	"github.com/fjordmetrics/revrec/pkg/db"
)

func newSnowflakeNode(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNodeID)
}

func migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&revenuedomain.RevenueRecord{},
		&revenuedomain.MonthlySnapshot{},
		&revenuedomain.ImportRun{},
		&productdomain.Periodization{},
	)
}

func main() {
	fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		db.Module,
		fx.Provide(newSnowflakeNode),
		fx.Invoke(migrate),
		observability.Module,
		product.Module,
		subscription.Module,
		importer.Module,
		snapshot.Module,
		reconcile.Module,
		gap.Module,
		scheduler.Module,
	).Run()
}
