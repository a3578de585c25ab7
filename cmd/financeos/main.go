package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tripfolio/financeos/internal/account"
	"github.com/tripfolio/financeos/internal/accrual"
	"github.com/tripfolio/financeos/internal/audit"
	"github.com/tripfolio/financeos/internal/booking"
	"github.com/tripfolio/financeos/internal/clock"
	"github.com/tripfolio/financeos/internal/config"
	"github.com/tripfolio/financeos/internal/ledger"
	"github.com/tripfolio/financeos/internal/migration"
	"github.com/tripfolio/financeos/internal/observability"
	"github.com/tripfolio/financeos/internal/refund"
	"github.com/tripfolio/financeos/internal/server"
	"github.com/tripfolio/financeos/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Finance domains
		audit.Module,
		account.Module,
		ledger.Module,
		booking.Module,
		accrual.Module,
		refund.Module,

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
