package migration

import (
	"github.com/tripfolio/financeos/internal/config"
	"github.com/tripfolio/financeos/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if cfg.DefaultOrgID != 0 {
			return seed.EnsureDefaultOrgAccounts(conn, cfg.DefaultOrgID, cfg.SettlementCurrency)
		}
		return nil
	}),
)
