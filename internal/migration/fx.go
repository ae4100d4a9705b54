package migration

import (
	"github.com/smallbiznis/portal/internal/config"
	"github.com/smallbiznis/portal/internal/store"
	"github.com/smallbiznis/portal/internal/store/sqlstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)

// Run brings the SQL schema up to date. Postgres uses the embedded
// migrations; other SQL dialects fall back to gorm AutoMigrate. Firestore
// needs nothing.
func Run(st store.Store, cfg config.Config, log *zap.Logger) error {
	sqlStore, ok := st.(*sqlstore.Store)
	if !ok {
		log.Info("migration.skipped", zap.String("store", cfg.StoreBackend))
		return nil
	}

	if cfg.DBType != "postgres" {
		if !cfg.DBAutoMigrate {
			return nil
		}
		log.Info("migration.auto", zap.String("db_type", cfg.DBType))
		return sqlStore.AutoMigrate()
	}

	sqlDB, err := sqlStore.SQLDB()
	if err != nil {
		return err
	}
	status, err := RunMigrations(sqlDB, log)
	if err != nil {
		return err
	}
	log.Info("migration.applied",
		zap.String("db_type", cfg.DBType),
		zap.Uint("version", status.Version),
		zap.Bool("changed", status.Changed),
	)
	return nil
}
