package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/tuitora/tuitora-gateway/internal/db"
	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/migrations"
	"go.uber.org/zap"
)

var migrateSkipClickHouse bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations (dev: DROP & CREATE MySQL tables, create ClickHouse tables)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		defer mysqlDB.Close()

		if _, err := mysqlDB.Exec("SET FOREIGN_KEY_CHECKS = 0"); err != nil {
			return fmt.Errorf("disable fk checks: %w", err)
		}
		err = apply(mysqlDB, "mysql")
		_, _ = mysqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1")
		if err != nil {
			return err
		}

		if !migrateSkipClickHouse {
			chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
			if err != nil {
				return fmt.Errorf("open clickhouse: %w", err)
			}
			defer chDB.Close()

			if err := apply(chDB, "clickhouse"); err != nil {
				return err
			}
		}

		logger.Log.Info("migration complete")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSkipClickHouse, "skip-clickhouse", false, "only migrate MySQL")
}

func apply(dbx *sqlx.DB, dir string) error {
	stmts, err := migrations.Statements(dir)
	if err != nil {
		return fmt.Errorf("read %s migrations: %w", dir, err)
	}
	for i, s := range stmts {
		if _, err := dbx.Exec(s); err != nil {
			return fmt.Errorf("%s migration statement %d: %w", dir, i+1, err)
		}
	}
	logger.Log.Info("migrations applied", zap.String("target", dir), zap.Int("statements", len(stmts)))
	return nil
}
