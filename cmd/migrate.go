package cmd

import (
	"errors"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/spigell/hh-screener/internal/logger"
	"github.com/spigell/hh-screener/internal/store"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
		if err != nil {
			log.Fatalf("creating a logger: %s", err)
		}
		defer func() { _ = logger.Sync() }()

		databaseURL := strings.TrimSpace(viper.GetString("database.url"))
		if databaseURL == "" {
			err := errors.New("database.url is required (set DATABASE_URL)")
			logger.Error("migrating", zap.Error(err))
			return err
		}

		v, err := store.RunMigrations(databaseURL)
		if err != nil {
			logger.Error("migrating", zap.Error(err))
			return err
		}

		logger.Info("database is up to date", zap.Uint("version", v))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
