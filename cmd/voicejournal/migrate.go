package main

import (
	"github.com/spf13/cobra"

	"voicejournal/internal/config"
	"voicejournal/internal/db"
	"voicejournal/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

		gdb, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		return db.AutoMigrateAndIndexes(gdb, log)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
