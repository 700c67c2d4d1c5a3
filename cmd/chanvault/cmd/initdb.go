package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize the database schema",
	Long: `Initialize the chanvault database with the message table and its indexes.

It is safe to run multiple times - the table and indexes are only created if
they don't already exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := cfg.DatabasePath()
		logger.Info("initializing database", "path", dbPath, "table", cfg.Store.Table)

		s, err := openLocalStore()
		if err != nil {
			return err
		}
		defer s.Close()

		logger.Info("database initialized successfully")

		stats, err := s.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Database: %s\n", dbPath)
		fmt.Fprintf(out, "  Table:    %s\n", s.Table())
		fmt.Fprintf(out, "  Messages: %d\n", stats.MessageCount)
		fmt.Fprintf(out, "  Chats:    %d\n", stats.ChatCount)
		fmt.Fprintf(out, "  Size:     %s\n", formatSize(stats.DatabaseSize))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
