package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kidwon/lifetree-app-api/config"
	"github.com/kidwon/lifetree-app-api/db"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back the embedded schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(db.Up), string(db.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			version, err := db.Migrate(cfg.DatabaseURL, db.Direction(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
	return cmd
}
