package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"fieldpay/internal/config"
	"fieldpay/internal/infra"
	"fieldpay/internal/logger"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database schema migrations",
	}
	cmd.AddCommand(
		migrateAction("up", "Apply all pending migrations", (*infra.Migrator).Up),
		migrateAction("down", "Roll back the latest migration", (*infra.Migrator).Down),
		&cobra.Command{
			Use:   "status",
			Short: "Show the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *infra.Migrator) error {
					version, dirty, err := m.Version()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version: %d dirty: %t\n", version, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

func migrateAction(use, short string, run func(*infra.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *infra.Migrator) error {
				if err := run(m); err != nil {
					return fmt.Errorf("migrate %s: %w", use, err)
				}
				log := logger.WithComponent("migrate")
				log.Info().Str("direction", use).Msg("Migrations applied")
				return nil
			})
		},
	}
}

func withMigrator(fn func(*infra.Migrator) error) error {
	cfg, err := config.LoadMigration()
	if err != nil {
		return err
	}
	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		return err
	}

	m, err := infra.NewMigrator(cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			log := logger.WithComponent("migrate")
			log.Warn().Err(cerr).Msg("close migrator")
		}
	}()
	return fn(m)
}
