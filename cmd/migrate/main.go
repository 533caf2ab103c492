package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"order_payment_service/internal/pkg/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

var source string

func main() {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply order-payment schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&source, "source", "file://migrations", "migration source url")

	root.AddCommand(upCmd(), downCmd(), forceCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newMigrate() (*migrate.Migrate, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	return migrate.New(source, cfg.Database.URL())
}

// run 打开迁移实例并保证关闭
func run(fn func(m *migrate.Migrate) error) error {
	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func upCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all or N pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(m *migrate.Migrate) error {
				var err error
				if steps > 0 {
					err = m.Steps(steps)
				} else {
					err = m.Up()
				}
				if errors.Is(err, migrate.ErrNoChange) {
					fmt.Println("no change")
					return nil
				}
				if err != nil {
					var dirty migrate.ErrDirty
					if errors.As(err, &dirty) {
						return fmt.Errorf("database is dirty at version %d, fix it and run `migrate force %d`", dirty.Version, dirty.Version-1)
					}
					return err
				}
				fmt.Println("migration successful")
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 0, "number of migrations to apply (0 = all)")
	return cmd
}

func downCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back N migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(m *migrate.Migrate) error {
				err := m.Steps(-steps)
				if errors.Is(err, migrate.ErrNoChange) {
					fmt.Println("no change")
					return nil
				}
				return err
			})
		},
	}
	// 默认只回滚一步，避免误删整个库
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")
	return cmd
}

func forceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations (clears dirty flag)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return run(func(m *migrate.Migrate) error {
				return m.Force(version)
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(m *migrate.Migrate) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Println("no migrations applied")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("version %d (dirty=%t)\n", version, dirty)
				return nil
			})
		},
	}
}
