package main

import (
	"fmt"
	"strconv"

	cli "github.com/spf13/cobra"

	"github.com/yanizio/metastore/internal/database"
)

func migrateCommand(flags *rootFlags) *cli.Command {
	cmd := &cli.Command{
		Use:   "migrate",
		Short: "Manage the metadata schema",
	}
	cmd.AddCommand(
		migrateUpCommand(flags),
		migrateDownCommand(flags),
		migrateVersionCommand(flags),
	)
	return cmd
}

func migrateUpCommand(flags *rootFlags) *cli.Command {
	return &cli.Command{
		Use:     "up",
		Short:   "Apply every pending migration",
		Example: "metastore migrate up",
		Args:    cli.NoArgs,
		RunE: func(c *cli.Command, _ []string) error {
			cfg, log, err := bootstrap(c.Context(), flags)
			if err != nil {
				return err
			}
			db := cfg.Database
			if err := database.Up(db.Driver, db.DSN, db.Password); err != nil {
				return err
			}
			log.Infow("migrations applied", "driver", db.Driver)
			return nil
		},
	}
}

func migrateDownCommand(flags *rootFlags) *cli.Command {
	return &cli.Command{
		Use:     "down N",
		Short:   "Roll back the last N migrations",
		Example: "metastore migrate down 1",
		Args:    cli.ExactArgs(1),
		RunE: func(c *cli.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}
			cfg, log, err := bootstrap(c.Context(), flags)
			if err != nil {
				return err
			}
			db := cfg.Database
			if err := database.Down(db.Driver, db.DSN, db.Password, n); err != nil {
				return err
			}
			log.Infow("migrations rolled back", "driver", db.Driver, "count", n)
			return nil
		},
	}
}

func migrateVersionCommand(flags *rootFlags) *cli.Command {
	return &cli.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cli.NoArgs,
		RunE: func(c *cli.Command, _ []string) error {
			cfg, _, err := bootstrap(c.Context(), flags)
			if err != nil {
				return err
			}
			db := cfg.Database
			v, dirty, err := database.Version(db.Driver, db.DSN, db.Password)
			if err != nil {
				return err
			}
			c.Printf("version %d (dirty=%t)\n", v, dirty)
			return nil
		},
	}
}
