package main

import (
	"context"
	"fmt"

	cli "github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanizio/metastore/internal/config"
	"github.com/yanizio/metastore/internal/logger"
	"github.com/yanizio/metastore/internal/vault"
)

// rootFlags are shared by every sub-command.
type rootFlags struct {
	root string
}

func newRootCommand() *cli.Command {
	flags := &rootFlags{}
	cmd := &cli.Command{
		Use:           "metastore",
		Short:         "Key/value metadata for tenant resources",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&flags.root, "root", "r", "",
		"directory holding conf/global.yaml (default: discovered)")

	cmd.AddCommand(
		serveCommand(flags),
		migrateCommand(flags),
	)
	return cmd
}

// bootstrap loads config and installs the file logger.  The returned
// logger is also the zap global.
func bootstrap(ctx context.Context, flags *rootFlags) (*config.Config, *zap.SugaredLogger, error) {
	boot := logger.Bootstrap()

	var secrets config.SecretResolver
	if vault.Enabled() {
		vc, err := vault.New(ctx, boot)
		if err != nil {
			return nil, nil, fmt.Errorf("vault: %w", err)
		}
		secrets = vc
	}

	var (
		cfg *config.Config
		err error
	)
	if flags.root != "" {
		cfg, err = config.LoadDir(ctx, flags.root, secrets)
	} else {
		cfg, err = config.Load(ctx, secrets)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Paths.Root, logger.RunningInTTY(), cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("start logger: %w", err)
	}
	return cfg, log, nil
}
