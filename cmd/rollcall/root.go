package main

import (
	"rollcall/internal/config"
	"rollcall/pkg/logger"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	addr       string
	token      string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "rollcall",
		Short:        "Offline-first attendance sync agent",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml")
	cmd.PersistentFlags().StringVar(&opts.addr, "addr", "", "agent address for client commands (default from server.port)")
	cmd.PersistentFlags().StringVar(&opts.token, "token", "", "bearer token for client commands")

	cmd.AddCommand(
		newServeCmd(opts),
		newSyncCmd(opts),
		newPendingCmd(opts),
		newRetryAllCmd(opts),
		newWatchCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}

// load reads the config and initializes the logger for it.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	logger.InitLogger(cfg.Server.Environment)
	return cfg, nil
}
