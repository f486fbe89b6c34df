package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bhandras/delight-chat/internal/config"
	"github.com/bhandras/delight-chat/pkg/logger"
)

// app carries state shared by the subcommands.
type app struct {
	cfg *config.Config

	serverURL string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "chatsession",
		Short:         "Terminal client for a realtime chat channel",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.serverURL, "server", "", "chat backend URL (overrides CHAT_SERVER_URL)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "trace, debug, info, warn or error")

	root.AddCommand(
		newLoginCmd(a),
		newTokenCmd(),
		newWatchCmd(a),
		newQRCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.serverURL != "" {
		cfg.ServerURL = a.serverURL
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
		cfg.Debug = false
	}

	level, err := logger.ParseLevel(cfg.EffectiveLogLevel())
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	logger.Debugf("Config: ServerURL=%s, HomeDir=%s", cfg.ServerURL, cfg.HomeDir)

	a.cfg = cfg
	return nil
}
