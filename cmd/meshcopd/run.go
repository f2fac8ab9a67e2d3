package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"meshcop/internal/config"
	"meshcop/internal/dataset"
	"meshcop/internal/logging"
	"meshcop/internal/node"
	"meshcop/internal/random"
)

func newRunCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}

			log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			if err != nil {
				return err
			}

			store, err := openStore(cfg.DataDir)
			if err != nil {
				return err
			}

			n := node.New(cfg, store, random.NewNonCrypto(), log)
			if err := n.Start(); err != nil {
				_ = store.Close()
				return err
			}
			log.Info().Str("node", cfg.NodeID).Int("peers", len(cfg.RemotePeers())).Msg("Node started")

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigs

			log.Info().Stringer("signal", sig).Msg("Shutting down")
			n.Stop()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML configuration file")
	config.Flags(cmd.Flags())
	return cmd
}

func openStore(dataDir string) (dataset.Store, error) {
	if dataDir == "" {
		return dataset.NewInMemoryStore(), nil
	}
	store, err := dataset.OpenLevelStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}
