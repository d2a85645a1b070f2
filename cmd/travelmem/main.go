// Command travelmem runs the travel assistant with layered conversation
// memory, as an HTTP service or an interactive terminal chat.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/travel-memory/config"
	"github.com/becomeliminal/travel-memory/logging"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "travelmem",
		Short:         "Travel assistant with short-term, long-term and preference memory",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "travelmem.yaml", "config file (YAML)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if err := logging.Setup(logging.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty}); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}

	rootCmd.AddCommand(
		newServeCmd(load),
		newChatCmd(load),
		newConfigCmd(&configPath),
	)
	return rootCmd
}
