package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tuitora/tuitora-gateway/cmd/worker"
	"github.com/tuitora/tuitora-gateway/internal/config"
	"github.com/tuitora/tuitora-gateway/internal/logger"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "tuitora-gateway",
		Short: "Tuitora USSD and SMS gateway",
	}
)

func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd())
}

// loadConfig reads the config and sets up the global logger from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Encoding)
	return cfg, nil
}
