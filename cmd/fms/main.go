// Command fms runs programs under CPU, memory and time limits and bills
// their resource use.
package main

import (
	"fmt"
	"os"

	"fms/internal/cli/config"
	"fms/pkg/utils/logger"

	"github.com/spf13/cobra"
)

var (
	// configPath is the YAML configuration file; empty uses defaults.
	configPath string
	userFlag   string
	logLevel   string
	version    = "dev"

	appCfg config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fms",
	Short: "Run programs under resource limits and account for their usage",
	Long: `fms supervises a program and its whole process tree, enforcing a CPU
quota, a memory ceiling and a wall-clock timeout, and charges the measured
usage to a prepaid balance, a postpaid usage log or a session CPU quota.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if userFlag != "" {
			cfg.Ledger.User = userFlag
		}
		if logLevel != "" {
			cfg.Logger.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := logger.Init(cfg.Logger); err != nil {
			return fmt.Errorf("init logger failed: %w", err)
		}
		appCfg = cfg
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("FMS_CONFIG"), "path to the YAML config file")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "account the command acts on")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
}
