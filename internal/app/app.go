// Package app wires the agent together and exposes it as a cobra CLI.
package app

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"failguard/internal/config"
	"failguard/internal/logging"
)

var (
	configPath string
	logLevel   string
	logFile    string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "failguard",
	Short: "failguard bans addresses that keep failing to authenticate",
	Long: `failguard watches authentication logs and relayed Windows events,
counts failures per address, blocks repeat offenders at the host firewall
and optionally reports them to AbuseIPDB.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}

		if err := godotenv.Load(); err != nil {
			log.Debug("No .env file found. Falling back to system environment variables.")
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		if logFile != "" {
			loaded.Logging.File = logFile
		}
		if err := logging.Setup(loaded.Logging); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		cfg = loaded
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Close()
	},
}

// Execute runs the command selected by os.Args.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultSettingsPath, "Settings file (created with defaults when missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides settings)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this rotating file")

	rootCmd.AddCommand(runCmd, classifyCmd, statsCmd, historyCmd, versionCmd, hashPasswordCmd, publishEventCmd, agentsCmd)
	rootCmd.AddCommand(loginCmd, blockCmd, unblockCmd, listCmd)

	rootCmd.SetOut(os.Stdout)
}
