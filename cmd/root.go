package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
)

var (
	configPath string
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "forage-pool",
	Short: "Ephemeral sandbox lifecycle manager",
	Long: `forage-pool provisions, tracks and reclaims ephemeral sandboxes.

Local sandboxes are dev-server processes, one per owner/branch checkout:
  - Ports leased from a fixed range
  - Least recently used sandbox evicted at capacity
  - Registry persisted across restarts

Remote sandboxes are Fly.io machines managed with the machine subcommands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(verbose, jsonOutput, os.Stderr)
		logging.SetUserOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
		if app.Default != nil {
			return nil
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return errors.ConfigError("failed to load configuration", err)
		}
		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		app.SetDefault(a)
		return nil
	},
}

// Execute runs the CLI and releases the application afterwards.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logError("%v", err)
	}
	if app.Default != nil {
		if cerr := app.Default.Close(); cerr != nil {
			logging.Debug("failed to close application", "error", cerr)
		}
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default $FORAGE_POOL_CONFIG or "+config.DefaultConfigPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
	logError   = logging.UserError
)
