package cmd

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Prints the configuration after defaults, the config file and environment
overrides have been applied, followed by the derived state paths.

The API token is never printed; only whether one is set.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	a := application()
	w := out(cmd)

	if err := toml.NewEncoder(w).Encode(a.Config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	p := a.Paths
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# Paths")
	fmt.Fprintf(w, "#   registry:  %s\n", p.RegistryPath)
	fmt.Fprintf(w, "#   inventory: %s\n", p.InventoryPath)
	fmt.Fprintf(w, "#   logs:      %s\n", p.LogsDir)
	fmt.Fprintf(w, "#   audit:     %s\n", p.AuditDir)
	fmt.Fprintf(w, "# API token set: %s\n", boolStatus(a.Config.Remote.Token != ""))
	return nil
}
