package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/pool"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/tui"
)

var pickPlain bool

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Interactive sandbox picker",
	Long: `Opens an interactive TUI for selecting and acting on sandboxes.

Use arrow keys or j/k to navigate, / to filter, Enter to open.

Actions:
  Enter  - Print the selected sandbox's URL
  n      - Start a sandbox for an owner and branch
  t      - Mark the selected sandbox as recently used
  d      - Stop the selected sandbox
  q/Esc  - Quit`,
	Args: cobra.NoArgs,
	RunE: runPick,
}

func init() {
	pickCmd.Flags().BoolVar(&pickPlain, "plain", false, "Print a non-interactive listing instead")
	rootCmd.AddCommand(pickCmd)
}

func runPick(cmd *cobra.Command, args []string) error {
	a := application()
	servers := a.Pool.List()

	if pickPlain {
		fmt.Fprint(out(cmd), tui.SimplePicker(servers, a.IsAlive))
		return nil
	}

	logging.Debug("picker mode started", "sandboxes", len(servers))

	result, err := tui.RunPicker(servers, a.IsAlive)
	if err != nil {
		return fmt.Errorf("picker error: %w", err)
	}

	logging.Debug("picker result", "action", result.Action)
	return applyPick(cmd, result)
}

func applyPick(cmd *cobra.Command, result tui.PickerResult) error {
	a := application()

	switch result.Action {
	case tui.ActionOpen:
		if result.Sandbox != nil {
			a.Pool.Touch(pool.KeyOf(*result.Sandbox))
			fmt.Fprintln(out(cmd), health.URL(result.Sandbox.Port))
		}

	case tui.ActionStart:
		return runStart(cmd, []string{result.Owner, result.Branch})

	case tui.ActionTouch:
		if result.Sandbox != nil {
			return runTouch(cmd, []string{result.Sandbox.OwnerID, result.Sandbox.BranchID})
		}

	case tui.ActionStop:
		if result.Sandbox != nil {
			return runStop(cmd, []string{result.Sandbox.OwnerID, result.Sandbox.BranchID})
		}

	case tui.ActionQuit, tui.ActionNone:
		// Just exit cleanly
	}

	return nil
}
