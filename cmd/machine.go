package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/inventory"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/machines"
)

var machineCmd = &cobra.Command{
	Use:   "machine",
	Short: "Manage remote sandbox machines",
	Long: `Provisions and drives Fly.io machines used as remote sandboxes.

Machines live in per-owner apps named app-<type>-<owner>. Every machine
created or destroyed here is recorded in the local inventory so listings
work without a provider round trip.

Requires FLY_API_TOKEN.`,
}

var machineProvisionCmd = &cobra.Command{
	Use:   "provision <type> <owner>",
	Short: "Create the app for a sandbox type and owner",
	Args:  cobra.ExactArgs(2),
	RunE:  runMachineProvision,
}

var machineCreateCmd = &cobra.Command{
	Use:   "create <type> <owner>",
	Short: "Create and start a machine, falling back across regions",
	Args:  cobra.ExactArgs(2),
	RunE:  runMachineCreate,
}

var machineLsCmd = &cobra.Command{
	Use:   "ls [app]",
	Short: "List known machines",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMachineLs,
}

var machineStartCmd = &cobra.Command{
	Use:   "start <app>/<id>",
	Short: "Start a stopped machine and wait until it runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runMachineStart,
}

var machineDestroyCmd = &cobra.Command{
	Use:   "destroy <app>/<id>",
	Short: "Force-destroy a machine",
	Args:  cobra.ExactArgs(1),
	RunE:  runMachineDestroy,
}

var machineDeleteAppCmd = &cobra.Command{
	Use:   "delete-app <app>",
	Short: "Delete an app and every machine in it",
	Args:  cobra.ExactArgs(1),
	RunE:  runMachineDeleteApp,
}

var machineSecretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage app secrets",
}

var machineSecretsSetCmd = &cobra.Command{
	Use:   "set <app> KEY=VALUE...",
	Short: "Set app secrets, keeping the others",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runMachineSecretsSet,
}

var machineSecretsUnsetCmd = &cobra.Command{
	Use:   "unset <app> KEY...",
	Short: "Remove app secrets",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runMachineSecretsUnset,
}

var (
	createRegion   string
	createImage    string
	createCPUKind  string
	createCPUs     int
	createMemoryMB int
	createEnv      []string
	lsRemote       bool
)

func init() {
	machineCreateCmd.Flags().StringVarP(&createRegion, "region", "r", "", "Region group or code (default: every configured region)")
	machineCreateCmd.Flags().StringVar(&createImage, "image", "", "Image (default remote.image)")
	machineCreateCmd.Flags().StringVar(&createCPUKind, "cpu-kind", "", "CPU kind (default remote.guest.cpu_kind)")
	machineCreateCmd.Flags().IntVar(&createCPUs, "cpus", 0, "CPU count (default remote.guest.cpus)")
	machineCreateCmd.Flags().IntVar(&createMemoryMB, "memory", 0, "Memory in MB (default remote.guest.memory_mb)")
	machineCreateCmd.Flags().StringArrayVarP(&createEnv, "env", "e", nil, "Environment variable KEY=VALUE (repeatable)")
	machineLsCmd.Flags().BoolVar(&lsRemote, "remote", false, "Query the provider and refresh the inventory (requires app)")

	machineSecretsCmd.AddCommand(machineSecretsSetCmd, machineSecretsUnsetCmd)
	machineCmd.AddCommand(
		machineProvisionCmd,
		machineCreateCmd,
		machineLsCmd,
		machineStartCmd,
		machineDestroyCmd,
		machineDeleteAppCmd,
		machineSecretsCmd,
	)
	rootCmd.AddCommand(machineCmd)
}

// parseAssignments parses KEY=VALUE pairs.
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, errors.ValidationError(fmt.Sprintf("invalid assignment %q: expected KEY=VALUE", p))
		}
		out[k] = v
	}
	return out, nil
}

func machineRef(arg string) (machines.Ref, error) {
	ref, err := machines.ParseRef(arg)
	if err != nil {
		return machines.Ref{}, err
	}
	if _, err := appArg(ref.App); err != nil {
		return machines.Ref{}, err
	}
	if err := config.ValidateID("machine id", ref.ID); err != nil {
		return machines.Ref{}, errors.ValidationError(err.Error())
	}
	return ref, nil
}

// ownerArgs validates the <type> <owner> pair that names an app.
func ownerArgs(args []string) error {
	if err := config.ValidateID("type", args[0]); err != nil {
		return errors.ValidationError(err.Error())
	}
	if err := config.ValidateID("owner", args[1]); err != nil {
		return errors.ValidationError(err.Error())
	}
	return nil
}

// appArg checks that an app name is a single path-safe identifier.
func appArg(app string) (string, error) {
	if err := config.ValidateID("app", app); err != nil {
		return "", errors.ValidationError(err.Error())
	}
	return app, nil
}

// recordMachine upserts m in the inventory. Inventory failures are logged,
// never returned: the remote operation already happened.
func recordMachine(ctx context.Context, m *machines.Machine) {
	store, err := application().Inventory()
	if err == nil {
		err = store.Put(ctx, inventory.FromMachine(m))
	}
	if err != nil {
		logging.Warn("failed to record machine", "machine", m.Ref().String(), "error", err)
	}
}

func logMachineEvent(t audit.EventType, ref machines.Ref, details string) {
	err := application().Audit.Log(audit.Event{Type: t, Sandbox: ref.String(), Details: details})
	if err != nil {
		logging.Warn("failed to write audit event", "machine", ref.String(), "error", err)
	}
}

func runMachineProvision(cmd *cobra.Command, args []string) error {
	if err := ownerArgs(args); err != nil {
		return err
	}
	ctx := cmd.Context()
	client := application().Machines()

	logInfo("Provisioning app for %s/%s...", args[0], args[1])
	app, err := client.ProvisionApp(ctx, args[0], args[1])
	if err != nil {
		var addrErr *machines.AddressError
		if errors.As(err, &addrErr) {
			logWarning("Address allocation failed, deleting %s", addrErr.App)
			if derr := client.DeleteApp(ctx, addrErr.App); derr != nil {
				return errors.Join(err, derr)
			}
		}
		return err
	}

	logSuccess("App %s ready", app)
	fmt.Fprintln(out(cmd), app)
	return nil
}

func runMachineCreate(cmd *cobra.Command, args []string) error {
	if err := ownerArgs(args); err != nil {
		return err
	}
	ctx := cmd.Context()

	env, err := parseAssignments(createEnv)
	if err != nil {
		return err
	}

	req := machines.CreateRequest{
		Type:   args[0],
		Owner:  args[1],
		Image:  createImage,
		Region: createRegion,
		Env:    env,
		Guest: machines.Guest{
			CPUKind:  createCPUKind,
			CPUs:     createCPUs,
			MemoryMB: createMemoryMB,
		},
	}

	logInfo("Creating machine in %s...", machines.AppName(req.Type, req.Owner))
	m, err := application().Machines().CreateMachine(ctx, req)
	if err != nil {
		var createErr *machines.CreateError
		if errors.As(err, &createErr) {
			for _, f := range createErr.Failures {
				logWarning("  %s: %v", f.Region, f.Err)
			}
		}
		return err
	}

	recordMachine(ctx, m)
	logMachineEvent(audit.EventMachineCreate, m.Ref(), "region "+m.Region)

	logSuccess("Machine %s started in %s", m.Ref(), m.Region)
	fmt.Fprintln(out(cmd), m.Ref())
	return nil
}

func runMachineLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var app string
	if len(args) == 1 {
		if _, err := appArg(args[0]); err != nil {
			return err
		}
		app = args[0]
	}

	store, err := application().Inventory()
	if err != nil {
		return err
	}

	if lsRemote {
		if app == "" {
			return errors.ValidationError("--remote requires an app")
		}
		if err := refreshInventory(ctx, store, app); err != nil {
			return err
		}
	}

	records, err := store.List(ctx, app)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		logInfo("No machines known. Create one with: forage-pool machine create <type> <owner>")
		return nil
	}

	w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MACHINE\tNAME\tREGION\tSTATE\tCREATED")
	fmt.Fprintln(w, "-------\t----\t------\t-----\t-------")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Ref(), r.Name, r.Region, r.State, humanize.Time(r.CreatedAt))
	}
	return w.Flush()
}

// refreshInventory replaces the inventory's view of app with the
// provider's.
func refreshInventory(ctx context.Context, store *inventory.Store, app string) error {
	remote, err := application().Machines().ListMachines(ctx, app)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(remote))
	for i := range remote {
		m := &remote[i]
		seen[m.ID] = true
		if err := store.Put(ctx, inventory.FromMachine(m)); err != nil {
			return err
		}
	}

	local, err := store.List(ctx, app)
	if err != nil {
		return err
	}
	var gone []string
	for _, r := range local {
		if !seen[r.ID] {
			gone = append(gone, r.ID)
			if err := store.Delete(ctx, r.Ref()); err != nil {
				return err
			}
		}
	}
	if len(gone) > 0 {
		sort.Strings(gone)
		logging.Debug("dropped machines missing remotely", "app", app, "ids", gone)
	}
	return nil
}

func runMachineStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ref, err := machineRef(args[0])
	if err != nil {
		return err
	}

	client := application().Machines()
	if err := client.StartMachine(ctx, ref); err != nil {
		return err
	}
	if err := client.WaitForState(ctx, ref, machines.StateStarted); err != nil {
		return err
	}

	if store, err := application().Inventory(); err == nil {
		if err := store.SetState(ctx, ref, machines.StateStarted); err != nil {
			logging.Warn("failed to update inventory", "machine", ref.String(), "error", err)
		}
	}
	logSuccess("Machine %s started", ref)
	return nil
}

func runMachineDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ref, err := machineRef(args[0])
	if err != nil {
		return err
	}

	if err := application().Machines().DestroyMachine(ctx, ref); err != nil {
		return err
	}

	if store, err := application().Inventory(); err == nil {
		if err := store.Delete(ctx, ref); err != nil {
			logging.Warn("failed to update inventory", "machine", ref.String(), "error", err)
		}
	}
	logMachineEvent(audit.EventMachineDestroy, ref, "")
	logSuccess("Machine %s destroyed", ref)
	return nil
}

func runMachineDeleteApp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := appArg(args[0])
	if err != nil {
		return err
	}

	if err := application().Machines().DeleteApp(ctx, app); err != nil {
		return err
	}

	if store, err := application().Inventory(); err == nil {
		n, err := store.DeleteApp(ctx, app)
		if err != nil {
			logging.Warn("failed to update inventory", "app", app, "error", err)
		} else if n > 0 {
			logging.Debug("removed machines from inventory", "app", app, "count", n)
		}
	}
	logSuccess("App %s deleted", app)
	return nil
}

func runMachineSecretsSet(cmd *cobra.Command, args []string) error {
	if _, err := appArg(args[0]); err != nil {
		return err
	}
	secrets, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}
	if err := application().Machines().SetSecrets(cmd.Context(), args[0], secrets); err != nil {
		return err
	}
	logSuccess("Set %d secret(s) on %s", len(secrets), args[0])
	return nil
}

func runMachineSecretsUnset(cmd *cobra.Command, args []string) error {
	if _, err := appArg(args[0]); err != nil {
		return err
	}
	if err := application().Machines().UnsetSecrets(cmd.Context(), args[0], args[1:]); err != nil {
		return err
	}
	logSuccess("Unset %d secret(s) on %s", len(args)-1, args[0])
	return nil
}
