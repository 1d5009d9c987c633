package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
)

var machineExecCmd = &cobra.Command{
	Use:   "exec <app>/<id> -- <command>",
	Short: "Run a command on a machine, starting it if needed",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMachineExec,
}

var machineCatCmd = &cobra.Command{
	Use:   "cat <app>/<id> <path>",
	Short: "Print a file from a machine",
	Args:  cobra.ExactArgs(2),
	RunE:  runMachineCat,
}

var machineWriteCmd = &cobra.Command{
	Use:   "write <app>/<id> <path>",
	Short: "Write stdin (or --from) to a file on a machine",
	Args:  cobra.ExactArgs(2),
	RunE:  runMachineWrite,
}

var machineRmCmd = &cobra.Command{
	Use:   "rm <app>/<id> <path>",
	Short: "Delete a file on a machine",
	Args:  cobra.ExactArgs(2),
	RunE:  runMachineRm,
}

var (
	execTimeout time.Duration
	writeFrom   string
)

func init() {
	machineExecCmd.Flags().DurationVarP(&execTimeout, "timeout", "t", 30*time.Second, "Command timeout")
	machineWriteCmd.Flags().StringVar(&writeFrom, "from", "", "Local file to upload (default stdin)")
	machineCmd.AddCommand(machineExecCmd, machineCatCmd, machineWriteCmd, machineRmCmd)
}

func runMachineExec(cmd *cobra.Command, args []string) error {
	dash := cmd.ArgsLenAtDash()
	if dash != 1 || len(args) < 2 {
		return errors.ValidationError("usage: forage-pool machine exec <app>/<id> -- <command>")
	}
	ref, err := machineRef(args[0])
	if err != nil {
		return err
	}

	// A single argument is passed to the shell as written so pipes work;
	// several are quoted word by word.
	command := args[1]
	if len(args) > 2 {
		command = shellquote.Join(args[1:]...)
	}

	res, err := application().Machines().Execute(cmd.Context(), ref, command, execTimeout)
	if err != nil {
		return err
	}
	logMachineEvent(audit.EventExec, ref, fmt.Sprintf("exit %d: %s", res.ExitCode, command))

	fmt.Fprint(out(cmd), res.Stdout)
	fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
	return res.Err()
}

func runMachineCat(cmd *cobra.Command, args []string) error {
	ref, err := machineRef(args[0])
	if err != nil {
		return err
	}

	res := application().Machines().ReadFile(cmd.Context(), ref, args[1])
	if !res.OK() {
		return res.Err
	}
	fmt.Fprint(out(cmd), res.Value)
	return nil
}

func runMachineWrite(cmd *cobra.Command, args []string) error {
	ref, err := machineRef(args[0])
	if err != nil {
		return err
	}

	var src io.Reader = cmd.InOrStdin()
	if writeFrom != "" {
		f, err := os.Open(writeFrom)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", writeFrom, err)
		}
		defer f.Close()
		src = f
	}
	content, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	res := application().Machines().WriteFile(cmd.Context(), ref, args[1], content)
	if !res.OK() {
		return res.Err
	}
	logSuccess("Wrote %d bytes to %s:%s", res.Value, ref, args[1])
	return nil
}

func runMachineRm(cmd *cobra.Command, args []string) error {
	ref, err := machineRef(args[0])
	if err != nil {
		return err
	}

	res := application().Machines().DeleteFile(cmd.Context(), ref, args[1])
	if !res.OK() {
		return res.Err
	}
	logSuccess("Removed %s:%s", ref, args[1])
	return nil
}
