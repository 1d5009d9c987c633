package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/pool"
)

var auditCmd = &cobra.Command{
	Use:   "audit <owner>/<branch> | <app>/<machine-id>",
	Short: "Display the audit trail for a sandbox or machine",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

var auditRaw bool

func init() {
	auditCmd.Flags().BoolVar(&auditRaw, "raw", false, "Output events as JSON lines")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	name := args[0]
	// Both forms are two path-safe identifiers.
	if _, err := pool.ParseKey(name); err != nil {
		return err
	}

	events, err := application().Audit.Events(name)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	if len(events) == 0 {
		logInfo("No events found for %s", name)
		return nil
	}

	w := out(cmd)
	for _, e := range events {
		if auditRaw {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}
			fmt.Fprintln(w, string(data))
			continue
		}

		ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		line := fmt.Sprintf("[%s] %-15s %s", ts, e.Type, e.Sandbox)
		if e.Port != 0 {
			line += fmt.Sprintf(" port=%d", e.Port)
		}
		if e.PID != 0 {
			line += fmt.Sprintf(" pid=%d", e.PID)
		}
		if e.Details != "" {
			line += fmt.Sprintf(" (%s)", e.Details)
		}
		fmt.Fprintln(w, line)
	}

	return nil
}
