package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/system"
)

var logsCmd = &cobra.Command{
	Use:   "logs <owner>/<branch>",
	Short: "View captured dev server output",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runLogs,
}

var logsFollow bool
var logsLines int

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 50, "Number of lines to show")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	k, err := keyArgs(args)
	if err != nil {
		return err
	}
	path := application().Pool.LogPath(k)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no log for %s: %w", k, err)
	}

	if logsFollow {
		tailPath, err := exec.LookPath("tail")
		if err != nil {
			return fmt.Errorf("tail not found: %w", err)
		}
		tailArgs := []string{"tail", "-n", strconv.Itoa(logsLines), "-F", path}
		return syscall.Exec(tailPath, tailArgs, system.SafeEnviron(nil))
	}

	lines, err := lastLines(path, logsLines)
	if err != nil {
		return fmt.Errorf("failed to read log: %w", err)
	}
	w := out(cmd)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return nil
}

// lastLines returns up to n trailing lines of the file at path.
func lastLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if n <= 0 {
		return nil, nil
	}
	ring := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, sc.Text())
	}
	return ring, sc.Err()
}
