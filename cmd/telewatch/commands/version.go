package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// SetVersionInfo records build-time version information for the
// version command.
func SetVersionInfo(v, c, b string) {
	if v != "" {
		version = v
	}
	if c != "" {
		commit = c
	}
	if b != "" {
		buildTime = b
	}
}

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show telewatch version",
		Run: func(cmd *cobra.Command, args []string) {
			short, _ := cmd.Flags().GetBool("short")
			if short {
				fmt.Println(version)
				return
			}
			fmt.Printf("telewatch version %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", buildTime)
		},
	}
	cmd.Flags().Bool("short", false, "show only version number")
	return cmd
}
