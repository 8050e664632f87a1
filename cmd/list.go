package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"watchdogd/pkg/client"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered critical components",
	Run:   execListCmd,
}

func init() {
	setupCommandPreRun(listCmd, requireDaemonRunning)
	rootCmd.AddCommand(listCmd)
}

func execListCmd(cmd *cobra.Command, args []string) {
	components, err := client.List()
	if err != nil {
		fatal(err)
	}

	if len(components) == 0 {
		fmt.Println("No critical components registered.")
		return
	}

	for _, c := range components {
		fmt.Printf("%d\t%s\t\ttimeout %s\tlast check-in %s ago\n",
			c.ID, c.Name,
			time.Duration(c.TimeoutMs)*time.Millisecond,
			time.Duration(c.SinceCheckinMs)*time.Millisecond)
	}
}
