package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"watchdogd/pkg/client"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the configuration and re-arm the watchdog",
	Run:   execReloadCmd,
}

func init() {
	setupCommandPreRun(reloadCmd, requireDaemonRunning)
	rootCmd.AddCommand(reloadCmd)
}

func execReloadCmd(cmd *cobra.Command, args []string) {
	if err := client.Reload(); err != nil {
		fatal(err)
	}

	fmt.Printf("[%s] Configuration reloaded\n", time.Now().Format(time.RFC3339))
}
