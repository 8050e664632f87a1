package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background if it is not running",
	Run:   execStartCmd,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func execStartCmd(cmd *cobra.Command, args []string) {
	if isDaemonRunning() {
		fmt.Println("Watchdogd is already running.")
		return
	}

	if err := tryRunDaemon(); err != nil {
		log.Fatal(err)
	}
}
