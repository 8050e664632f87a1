package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"watchdogd/pkg/client"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived reboot causes",
	Run:   execHistoryCmd,
}

func init() {
	setupCommandPreRun(historyCmd, requireDaemonRunning)
	rootCmd.AddCommand(historyCmd)
}

func execHistoryCmd(cmd *cobra.Command, args []string) {
	causes, err := client.History()
	if err != nil {
		fatal(err)
	}

	if len(causes) == 0 {
		fmt.Println("No reboot causes recorded.")
		return
	}

	for _, c := range causes {
		fmt.Printf("%s\t%s\n", formatMillis(c.At), c.Component)
	}
}
