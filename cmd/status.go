package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"watchdogd/pkg/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the watchdog state",
	Run:   execStatusCmd,
}

func init() {
	setupCommandPreRun(statusCmd, requireDaemonRunning)
	rootCmd.AddCommand(statusCmd)
}

func execStatusCmd(cmd *cobra.Command, args []string) {
	st, err := client.Status()
	if err != nil {
		fatal(err)
	}

	fmt.Printf("State:\t\t%s\n", st.State)
	fmt.Printf("Enabled:\t%t\n", st.Enabled)
	fmt.Printf("Device:\t\t%s\n", st.DevicePath)
	fmt.Printf("Ping interval:\t%s\n", time.Duration(st.PingIntervalMs)*time.Millisecond)
	fmt.Printf("Components:\t%d\n", st.Registered)

	if st.TimedOutComponent != "" {
		fmt.Printf("Timed out:\t%s at %s\n", st.TimedOutComponent, formatMillis(st.TimedOutAt))
		fmt.Printf("Grace left:\t%s\n", time.Duration(st.GraceRemainingMs)*time.Millisecond)
	}
}
