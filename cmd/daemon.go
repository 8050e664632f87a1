package cmd

import (
	"fmt"
	"log"

	"watchdogd/pkg/config"
	"watchdogd/pkg/supervisor"
	"watchdogd/pkg/utils"
	"watchdogd/pkg/utils/constants"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the watchdog supervisor as a daemon",
	Run:   execDaemonCmd,
}

func init() {
	daemonCmd.PersistentFlags().BoolVarP(&config.ForegroundFlag, "foreground", "f", false, "Run the supervisor in the foreground")

	setupCommandPreRun(daemonCmd, execDaemonPersistentPreRun)
	rootCmd.AddCommand(daemonCmd)
}

func execDaemonPersistentPreRun() {
	err := utils.CheckPerm(constants.WatchdogdHome)
	if err != nil {
		log.Fatal(err)
	}
}

func execDaemonCmd(cmd *cobra.Command, args []string) {
	if isDaemonRunning() {
		fmt.Println("Watchdogd is running. Don't start again.")
		return
	}

	if err := supervisor.Daemon(); err != nil {
		fatal(err)
	}
}
