package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"watchdogd/pkg/client"
)

var (
	componentName    string
	componentTimeout time.Duration
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a critical component and print its id",
	Run:   execRegisterCmd,
}

var checkinCmd = &cobra.Command{
	Use:   "checkin ID",
	Short: "Check in a registered component",
	Args:  cobra.ExactArgs(1),
	Run:   execCheckinCmd,
}

var unregisterCmd = &cobra.Command{
	Use:   "unregister ID",
	Short: "Unregister a component",
	Args:  cobra.ExactArgs(1),
	Run:   execUnregisterCmd,
}

func init() {
	registerCmd.Flags().StringVarP(&componentName, "name", "n", "", "Component name recorded as the reboot cause")
	registerCmd.Flags().DurationVarP(&componentTimeout, "timeout", "t", time.Minute, "Maximum time between check-ins")
	_ = registerCmd.MarkFlagRequired("name")

	for _, c := range []*cobra.Command{registerCmd, checkinCmd, unregisterCmd} {
		setupCommandPreRun(c, requireDaemonRunning)
		rootCmd.AddCommand(c)
	}
}

func execRegisterCmd(cmd *cobra.Command, args []string) {
	id, err := client.Register(componentName, componentTimeout)
	if err != nil {
		fatal(err)
	}

	fmt.Println(id)
}

func parseID(arg string) uint64 {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		fatal(fmt.Errorf("invalid component id %q", arg))
	}

	return id
}

func execCheckinCmd(cmd *cobra.Command, args []string) {
	if err := client.Checkin(parseID(args[0])); err != nil {
		fatal(err)
	}
}

func execUnregisterCmd(cmd *cobra.Command, args []string) {
	if err := client.Unregister(parseID(args[0])); err != nil {
		fatal(err)
	}
}
