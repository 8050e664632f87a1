package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"watchdogd/pkg/utils"
)

// Version 在构建时通过 -ldflags "-X watchdogd/cmd.Version=..." 注入
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run:   execVersionCmd,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func execVersionCmd(cmd *cobra.Command, args []string) {
	version := Version
	if info, ok := debug.ReadBuildInfo(); ok && version == "dev" && info.Main.Version != "" {
		version = info.Main.Version
	}

	fmt.Printf("%s %s (%s %s/%s)\n", utils.RuntimeModuleName, version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
