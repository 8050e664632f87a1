// Package cmd
package cmd

import (
	"log"

	"watchdogd/pkg/config"
	"watchdogd/pkg/utils"
	"watchdogd/pkg/utils/constants"

	"github.com/spf13/cobra"
)

var showVersion bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           utils.RuntimeModuleName,
	Short:         utils.RuntimeModuleName + " hardware watchdog supervisor",
	SilenceErrors: true,
	SilenceUsage:  true,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			execVersionCmd(cmd, args)
			return
		}

		_ = cmd.Usage()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Configure cobra
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Set global flags
	rootCmd.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Print version and exit")
	rootCmd.PersistentFlags().StringVarP(&config.LogLevelFlag, "loglevel", "l", "", "Set log level (default from config, "+constants.DefaultLogLevel+")")
	rootCmd.PersistentFlags().StringVarP(&config.ConfigFileFlag, "config", "c", "", "The path to watchdogd.yml")

	// Register persistent function for all commands
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		execRootPersistentPreRun()
	}
}

func execRootPersistentPreRun() {
	utils.InitEnv()
}
