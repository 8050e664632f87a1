package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"watchdogd/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Run:   execConfigCmd,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func execConfigCmd(cmd *cobra.Command, args []string) {
	if used := config.ConfigFileUsed(); used != "" {
		fmt.Printf("# %s\n", used)
	} else {
		fmt.Println("# defaults (no config file found)")
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer func() {
		_ = enc.Close()
	}()

	if err := enc.Encode(config.GetConfig()); err != nil {
		fatal(err)
	}
}
