package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"watchdogd/pkg/client"
)

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Disable the watchdog and stop the daemon",
	Run:   execShutdownCmd,
}

func init() {
	setupCommandPreRun(shutdownCmd, requireDaemonRunning)
	rootCmd.AddCommand(shutdownCmd)
}

func execShutdownCmd(cmd *cobra.Command, args []string) {
	// 使用 channel 异步执行 RPC 调用
	done := make(chan error, 1)
	go func() {
		done <- client.Shutdown()
	}()

	// 等待 RPC 响应或超时
	select {
	case err := <-done:
		if err != nil {
			fatal(err)
		}
		fmt.Println("Watchdogd has been stopped.")
	case <-time.After(5 * time.Second):
		fmt.Println("Shutdown initiated (timeout waiting for response).")
	}
}
