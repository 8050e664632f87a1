package cmd

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"watchdogd/pkg/config"
	"watchdogd/pkg/utils"
)

func isDaemonRunning() bool {
	daemonPid, err := utils.ReadPid(config.GetConfig().PidFile)
	if err != nil {
		return false
	}

	if daemonPid < 0 {
		return false
	}

	return isPidActive(daemonPid)
}

func isPidActive(p int) bool {
	_, err := syscall.Getpgid(p)

	return err == nil
}

// tryRunDaemon 在后台启动 daemon 子命令，继承当前的全局参数
func tryRunDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	args := []string{"daemon"}
	if config.ConfigFileFlag != "" {
		args = append(args, "--config", config.ConfigFileFlag)
	}
	if config.LogLevelFlag != "" {
		args = append(args, "--loglevel", config.LogLevelFlag)
	}

	cmd := exec.Command(exe, args...)
	cmd.Stderr = os.Stderr
	cmd.Stdout = os.Stdout
	cmd.Stdin = os.Stdin

	return cmd.Run()
}

// setupCommandPreRun 先执行根命令的 PreRun，再执行 fn
func setupCommandPreRun(cmd *cobra.Command, fn func()) {
	cmd.PersistentPreRun = func(c *cobra.Command, args []string) {
		rootCmd.PersistentPreRun(c, args)
		fn()
	}
}

// requireDaemonRunning 守护进程未运行时退出
func requireDaemonRunning() {
	if !isDaemonRunning() {
		log.Fatalln("ERROR: watchdogd has not started. Please check the daemon.")
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}

	return time.UnixMilli(ms).Format(time.RFC3339)
}
