// Package utils 提供守护进程用到的通用工具函数和全局通道
package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"watchdogd/pkg/config"
	"watchdogd/pkg/utils/constants"
)

// RuntimeModuleName 可执行文件名，用作 cobra 根命令名
var RuntimeModuleName = filepath.Base(os.Args[0])

// SupervisorPid 当前进程的 PID
var SupervisorPid = os.Getpid()

// StopChan 接收终止/重载信号
var StopChan = make(chan os.Signal, 1)

// FinishChan 通知控制服务器退出
var FinishChan = make(chan struct{}, 1)

// InitEnv 加载配置并准备运行目录
func InitEnv() {
	config.SetConfig(config.ConfigFileFlag)

	if err := os.MkdirAll(constants.WatchdogdHome, 0750); err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", constants.WatchdogdHome, err)
	}
}

// CheckPerm 检查目录是否存在且当前用户可写
func CheckPerm(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(dir, 0750)
	} else if err != nil {
		return err
	}

	if !info.IsDir() {
		return &os.PathError{Op: "stat", Path: dir, Err: os.ErrInvalid}
	}

	probe, err := os.CreateTemp(dir, ".perm-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	_ = probe.Close()

	return os.Remove(probe.Name())
}

// ReadPid 从 PID 文件读取进程号
func ReadPid(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return -1, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return -1, fmt.Errorf("invalid pid file %s: %w", pidFile, err)
	}

	return pid, nil
}

// WriteDaemonPid 前台模式下写入守护进程 PID 文件
func WriteDaemonPid(pid int) error {
	pidFile := config.GetConfig().PidFile
	if err := os.MkdirAll(filepath.Dir(pidFile), 0750); err != nil {
		return err
	}

	return os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0644)
}
