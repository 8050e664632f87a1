// Package constants
package constants

import (
	"fmt"
	"os"
	"time"
)

const (
	DefaultLogLevel   = "info"
	DefaultDaemonName = "watchdogd"
	EnvPrefix         = "WATCHDOGD"
)

// 看门狗相关的固定参数，不开放配置
const (
	// GracePeriod 检测到组件超时后继续喂狗的时长，给 reboot 命令留出完成的时间
	GracePeriod = 5 * time.Minute

	// DeviceMarkerPath 记录当前正在使用的看门狗设备路径，仅用于诊断
	DeviceMarkerPath = "/tmp/watchdog"

	// DeviceSettleDelay 停掉竞争的看门狗守护进程之后，重新打开设备前的等待时间
	DeviceSettleDelay = time.Second

	// CommandTimeout 单条 shell 命令的最长执行时间
	CommandTimeout = 30 * time.Second
)

// 配置默认值
const (
	DefaultPingInterval       = 10 * time.Second
	DefaultWatchdogDevicePath = "/dev/watchdog"
	DefaultRebootCausePath    = "/opt/eclipse/kura/data/kura-reboot-cause"
)

// Linux 设备协议：写入 'w' 喂狗，写入 'V' 在关闭前禁用硬件计时器
const (
	KeepAliveByte byte = 'w'
	DisableByte   byte = 'V'
)

// StopDaemonCommands 按顺序尝试停止系统自带的软件看门狗守护进程，第一条成功即停止
var StopDaemonCommands = [][]string{
	{"systemctl", "stop", "watchdog"},
	{"service", "watchdog", "stop"},
	{"/etc/init.d/watchdog", "stop"},
	{"/etc/init.d/watchdog.sh", "stop"},
}

var (
	SyncCommand   = []string{"sync"}
	RebootCommand = []string{"reboot"}
)

var WatchdogdHome = getHome()

var DaemonLogFilePath = getDaemonPath("log")
var DaemonPidFilePath = getDaemonPath("pid")
var DaemonSockFilePath = getDaemonPath("sock")
var DaemonLockFilePath = getDaemonPath("lock")
var HistoryDBPath = fmt.Sprintf("%s/history", WatchdogdHome)

func getHome() string {
	return fmt.Sprintf("%s/.%s", os.Getenv("HOME"), DefaultDaemonName)
}

func getDaemonPath(suffix string) string {
	return fmt.Sprintf("%s/%s.%s", WatchdogdHome, DefaultDaemonName, suffix)
}
