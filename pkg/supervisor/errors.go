package supervisor

import "errors"

var (
	// ErrConfiguration 设备路径不存在等配置错误，Supervisor 保持 Disabled
	ErrConfiguration = errors.New("invalid watchdog configuration")

	// ErrStopped Supervisor 已经关闭
	ErrStopped = errors.New("supervisor stopped")

	// ErrHistoryDisabled 没有启用重启原因历史
	ErrHistoryDisabled = errors.New("reboot cause history disabled")
)
