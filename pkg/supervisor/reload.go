// Package supervisor 提供配置重载功能
package supervisor

import (
	"context"

	"watchdogd/pkg/config"
	"watchdogd/pkg/logger"
)

// Reload 重新读取配置文件并应用其中的 watchdog 小节
//
// 触发来源：SIGHUP、控制接口的 Reload、配置文件变化。
// 读取失败时保持当前状态不变。
func (sv *Supervisor) Reload(ctx context.Context) error {
	sv.logger.Info("Reloading configuration")

	cfg, err := config.Reload()
	if err != nil {
		sv.logger.Errorf("Reload failed, keeping current configuration: %v", err)
		return err
	}

	return sv.applyDaemonConfig(ctx, cfg)
}

func (sv *Supervisor) applyDaemonConfig(ctx context.Context, cfg *config.Config) error {
	level := cfg.Log.Level
	if config.LogLevelFlag != "" {
		level = config.LogLevelFlag
	}
	logger.SetLevel(level)

	return sv.ApplyConfiguration(ctx, cfg.Watchdog)
}
