// Package supervisor 提供 Daemon 管理功能
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"watchdogd/pkg/config"
	"watchdogd/pkg/logger"
	"watchdogd/pkg/metrics"
	"watchdogd/pkg/rebootcause"
	"watchdogd/pkg/utils"
	"watchdogd/pkg/utils/constants"

	"github.com/gnuos/daemon"
	"github.com/gofrs/flock"
)

var daemonCtx *daemon.Context

// GetDaemon 获取或创建 Daemon 上下文
func GetDaemon() *daemon.Context {
	if daemonCtx == nil {
		daemonCtx = &daemon.Context{
			PidFileName: config.GetConfig().PidFile,
			PidFilePerm: 0644,
			WorkDir:     constants.WatchdogdHome,
			Umask:       027,
			Args:        os.Args,
		}
	}

	return daemonCtx
}

// Daemon 运行看门狗守护进程，阻塞直到收到终止信号或 Shutdown 指令
//
// 运行模式：
//   - 前台模式（--foreground 或 daemonize: false）：直接运行
//   - 后台模式：daemon.Reborn() 创建子进程，父进程立即返回
//
// 启动顺序：
//  1. 获取文件锁，保证只有一个进程持有看门狗设备
//  2. 归档上一次的重启原因
//  3. 启动工作协程并应用配置
//  4. 启动 /metrics 和控制 socket
//
// 信号处理：
//   - SIGINT/SIGTERM/SIGQUIT：关闭设备后退出
//   - SIGHUP：重新加载配置
func Daemon() error {
	cfg := config.GetConfig()
	foreground := config.ForegroundFlag || !cfg.Daemonize

	if foreground {
		if err := utils.WriteDaemonPid(utils.SupervisorPid); err != nil {
			return err
		}
		defer func() {
			_ = os.Remove(cfg.PidFile)
		}()
	} else {
		d, err := GetDaemon().Reborn()
		if err != nil {
			_ = GetDaemon().Release()
			return err
		}

		if d != nil {
			fmt.Printf("Watchdogd started, PID %d\n", d.Pid)
			return nil
		}

		defer func() {
			_ = GetDaemon().Release()
		}()
	}

	log := logger.Logging("watchdogd")
	defer logger.Sync()

	fileLock := flock.New(cfg.LockFile)
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return errors.New("watchdogd already running (lock held by another process)")
	}
	defer func() {
		_ = fileLock.Unlock()
	}()

	opts := make([]Option, 0, 2)

	if cfg.History.Enabled {
		history, err := rebootcause.OpenHistory(cfg.History.Path, logger.Logging("history"))
		if err != nil {
			log.Errorf("Reboot cause history unavailable: %v", err)
		} else {
			defer func() {
				_ = history.Close()
			}()

			if _, err := history.Ingest(cfg.Watchdog.RebootCauseFilePath, cfg.History.Consume); err != nil {
				log.Warnf("Cannot archive reboot cause %s: %v", cfg.Watchdog.RebootCauseFilePath, err)
			}

			opts = append(opts, WithHistory(history))
		}
	}

	sv := New(opts...)
	defer sv.Shutdown()

	log.Infof("Watchdogd PID %d started at %s", utils.SupervisorPid, sv.StartedAt.Format(time.RFC3339))

	// 配置错误时保持 Disabled，守护进程继续运行等待下一次重载
	if err := sv.applyDaemonConfig(context.Background(), cfg); err != nil {
		log.Error(err)
	}

	if cfg.Metrics.Listen != "" {
		ms, err := metrics.Serve(cfg.Metrics.Listen, sv.Metrics(), logger.Logging("metrics"))
		if err != nil {
			log.Errorf("Metrics server not started: %v", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = ms.Shutdown(ctx)
			}()
		}
	}

	server, err := StartServer(sv, cfg.Socket)
	if err != nil {
		return err
	}
	// 先解除看门狗，再关闭控制 socket
	defer func() {
		sv.Shutdown()
		_ = server.Close()
	}()

	if config.Watch(func(c *config.Config, err error) {
		if err != nil {
			log.Errorf("Ignoring configuration change: %v", err)
			return
		}
		log.Infof("Configuration file %s changed", config.ConfigFileUsed())
		_ = sv.applyDaemonConfig(context.Background(), c)
	}) {
		log.Infof("Watching configuration file %s", config.ConfigFileUsed())
	}

	signal.Notify(utils.StopChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer signal.Stop(utils.StopChan)

	for {
		select {
		case sig := <-utils.StopChan:
			if sig == syscall.SIGHUP {
				_ = sv.Reload(context.Background())
				continue
			}
			log.Infof("Received %s, shutting down", sig)
		case <-utils.FinishChan:
			log.Info("Shutdown requested over the control socket")
		}

		break
	}

	log.Info("Watchdogd stopped")

	return nil
}
