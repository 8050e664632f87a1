package supervisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"watchdogd/pkg/codec"
	"watchdogd/pkg/config"
	"watchdogd/pkg/metrics"
	"watchdogd/pkg/registry"
)

// apply 重新配置看门狗，只能在工作协程中调用
//
// 总是先回到 Disabled：停止 tick、禁用并关闭已打开的设备。
// 启用时检查设备路径、打开设备，然后立即执行第一次 tick。
func (sv *Supervisor) apply(ctx context.Context, cfg config.Watchdog) error {
	sv.disarm()
	sv.cfg = cfg

	if !cfg.Enabled {
		sv.logger.Info("Watchdog disabled")
		return nil
	}

	if err := cfg.Validate(); err != nil {
		sv.logger.Errorf("Watchdog stays disabled: %v", err)
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	if _, err := os.Stat(cfg.WatchdogDevicePath); err != nil {
		sv.logger.Errorf("Watchdog stays disabled, device %s: %v", cfg.WatchdogDevicePath, err)
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	dev, err := sv.opener.Open(ctx, cfg.WatchdogDevicePath)
	if err != nil {
		sv.logger.Errorf("Watchdog stays disabled: %v", err)
		return err
	}

	sv.dev = dev
	sv.writeMarker(cfg.WatchdogDevicePath)

	sv.timedOutAt = nil
	sv.timedOutComponent = ""
	sv.escalated = false
	sv.ticker = sv.clock.Ticker(cfg.PingInterval())
	sv.metrics.Armed.Set(1)

	sv.logger.Infof("Watchdog armed on %s, ping interval %s", cfg.WatchdogDevicePath, cfg.PingInterval())

	sv.onTick(ctx)

	return nil
}

// disarm 停止 tick 并关闭设备，关闭前写入禁用标记
func (sv *Supervisor) disarm() {
	if sv.ticker != nil {
		sv.ticker.Stop()
		sv.ticker = nil
	}

	if sv.dev != nil {
		if err := sv.dev.DisableAndClose(); err != nil {
			sv.logger.Error(err)
		}
		sv.dev = nil
		sv.logger.Info("Watchdog disarmed")
	}

	sv.timedOutAt = nil
	sv.timedOutComponent = ""
	sv.escalated = false
	sv.metrics.Armed.Set(0)
}

// writeMarker 记录正在使用的设备路径，失败不影响喂狗
func (sv *Supervisor) writeMarker(devicePath string) {
	if sv.markerPath == "" {
		return
	}

	if err := os.WriteFile(sv.markerPath, []byte(devicePath+"\n"), 0644); err != nil {
		sv.logger.Warnf("Cannot write watchdog marker %s: %v", sv.markerPath, err)
	}
}

// onTick 是一次轮询
//
// 尚未超时时检查组件表；发现超时组件后记录原因并尝试重启。
// 超时之后只在宽限期内继续喂狗，宽限期过后停止喂狗直到下一次 apply。
func (sv *Supervisor) onTick(ctx context.Context) {
	if sv.dev == nil {
		return
	}

	if sv.timedOutAt == nil {
		if h, ok := sv.registry.FirstTimedOut(); ok {
			sv.escalate(ctx, h)
		}
	}

	if sv.timedOutAt != nil {
		elapsed := sv.clock.Since(*sv.timedOutAt)
		if elapsed >= sv.gracePeriod {
			if !sv.escalated {
				sv.escalated = true
				sv.logger.Errorf("Grace period expired %s after %s timed out, no longer petting %s",
					elapsed, sv.timedOutComponent, sv.dev.Path())
			}
			return
		}
	}

	if err := sv.dev.Pet(); err != nil {
		sv.metrics.PetFailures.Inc()
		sv.logger.Error(err)
		return
	}

	sv.metrics.Pets.Inc()
}

// escalate 处理第一次检测到的超时
func (sv *Supervisor) escalate(ctx context.Context, h *registry.Handle) {
	now := sv.clock.Now()
	sv.timedOutAt = &now
	sv.detectedAt = now
	sv.timedOutComponent = h.Name()

	sv.metrics.ComponentTimeouts.WithLabelValues(h.Name()).Inc()
	sv.logger.Errorf("Critical component %s missed its %s check-in, rebooting", h, h.Timeout())

	sv.recorder.Record(h.Name(), sv.cfg.RebootCauseFilePath)

	if err := sv.rebootExec.Reboot(ctx); err != nil {
		sv.metrics.RebootAttempts.WithLabelValues(metrics.ResultFailed).Inc()
		sv.logger.Errorf("Graceful reboot failed, leaving the reset to the hardware watchdog: %v", err)

		// 启动失败和非零退出同样处理：宽限期直接归零，交给硬件复位
		collapsed := now.Add(-sv.gracePeriod)
		sv.timedOutAt = &collapsed
		return
	}

	sv.metrics.RebootAttempts.WithLabelValues(metrics.ResultOK).Inc()
}

// Status 是 Supervisor 的状态快照
type Status struct {
	State             codec.SupervisorState
	Config            config.Watchdog
	DevicePath        string
	TimedOutAt        time.Time
	TimedOutComponent string
	GraceRemaining    time.Duration
	Registered        int
}

func (sv *Supervisor) status() Status {
	st := Status{
		State:      codec.StateDisabled,
		Config:     sv.cfg,
		Registered: sv.registry.Len(),
	}

	if sv.dev == nil {
		return st
	}

	st.State = codec.StateArmed
	st.DevicePath = sv.dev.Path()

	if sv.timedOutAt == nil {
		return st
	}

	st.TimedOutAt = sv.detectedAt
	st.TimedOutComponent = sv.timedOutComponent

	remaining := sv.gracePeriod - sv.clock.Since(*sv.timedOutAt)
	if remaining > 0 {
		st.State = codec.StateTimedOut
		st.GraceRemaining = remaining
	} else {
		st.State = codec.StateEscalated
	}

	return st
}
