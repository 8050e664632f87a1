package supervisor

import (
	"context"
	"time"

	"watchdogd/pkg/config"
	"watchdogd/pkg/rebootcause"
	"watchdogd/pkg/registry"
)

// Register 注册一个关键组件，注册时间即第一次签到
func (sv *Supervisor) Register(name string, timeout time.Duration) (*registry.Handle, error) {
	h, err := sv.registry.Register(name, timeout)
	if err != nil {
		return nil, err
	}

	sv.metrics.Registered.Set(float64(sv.registry.Len()))

	return h, nil
}

// Add 重新注册已有的 Handle，重复注册记录日志后忽略
func (sv *Supervisor) Add(h *registry.Handle) bool {
	added := sv.registry.Add(h)
	sv.metrics.Registered.Set(float64(sv.registry.Len()))

	return added
}

// Unregister 注销组件，未注册时什么也不做
func (sv *Supervisor) Unregister(h *registry.Handle) {
	sv.registry.Unregister(h)
	sv.metrics.Registered.Set(float64(sv.registry.Len()))
}

// Checkin 刷新组件的签到时间，已注销的组件静默忽略
func (sv *Supervisor) Checkin(h *registry.Handle) {
	sv.registry.Checkin(h)
}

// Lookup 按控制接口使用的 ID 查找 Handle
func (sv *Supervisor) Lookup(id uint64) (*registry.Handle, bool) {
	return sv.registry.Lookup(id)
}

func (sv *Supervisor) ListRegistered() []registry.Entry {
	return sv.registry.Snapshot()
}

// ApplyConfiguration 在工作协程中应用新的配置快照，等待完成后返回
//
// 设备路径不存在返回 ErrConfiguration，设备打不开返回 device.ErrDeviceUnavailable，
// 两种情况下 Supervisor 都停在 Disabled。
func (sv *Supervisor) ApplyConfiguration(ctx context.Context, cfg config.Watchdog) error {
	var err error

	if serr := sv.submit(ctx, func() {
		err = sv.apply(ctx, cfg)
	}); serr != nil {
		return serr
	}

	return err
}

// Status 在工作协程中读取当前状态
func (sv *Supervisor) Status(ctx context.Context) (Status, error) {
	var st Status

	err := sv.submit(ctx, func() {
		st = sv.status()
	})

	return st, err
}

// History 返回归档的重启原因，从旧到新
func (sv *Supervisor) History() ([]rebootcause.Cause, error) {
	if sv.history == nil {
		return nil, ErrHistoryDisabled
	}

	return sv.history.List()
}

// Shutdown 关闭设备并停止工作协程，可以重复调用
func (sv *Supervisor) Shutdown() {
	sv.stopOnce.Do(func() {
		if sv.cancel != nil {
			sv.cancel()
			<-sv.done
		} else {
			// 工作协程没有启动
			sv.disarm()
			close(sv.done)
		}

		sv.logger.Info("Shutdown supervisor...")
	})
}
