package supervisor

import (
	"time"

	"watchdogd/pkg/device"
	"watchdogd/pkg/executor"
	"watchdogd/pkg/metrics"
	"watchdogd/pkg/rebootcause"

	"github.com/benbjohnson/clock"
)

// Option 定制 Supervisor 的依赖
type Option func(*Supervisor)

// WithClock 替换时钟，测试中传入 clock.NewMock()
func WithClock(clk clock.Clock) Option {
	return func(sv *Supervisor) {
		sv.clock = clk
	}
}

// WithRunner 替换执行 sync/reboot/停止守护进程命令的 Runner
func WithRunner(r executor.Runner) Option {
	return func(sv *Supervisor) {
		sv.runner = r
	}
}

// WithDeviceOpener 替换打开设备文件的函数
func WithDeviceOpener(open func(path string) (device.File, error)) Option {
	return func(sv *Supervisor) {
		sv.openFile = open
	}
}

func WithGracePeriod(d time.Duration) Option {
	return func(sv *Supervisor) {
		sv.gracePeriod = d
	}
}

// WithMarkerPath 替换记录当前设备路径的标记文件
func WithMarkerPath(path string) Option {
	return func(sv *Supervisor) {
		sv.markerPath = path
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(sv *Supervisor) {
		sv.metrics = m
	}
}

// WithHistory 启用控制接口的 History 查询
func WithHistory(h *rebootcause.History) Option {
	return func(sv *Supervisor) {
		sv.history = h
	}
}
