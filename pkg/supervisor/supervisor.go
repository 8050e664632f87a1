// Package supervisor 是看门狗的核心控制器
//
// 本模块负责：
//   - 在配置变化时打开/关闭硬件看门狗设备
//   - 周期性检查关键组件是否超时，并决定是否喂狗
//   - 检测到超时后记录原因、尝试优雅重启，宽限期过后停止喂狗
//   - 守护进程生命周期和控制 socket
//
// 并发模型：
//
//	设备 I/O、状态机转换和重新配置全部在同一个工作协程中串行执行，
//	ApplyConfiguration 和定时 tick 都是提交给这个协程的任务。
//	组件的注册和签到直接访问 registry，不经过工作协程。
//
// 文件组织：
//   - supervisor.go：核心结构定义和工作协程
//   - scheduler.go：apply 和 tick 状态机
//   - operations.go：对外暴露的操作
//   - options.go：构造选项
//   - reload.go：配置重载
//   - daemon.go：守护进程和信号处理
//   - ctl_server.go / ctl_session.go / ctl_client.go：控制 socket
//
// 使用示例：
//
//	sv := supervisor.New()
//	defer sv.Shutdown()
//
//	_ = sv.ApplyConfiguration(ctx, cfg.Watchdog)
//	h, _ := sv.Register("modem", 2*time.Minute)
//	sv.Checkin(h)
package supervisor

import (
	"context"
	"sync"
	"time"

	"watchdogd/pkg/config"
	"watchdogd/pkg/device"
	"watchdogd/pkg/executor"
	"watchdogd/pkg/logger"
	"watchdogd/pkg/metrics"
	"watchdogd/pkg/rebootcause"
	"watchdogd/pkg/registry"
	"watchdogd/pkg/utils/constants"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Supervisor 管理硬件看门狗和关键组件表
//
// 以 tasks 通道为界，registry 可以被任意协程并发访问，
// 其余带注释“工作协程”的字段只能在 run 中读写。
type Supervisor struct {
	StartedAt time.Time

	clock      clock.Clock
	runner     executor.Runner
	openFile   func(path string) (device.File, error)
	registry   *registry.Registry
	opener     *device.Opener
	recorder   *rebootcause.Recorder
	rebootExec *executor.RebootExecutor
	history    *rebootcause.History
	metrics    *metrics.Metrics
	logger     *zap.SugaredLogger

	gracePeriod time.Duration
	markerPath  string

	tasks    chan func()
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	// 工作协程
	cfg               config.Watchdog
	dev               *device.Device
	ticker            *clock.Ticker
	timedOutAt        *time.Time
	detectedAt        time.Time
	timedOutComponent string
	escalated         bool
}

// New 创建 Supervisor 并启动工作协程，初始状态为 Disabled
func New(opts ...Option) *Supervisor {
	sv := newSupervisor(opts...)
	sv.start()

	return sv
}

// newSupervisor 只组装依赖，不启动工作协程
func newSupervisor(opts ...Option) *Supervisor {
	sv := &Supervisor{
		clock:       clock.New(),
		gracePeriod: constants.GracePeriod,
		markerPath:  constants.DeviceMarkerPath,
		logger:      logger.Logging("supervisor"),
		tasks:       make(chan func(), 16),
		done:        make(chan struct{}),
		cfg:         config.DefaultWatchdog(),
	}

	for _, opt := range opts {
		opt(sv)
	}

	if sv.runner == nil {
		sv.runner = executor.NewExecRunner(logger.Logging("executor"))
	}
	if sv.metrics == nil {
		sv.metrics = metrics.New()
	}

	sv.StartedAt = sv.clock.Now()
	sv.registry = registry.New(sv.clock, logger.Logging("registry"))
	sv.opener = device.NewOpener(sv.runner, sv.clock, logger.Logging("device"))
	if sv.openFile != nil {
		sv.opener.OpenFile = sv.openFile
	}
	sv.recorder = rebootcause.NewRecorder(sv.clock, logger.Logging("rebootcause"))
	sv.rebootExec = executor.NewRebootExecutor(sv.runner, logger.Logging("executor"))

	return sv
}

func (sv *Supervisor) start() {
	ctx, cancel := context.WithCancel(context.Background())
	sv.cancel = cancel

	go sv.run(ctx)
}

// run 是唯一的工作协程，任何退出路径都会关闭设备
func (sv *Supervisor) run(ctx context.Context) {
	defer close(sv.done)
	defer sv.disarm()

	for {
		// 未启用时 tickC 为 nil，永远不会被选中
		var tickC <-chan time.Time
		if sv.ticker != nil {
			tickC = sv.ticker.C
		}

		select {
		case <-ctx.Done():
			return
		case task := <-sv.tasks:
			task()
		case <-tickC:
			sv.onTick(ctx)
		}
	}
}

// submit 把 fn 排进工作协程的队列并等待它执行完
func (sv *Supervisor) submit(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}

	select {
	case sv.tasks <- task:
	case <-sv.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-sv.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Metrics 返回 prometheus 指标，用于 /metrics 服务
func (sv *Supervisor) Metrics() *metrics.Metrics {
	return sv.metrics
}

// Done 在工作协程退出后关闭
func (sv *Supervisor) Done() <-chan struct{} {
	return sv.done
}
