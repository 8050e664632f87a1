// Package device 管理硬件看门狗设备文件的生命周期
//
// 设备协议遵循 Linux 软件看门狗字符设备约定：
//   - 写入 'w' 重置硬件计时器（喂狗）
//   - 关闭前写入 'V' 禁用计时器，避免进程退出本身触发复位
//
// 很多 Linux 镜像自带独占设备的 watchdog 守护进程，打开设备遇到 EBUSY 时
// 会按顺序尝试停止该守护进程，等待片刻后再重试一次。
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"watchdogd/pkg/executor"
	"watchdogd/pkg/utils/constants"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var (
	// ErrDeviceUnavailable 解决冲突之后仍然无法打开设备
	ErrDeviceUnavailable = errors.New("watchdog device unavailable")

	// ErrDeviceIO 喂狗或禁用时写设备失败
	ErrDeviceIO = errors.New("watchdog device i/o error")

	// ErrAlreadyOpen 同一路径已经被本进程打开
	ErrAlreadyOpen = errors.New("watchdog device already open")
)

// File 是打开的设备文件
type File interface {
	io.Writer
	io.Closer
}

// OpenFile 以只写方式打开设备
func OpenFile(path string) (File, error) {
	return os.OpenFile(path, os.O_WRONLY, 0)
}

// 本进程内已打开的设备路径，同一路径同一时刻只允许一个 Device
var (
	openMu    sync.Mutex
	openPaths = make(map[string]struct{})
)

func claim(path string) bool {
	openMu.Lock()
	defer openMu.Unlock()

	if _, ok := openPaths[path]; ok {
		return false
	}
	openPaths[path] = struct{}{}

	return true
}

func release(path string) {
	openMu.Lock()
	defer openMu.Unlock()

	delete(openPaths, path)
}

// Opener 打开设备，遇到 EBUSY 时负责停止竞争的看门狗守护进程
type Opener struct {
	OpenFile     func(path string) (File, error)
	Runner       executor.Runner
	Clock        clock.Clock
	SettleDelay  time.Duration
	StopCommands []executor.Command

	logger *zap.SugaredLogger
}

func NewOpener(runner executor.Runner, clk clock.Clock, logger *zap.SugaredLogger) *Opener {
	cmds := make([]executor.Command, 0, len(constants.StopDaemonCommands))
	for _, c := range constants.StopDaemonCommands {
		cmds = append(cmds, c)
	}

	return &Opener{
		OpenFile:     OpenFile,
		Runner:       runner,
		Clock:        clk,
		SettleDelay:  constants.DeviceSettleDelay,
		StopCommands: cmds,
		logger:       logger,
	}
}

// Open 打开设备
//
// 第一次打开返回 EBUSY 时，依次执行 StopCommands 直到某一条成功，
// 等待 SettleDelay 后不再解决冲突地重试一次。所有停止命令都失败时返回最初的错误。
func (o *Opener) Open(ctx context.Context, path string) (*Device, error) {
	if !claim(path) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, path)
	}

	file, err := o.open(ctx, path, true)
	if err != nil {
		release(path)
		return nil, err
	}

	o.logger.Infof("Opened watchdog device %s", path)

	return &Device{
		path:   path,
		file:   file,
		logger: o.logger,
	}, nil
}

func (o *Opener) open(ctx context.Context, path string, resolveConflict bool) (File, error) {
	file, err := o.OpenFile(path)
	if err == nil {
		return file, nil
	}

	if !resolveConflict || !errors.Is(err, unix.EBUSY) {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	o.logger.Warnf("Watchdog device %s is busy, stopping competing watchdog daemon", path)

	if stopErr := o.stopCompetingDaemon(ctx); stopErr != nil {
		o.logger.Errorf("Cannot stop competing watchdog daemon: %v", stopErr)
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	if o.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, ctx.Err())
		case <-o.Clock.After(o.SettleDelay):
		}
	}

	return o.open(ctx, path, false)
}

func (o *Opener) stopCompetingDaemon(ctx context.Context) error {
	var errs error
	for _, cmd := range o.StopCommands {
		err := o.Runner.Run(ctx, cmd)
		if err == nil {
			o.logger.Infof("Stopped competing watchdog daemon with %q", cmd.String())
			return nil
		}

		o.logger.Debugf("%q failed: %v", cmd.String(), err)
		errs = errors.Join(errs, err)
	}

	if errs == nil {
		errs = errors.New("no stop command configured")
	}

	return errs
}

// Device 独占一个打开的看门狗设备文件
//
// 不是并发安全的，只能在 Supervisor 的工作协程里使用。
type Device struct {
	path   string
	file   File
	logger *zap.SugaredLogger
}

func (d *Device) Path() string {
	return d.path
}

// Pet 写入喂狗字节
//
// 失败等同于没有喂狗，调用方不能假设硬件计时器已被重置。
// os.File 不带用户态缓冲，写入即到达驱动。
func (d *Device) Pet() error {
	return d.write(constants.KeepAliveByte)
}

// DisableAndClose 写入禁用字节后关闭设备，错误只返回不重试，可重复调用
func (d *Device) DisableAndClose() error {
	if d.file == nil {
		return nil
	}

	writeErr := d.write(constants.DisableByte)

	closeErr := d.file.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("%w: close %s: %w", ErrDeviceIO, d.path, closeErr)
	}

	d.file = nil
	release(d.path)

	d.logger.Infof("Closed watchdog device %s", d.path)

	return errors.Join(writeErr, closeErr)
}

func (d *Device) write(b byte) error {
	if d.file == nil {
		return fmt.Errorf("%w: %s is closed", ErrDeviceIO, d.path)
	}

	n, err := d.file.Write([]byte{b})
	if err != nil {
		return fmt.Errorf("%w: write %q to %s: %w", ErrDeviceIO, b, d.path, err)
	}
	if n != 1 {
		return fmt.Errorf("%w: short write to %s", ErrDeviceIO, d.path)
	}

	return nil
}
