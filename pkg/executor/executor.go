// Package executor 运行 sync/reboot 以及停止看门狗守护进程等 shell 命令
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"watchdogd/pkg/utils/constants"

	"go.uber.org/zap"
)

// ErrCommandLaunch 命令没能启动（例如可执行文件不存在）
var ErrCommandLaunch = errors.New("command could not be launched")

type Command []string

func (c Command) String() string {
	return strings.Join(c, " ")
}

// CommandError 命令已经启动但没有成功退出
type CommandError struct {
	Command  Command
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("command %q did not complete: %v", e.Command.String(), e.Err)
	}
	return fmt.Sprintf("command %q exited with code %d", e.Command.String(), e.ExitCode)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Runner 执行一条命令，成功返回 nil
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner 使用 os/exec 执行命令，每条命令都有超时限制
type ExecRunner struct {
	Timeout time.Duration

	logger *zap.SugaredLogger
}

func NewExecRunner(logger *zap.SugaredLogger) *ExecRunner {
	return &ExecRunner{
		Timeout: constants.CommandTimeout,
		logger:  logger,
	}
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	if len(cmd) == 0 {
		return fmt.Errorf("%w: empty command", ErrCommandLaunch)
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var output bytes.Buffer
	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	c.Stdout = &output
	c.Stderr = &output

	r.logger.Debugf("Running %q", cmd.String())

	if err := c.Start(); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrCommandLaunch, cmd.String(), err)
	}

	err := c.Wait()
	if err == nil {
		return nil
	}

	cmdErr := &CommandError{
		Command:  cmd,
		ExitCode: -1,
		Output:   strings.TrimSpace(output.String()),
		Err:      err,
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.Exited() {
		cmdErr.ExitCode = exitErr.ExitCode()
	} else if ctx.Err() != nil {
		cmdErr.Err = ctx.Err()
	}

	return cmdErr
}

// RebootExecutor 执行优雅重启：先 sync 再 reboot
type RebootExecutor struct {
	runner Runner
	logger *zap.SugaredLogger
}

func NewRebootExecutor(runner Runner, logger *zap.SugaredLogger) *RebootExecutor {
	return &RebootExecutor{
		runner: runner,
		logger: logger,
	}
}

// Reboot sync 失败只记录日志，不影响 reboot；返回 reboot 命令本身的错误
func (e *RebootExecutor) Reboot(ctx context.Context) error {
	if err := e.runner.Run(ctx, constants.SyncCommand); err != nil {
		e.logger.Errorf("sync failed, rebooting anyway: %v", err)
	}

	e.logger.Warn("Requesting system reboot")

	if err := e.runner.Run(ctx, constants.RebootCommand); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}

	return nil
}

// Runner 返回底层的命令执行器，用于停止竞争的看门狗守护进程
func (e *RebootExecutor) Runner() Runner {
	return e.runner
}
