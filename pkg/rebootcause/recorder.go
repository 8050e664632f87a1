// Package rebootcause 记录触发重启的原因
//
// 原因文件只记录第一次：文件已经存在时不再覆盖，
// 避免重启循环中后续的次生故障把最初的诊断信息冲掉。
//
// 文件格式为两行文本：
//
//	<unix 毫秒时间戳>
//	<组件名>
//
// 写入过程：同目录临时文件 -> fsync -> rename -> fsync 父目录。
package rebootcause

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// ErrDiagnosticWrite 写原因文件失败，只记录日志，不影响重启流程
var ErrDiagnosticWrite = errors.New("cannot write reboot cause")

// Cause 是一条重启原因记录
type Cause struct {
	At        time.Time
	Component string
}

type Recorder struct {
	clock  clock.Clock
	logger *zap.SugaredLogger
}

func NewRecorder(clk clock.Clock, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{
		clock:  clk,
		logger: logger,
	}
}

// Record 写入重启原因，返回本次调用是否写入了文件
//
// 文件已存在时什么也不做；任何错误都只记录日志。
func (r *Recorder) Record(component, path string) bool {
	if _, err := os.Stat(path); err == nil {
		r.logger.Infof("Reboot cause %s already recorded, keeping the first cause", path)
		return false
	} else if !errors.Is(err, os.ErrNotExist) {
		r.logger.Errorf("%v: %v", ErrDiagnosticWrite, err)
		return false
	}

	cause := Cause{
		At:        r.clock.Now(),
		Component: component,
	}

	if err := write(path, cause); err != nil {
		r.logger.Error(err)
		return false
	}

	r.logger.Infof("Recorded reboot cause %q in %s", component, path)

	return true
}

func write(path string, cause Cause) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrDiagnosticWrite, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDiagnosticWrite, err)
	}

	tmpPath := tmp.Name()
	data := fmt.Sprintf("%d\n%s\n", cause.At.UnixMilli(), cause.Component)

	// 任何一步失败都删除临时文件
	if _, err := tmp.WriteString(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write %s: %w", ErrDiagnosticWrite, tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: sync %s: %w", ErrDiagnosticWrite, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close %s: %w", ErrDiagnosticWrite, tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename into %s: %w", ErrDiagnosticWrite, path, err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	return nil
}

// Read 解析原因文件
func Read(path string) (Cause, error) {
	f, err := os.Open(path)
	if err != nil {
		return Cause{}, err
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)

	lines := make([]string, 0, 2)
	for scanner.Scan() && len(lines) < 2 {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return Cause{}, err
	}

	if len(lines) < 2 {
		return Cause{}, fmt.Errorf("malformed reboot cause file %s", path)
	}

	millis, err := strconv.ParseInt(lines[0], 10, 64)
	if err != nil {
		return Cause{}, fmt.Errorf("malformed timestamp in %s: %w", path, err)
	}

	return Cause{
		At:        time.UnixMilli(millis),
		Component: lines[1],
	}, nil
}
