package executor

import (
	"context"
	"fmt"
	"sync"
)

// FakeRunner 按命令行返回预设结果并记录调用顺序，用于测试
//
// 没有预设结果的命令视为成功。
type FakeRunner struct {
	mu      sync.Mutex
	results map[string]error
	calls   []Command
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		results: make(map[string]error),
	}
}

// Fail 让指定命令返回 err
func (f *FakeRunner) Fail(cmd Command, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.results[cmd.String()] = err
}

// FailLaunch 让指定命令表现为无法启动
func (f *FakeRunner) FailLaunch(cmd Command) {
	f.Fail(cmd, fmt.Errorf("%w: %q: executable file not found in $PATH", ErrCommandLaunch, cmd.String()))
}

func (f *FakeRunner) Run(_ context.Context, cmd Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append(Command(nil), cmd...))

	return f.results[cmd.String()]
}

// Calls 返回已执行命令的副本
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.String())
	}

	return out
}
