package supervisor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"watchdogd/pkg/config"
	"watchdogd/pkg/device"
	"watchdogd/pkg/executor"
	"watchdogd/pkg/metrics"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 5 * time.Millisecond
)

type harness struct {
	sv      *Supervisor
	clock   *clock.Mock
	devices *device.FakeDevices
	runner  *executor.FakeRunner
	metrics *metrics.Metrics

	devicePath string
	causePath  string
	markerPath string
}

// newHarness 组装一个不启动工作协程的 Supervisor，测试直接调用 apply/onTick
func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := newHarnessDeps(t)
	h.sv = newSupervisor(append(h.options(), opts...)...)
	t.Cleanup(h.sv.Shutdown)

	return h
}

// newRunningHarness 启动真正的工作协程
func newRunningHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := newHarnessDeps(t)
	h.sv = New(append(h.options(), opts...)...)
	t.Cleanup(h.sv.Shutdown)

	return h
}

func newHarnessDeps(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	devicePath := filepath.Join(dir, "watchdog")
	require.NoError(t, os.WriteFile(devicePath, nil, 0600))

	return &harness{
		clock:      clock.NewMock(),
		devices:    &device.FakeDevices{},
		runner:     executor.NewFakeRunner(),
		metrics:    metrics.New(),
		devicePath: devicePath,
		causePath:  filepath.Join(dir, "data", "kura-reboot-cause"),
		markerPath: filepath.Join(dir, "marker"),
	}
}

func (h *harness) options() []Option {
	return []Option{
		WithClock(h.clock),
		WithRunner(h.runner),
		WithDeviceOpener(h.devices.Open),
		WithMarkerPath(h.markerPath),
		WithMetrics(h.metrics),
	}
}

func (h *harness) config() config.Watchdog {
	return config.Watchdog{
		Enabled:             true,
		PingIntervalMs:      100,
		WatchdogDevicePath:  h.devicePath,
		RebootCauseFilePath: h.causePath,
	}
}

// pets 返回当前设备上喂狗的次数
func (h *harness) pets() int {
	f := h.devices.Last()
	if f == nil {
		return 0
	}

	return strings.Count(f.Written(), "w")
}
