package supervisor

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"watchdogd/pkg/codec"
	"watchdogd/pkg/device"
	"watchdogd/pkg/executor"
	"watchdogd/pkg/metrics"
	"watchdogd/pkg/rebootcause"
	"watchdogd/pkg/utils/constants"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickUntilTimedOut 每 100ms 执行一次 tick，直到检测到超时
func tickUntilTimedOut(t *testing.T, h *harness, limit int) time.Time {
	t.Helper()

	ctx := context.Background()
	for i := 0; i < limit; i++ {
		h.clock.Add(100 * time.Millisecond)
		h.sv.onTick(ctx)

		if h.sv.timedOutAt != nil {
			return h.sv.detectedAt
		}
	}

	require.FailNow(t, "no component timed out")
	return time.Time{}
}

func TestApply_disabledNeverOpensDevice(t *testing.T) {
	h := newHarness(t)

	cfg := h.config()
	cfg.Enabled = false

	require.NoError(t, h.sv.apply(context.Background(), cfg))
	require.Zero(t, h.devices.Opens())
	require.Equal(t, codec.StateDisabled, h.sv.status().State)
}

func TestApply_missingDevicePathIsConfigurationError(t *testing.T) {
	h := newHarness(t)

	cfg := h.config()
	cfg.WatchdogDevicePath = cfg.WatchdogDevicePath + "-missing"

	err := h.sv.apply(context.Background(), cfg)
	require.ErrorIs(t, err, ErrConfiguration)
	require.Zero(t, h.devices.Opens())
	require.Equal(t, codec.StateDisabled, h.sv.status().State)
}

func TestApply_invalidSnapshotIsConfigurationError(t *testing.T) {
	h := newHarness(t)

	cfg := h.config()
	cfg.PingIntervalMs = 0

	require.ErrorIs(t, h.sv.apply(context.Background(), cfg), ErrConfiguration)
	require.Zero(t, h.devices.Opens())
}

func TestApply_deviceUnavailableStaysDisabled(t *testing.T) {
	h := newHarness(t)
	h.devices.FailNext(os.ErrPermission)

	err := h.sv.apply(context.Background(), h.config())
	require.ErrorIs(t, err, device.ErrDeviceUnavailable)
	require.Equal(t, codec.StateDisabled, h.sv.status().State)
	require.Empty(t, h.runner.Calls(), "conflict resolution only runs on EBUSY")
}

func TestApply_armsAndPetsImmediately(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.sv.apply(context.Background(), h.config()))

	require.Equal(t, 1, h.pets())
	require.Equal(t, codec.StateArmed, h.sv.status().State)
	require.Equal(t, h.devicePath, h.sv.status().DevicePath)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Armed))

	marker, err := os.ReadFile(h.markerPath)
	require.NoError(t, err)
	require.Equal(t, h.devicePath+"\n", string(marker))
}

func TestApply_disableClosesDeviceAndStopsPetting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.sv.apply(ctx, h.config()))
	f := h.devices.Last()

	cfg := h.config()
	cfg.Enabled = false
	require.NoError(t, h.sv.apply(ctx, cfg))

	require.True(t, f.Closed())
	require.Equal(t, "wV", f.Written())
	require.Equal(t, 0.0, testutil.ToFloat64(h.metrics.Armed))

	h.clock.Add(time.Second)
	h.sv.onTick(ctx)
	require.Equal(t, "wV", f.Written())
}

func TestApply_reconfigureReopensDevice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.sv.apply(ctx, h.config()))
	first := h.devices.Last()

	cfg := h.config()
	cfg.PingIntervalMs = 500
	require.NoError(t, h.sv.apply(ctx, cfg))

	require.True(t, first.Closed())
	require.NotSame(t, first, h.devices.Last())
	require.Equal(t, 2, h.devices.Opens())
	require.Equal(t, int64(500), h.sv.status().Config.PingIntervalMs)
}

func TestTick_petsWhileComponentsCheckIn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c, err := h.sv.Register("modem", time.Second)
	require.NoError(t, err)
	require.NoError(t, h.sv.apply(ctx, h.config()))

	for i := 0; i < 50; i++ {
		h.clock.Add(100 * time.Millisecond)
		h.sv.Checkin(c)
		h.sv.onTick(ctx)
	}

	require.Equal(t, 51, h.pets())
	require.Equal(t, codec.StateArmed, h.sv.status().State)
	require.Empty(t, h.runner.Calls())
	require.NoFileExists(t, h.causePath)
}

func TestTick_diskDriverScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := h.clock.Now()

	_, err := h.sv.Register("disk-driver", 2000*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, h.sv.apply(ctx, h.config()))

	detected := tickUntilTimedOut(t, h, 50)
	elapsed := detected.Sub(start)
	require.GreaterOrEqual(t, elapsed, 2000*time.Millisecond)
	require.LessOrEqual(t, elapsed, 2100*time.Millisecond)

	c, err := rebootcause.Read(h.causePath)
	require.NoError(t, err)
	require.Equal(t, "disk-driver", c.Component)

	require.Equal(t, []string{"sync", "reboot"}, h.runner.Calls())

	st := h.sv.status()
	require.Equal(t, codec.StateTimedOut, st.State)
	require.Equal(t, "disk-driver", st.TimedOutComponent)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ComponentTimeouts.WithLabelValues("disk-driver")))
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RebootAttempts.WithLabelValues(metrics.ResultOK)))

	// 宽限期结束前一直喂狗
	h.clock.Set(detected.Add(constants.GracePeriod - 100*time.Millisecond))
	before := h.pets()
	h.sv.onTick(ctx)
	require.Equal(t, before+1, h.pets())

	h.clock.Add(100 * time.Millisecond)
	h.sv.onTick(ctx)
	require.Equal(t, before+1, h.pets())
	require.Equal(t, codec.StateEscalated, h.sv.status().State)
}

func TestTick_graceBoundaryIsExact(t *testing.T) {
	grace := 3 * time.Second
	h := newHarness(t, WithGracePeriod(grace))
	ctx := context.Background()

	_, err := h.sv.Register("modem", 500*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, h.sv.apply(ctx, h.config()))

	detected := tickUntilTimedOut(t, h, 10)

	h.clock.Set(detected.Add(grace - time.Nanosecond))
	before := h.pets()
	h.sv.onTick(ctx)
	require.Equal(t, before+1, h.pets(), "last petted tick has elapsed < grace")

	h.clock.Set(detected.Add(grace))
	h.sv.onTick(ctx)
	require.Equal(t, before+1, h.pets(), "first skipped tick has elapsed == grace")

	for i := 0; i < 10; i++ {
		h.clock.Add(time.Second)
		h.sv.onTick(ctx)
	}
	require.Equal(t, before+1, h.pets())
}

func TestTick_rebootLaunchFailureCollapsesGrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runner.FailLaunch(executor.Command(constants.RebootCommand))

	_, err := h.sv.Register("cloud-connection", 300*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, h.sv.apply(ctx, h.config()))

	before := h.pets()
	tickUntilTimedOut(t, h, 10)
	afterDetection := h.pets()

	h.clock.Add(100 * time.Millisecond)
	h.sv.onTick(ctx)

	require.Equal(t, afterDetection, h.pets(), "no pet after a failed reboot launch")
	require.Equal(t, before+3, afterDetection, "only the healthy ticks were petted")
	require.Equal(t, codec.StateEscalated, h.sv.status().State)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RebootAttempts.WithLabelValues(metrics.ResultFailed)))

	c, err := rebootcause.Read(h.causePath)
	require.NoError(t, err)
	require.Equal(t, "cloud-connection", c.Component)
}

func TestTick_rebootNonZeroExitCollapsesGrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runner.Fail(executor.Command(constants.RebootCommand), errors.New("exit status 1"))

	_, err := h.sv.Register("modem", 300*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, h.sv.apply(ctx, h.config()))

	tickUntilTimedOut(t, h, 10)
	afterDetection := h.pets()

	h.clock.Add(100 * time.Millisecond)
	h.sv.onTick(ctx)

	require.Equal(t, afterDetection, h.pets())
	require.Equal(t, codec.StateEscalated, h.sv.status().State)
}

func TestTick_syncFailureDoesNotBlockReboot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runner.FailLaunch(executor.Command(constants.SyncCommand))

	_, err := h.sv.Register("modem", 200*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, h.sv.apply(ctx, h.config()))

	tickUntilTimedOut(t, h, 10)

	require.Equal(t, []string{"sync", "reboot"}, h.runner.Calls())
	require.Equal(t, codec.StateTimedOut, h.sv.status().State)
}

func TestTick_timeoutHandledOncePerArmCycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.sv.Register("a", 200*time.Millisecond)
	require.NoError(t, err)
	_, err = h.sv.Register("b", 400*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, h.sv.apply(ctx, h.config()))

	tickUntilTimedOut(t, h, 10)

	for i := 0; i < 20; i++ {
		h.clock.Add(100 * time.Millisecond)
		h.sv.onTick(ctx)
	}

	require.Equal(t, []string{"sync", "reboot"}, h.runner.Calls())
	require.Equal(t, "a", h.sv.status().TimedOutComponent)

	c, err := rebootcause.Read(h.causePath)
	require.NoError(t, err)
	require.Equal(t, "a", c.Component)
}

func TestApply_reloadResetsTimeout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runner.FailLaunch(executor.Command(constants.RebootCommand))

	c, err := h.sv.Register("modem", 200*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, h.sv.apply(ctx, h.config()))

	tickUntilTimedOut(t, h, 10)
	require.Equal(t, codec.StateEscalated, h.sv.status().State)

	h.sv.Checkin(c)
	require.NoError(t, h.sv.apply(ctx, h.config()))

	st := h.sv.status()
	require.Equal(t, codec.StateArmed, st.State)
	require.Empty(t, st.TimedOutComponent)
	require.Equal(t, 1, h.pets())
}

func TestTick_petFailureKeepsLoopRunning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.sv.apply(ctx, h.config()))
	f := h.devices.Last()

	f.SetWriteErr(errors.New("input/output error"))
	h.clock.Add(100 * time.Millisecond)
	h.sv.onTick(ctx)

	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PetFailures))
	require.Equal(t, codec.StateArmed, h.sv.status().State)

	f.SetWriteErr(nil)
	h.clock.Add(100 * time.Millisecond)
	h.sv.onTick(ctx)

	require.Equal(t, 2, h.pets())
	require.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Pets))
}

func TestShutdown_disablesDevice(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.sv.apply(context.Background(), h.config()))
	f := h.devices.Last()

	h.sv.Shutdown()
	h.sv.Shutdown()

	require.True(t, f.Closed())
	assert.Equal(t, "wV", f.Written())
}
