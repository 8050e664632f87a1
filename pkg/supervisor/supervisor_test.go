package supervisor

import (
	"context"
	"testing"
	"time"

	"watchdogd/pkg/codec"

	"github.com/stretchr/testify/require"
)

func TestSupervisor_workerDrivesStateMachine(t *testing.T) {
	h := newRunningHarness(t, WithGracePeriod(time.Second))
	ctx := context.Background()

	_, err := h.sv.Register("disk-driver", 500*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, h.sv.ApplyConfiguration(ctx, h.config()))

	st, err := h.sv.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, codec.StateArmed, st.State)
	require.Equal(t, 1, st.Registered)

	require.Eventually(t, func() bool {
		h.clock.Add(100 * time.Millisecond)

		st, err := h.sv.Status(ctx)
		return err == nil && st.State == codec.StateTimedOut
	}, testTimeout, testTick)

	require.Eventually(t, func() bool {
		h.clock.Add(100 * time.Millisecond)

		st, err := h.sv.Status(ctx)
		return err == nil && st.State == codec.StateEscalated
	}, testTimeout, testTick)

	require.Equal(t, []string{"sync", "reboot"}, h.runner.Calls())

	f := h.devices.Last()
	h.sv.Shutdown()

	require.True(t, f.Closed())
	require.Equal(t, byte('V'), f.Written()[len(f.Written())-1])

	select {
	case <-h.sv.Done():
	default:
		require.FailNow(t, "worker still running after Shutdown")
	}
}

func TestSupervisor_operationsAfterShutdown(t *testing.T) {
	h := newRunningHarness(t)
	h.sv.Shutdown()

	err := h.sv.ApplyConfiguration(context.Background(), h.config())
	require.ErrorIs(t, err, ErrStopped)

	_, err = h.sv.Status(context.Background())
	require.ErrorIs(t, err, ErrStopped)

	// 注册表不依赖工作协程
	c, err := h.sv.Register("modem", time.Second)
	require.NoError(t, err)
	h.sv.Checkin(c)
	h.sv.Unregister(c)
	h.sv.Checkin(c)
	require.Empty(t, h.sv.ListRegistered())
}

func TestSupervisor_duplicateAddIgnored(t *testing.T) {
	h := newHarness(t)

	c, err := h.sv.Register("modem", time.Second)
	require.NoError(t, err)

	require.False(t, h.sv.Add(c))
	require.Len(t, h.sv.ListRegistered(), 1)

	h.sv.Unregister(c)
	h.sv.Unregister(c)
	require.Empty(t, h.sv.ListRegistered())

	require.True(t, h.sv.Add(c))
	require.Len(t, h.sv.ListRegistered(), 1)
}

func TestSupervisor_statusContextCancelled(t *testing.T) {
	h := newHarness(t)

	// 工作协程没有启动，任务永远不会被执行
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.sv.Status(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
