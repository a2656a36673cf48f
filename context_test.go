package cann

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLifecycle(t *testing.T) {

	cfg := DefaultConfig()
	cfg.DeviceCount = 2
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, err := NewContext(cfg)
	require.NoError(t, err)

	// nothing works before Init
	_, err = ctx.GetDevice()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, ctx.SetDevice(0), ErrNotInitialized)
	assert.ErrorIs(t, ctx.Finalize(), ErrNotInitialized)

	_, err = ctx.NewNpuMat()
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, ctx.Init())
	assert.ErrorIs(t, ctx.Init(), ErrAlreadyInitialized)

	id, err := ctx.GetDevice()
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	require.NoError(t, ctx.SetDevice(1))

	id, err = ctx.GetDevice()
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	assert.ErrorIs(t, ctx.SetDevice(2), ErrInvalidDevice)
	assert.ErrorIs(t, ctx.SetDevice(-1), ErrInvalidDevice)

	require.NoError(t, ctx.Finalize())

	_, err = ctx.GetDevice()
	assert.ErrorIs(t, err, ErrContextFinalized)
	assert.ErrorIs(t, ctx.Finalize(), ErrNotInitialized)
}

func TestContextInvalidConfig(t *testing.T) {

	cfg := DefaultConfig()
	cfg.DeviceCount = -1

	_, err := NewContext(cfg)
	assert.Error(t, err)
}

func TestHandlesAfterFinalize(t *testing.T) {

	ctx := newTestContext(t)

	m, err := ctx.NewNpuMatWithScalar(2, 2, TypeU8C1, NewScalar(7))
	require.NoError(t, err)

	s, err := ctx.NewStream()
	require.NoError(t, err)

	e, err := ctx.NewEvent()
	require.NoError(t, err)

	require.NoError(t, ctx.Finalize())

	_, err = m.Download()
	assert.ErrorIs(t, err, ErrContextFinalized)

	_, err = ctx.AddScalar(m, NewScalar(1))
	assert.ErrorIs(t, err, ErrContextFinalized)

	assert.ErrorIs(t, s.Launch("noop", func() error { return nil }), ErrContextFinalized)
	assert.ErrorIs(t, s.WaitForCompletion(), ErrContextFinalized)
	assert.ErrorIs(t, e.Record(s), ErrContextFinalized)

	// releasing after finalize is allowed
	m.Release()

	// a new init window does not revive old handles
	require.NoError(t, ctx.Init())

	assert.ErrorIs(t, m.Create(2, 2, TypeU8C1), ErrContextFinalized)
	assert.ErrorIs(t, s.Launch("noop", func() error { return nil }), ErrContextFinalized)

	fresh, err := ctx.NewNpuMatWithScalar(2, 2, TypeU8C1, NewScalar(3))
	require.NoError(t, err)

	host := download(t, fresh)
	assert.Equal(t, []byte{3, 3, 3, 3}, host.ToBytes())

	fresh.Release()
}

func TestResetDevice(t *testing.T) {

	ctx := newTestContext(t)

	null, err := ctx.NullStream()
	require.NoError(t, err)

	s, err := ctx.NewStream()
	require.NoError(t, err)

	m, err := ctx.NewNpuMatWithScalar(8, 8, TypeU8C3, NewScalar(1, 2, 3))
	require.NoError(t, err)
	m.Release()

	inf, err := ctx.Device(0)
	require.NoError(t, err)
	assert.NotZero(t, inf.Memory.Cached)

	require.NoError(t, ctx.ResetDevice())
	require.NoError(t, ctx.ResetDevice())

	inf, err = ctx.Device(0)
	require.NoError(t, err)
	assert.Zero(t, inf.Memory.Cached)

	// streams survive a reset with the same handles
	require.NoError(t, s.Launch("noop", func() error { return nil }))
	require.NoError(t, s.WaitForCompletion())

	require.NoError(t, null.Launch("noop", func() error { return nil }))

	again, err := ctx.NullStream()
	require.NoError(t, err)
	assert.Equal(t, null.ID(), again.ID())
	assert.True(t, again.IsNull())

	require.NoError(t, s.Destroy())
}

func TestResetDeviceReportsPendingFailures(t *testing.T) {

	ctx := newTestContext(t)

	s, err := ctx.NewStream()
	require.NoError(t, err)
	defer s.Destroy()

	require.NoError(t, s.Launch("fail", func() error { return errors.New("kernel fault") }))

	err = ctx.ResetDevice()
	assert.ErrorIs(t, err, ErrDeviceOperationFailed)

	// the reset drained the failure
	assert.NoError(t, s.WaitForCompletion())
}

func TestDeviceInfo(t *testing.T) {

	ctx := newTestContext(t, func(c *Config) {
		c.MemoryLimit = 1 << 20
	})

	assert.Equal(t, 2, ctx.DeviceCount())

	inf, err := ctx.Device(1)
	require.NoError(t, err)
	assert.Equal(t, 1, inf.ID)
	assert.Equal(t, "soft-npu-1", inf.Name)
	assert.Equal(t, int64(1<<20), inf.Memory.Limit)

	_, err = ctx.Device(5)
	assert.ErrorIs(t, err, ErrInvalidDevice)
}

func TestArraysFollowActiveDevice(t *testing.T) {

	ctx := newTestContext(t)

	a, err := ctx.NewNpuMatWithScalar(2, 2, TypeU8C1, NewScalar(1))
	require.NoError(t, err)
	defer a.Release()

	require.NoError(t, ctx.SetDevice(1))

	b, err := ctx.NewNpuMatWithScalar(2, 2, TypeU8C1, NewScalar(1))
	require.NoError(t, err)
	defer b.Release()

	assert.Equal(t, 0, a.DeviceID())
	assert.Equal(t, 1, b.DeviceID())

	// operands must be resident on the same device
	_, err = ctx.Add(a, b)
	assert.ErrorIs(t, err, ErrInvalidDevice)

	// a stream on device 1 can not run work on device 0 arrays
	s, err := ctx.NewStream()
	require.NoError(t, err)

	_, err = ctx.AddScalar(a, NewScalar(1), WithStream(s))
	assert.ErrorIs(t, err, ErrInvalidDevice)
}

func TestQuery(t *testing.T) {

	ctx := newTestContext(t)

	var buf bytes.Buffer
	require.NoError(t, ctx.Query(&buf))

	out := buf.String()
	assert.Contains(t, out, "Device Count: 2, Active Device: 0")
	assert.Contains(t, out, "id=0, name=soft-npu-0")
	assert.Contains(t, out, "id=1, name=soft-npu-1")
	assert.Contains(t, out, "limit=unlimited")

	require.NoError(t, ctx.Finalize())
	assert.ErrorIs(t, ctx.Query(&buf), ErrContextFinalized)
}
