//go:build linux

package cann

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCPUAffinity(t *testing.T) {

	cores, err := GetCPUAffinity()
	require.NoError(t, err)
	assert.NotEmpty(t, cores)
}

func TestPinnedStreamWorker(t *testing.T) {

	cores, err := GetCPUAffinity()
	require.NoError(t, err)

	ctx := newTestContext(t, func(c *Config) {
		c.CPUAffinity = cores[:1]
	})

	s, err := ctx.NewStream()
	require.NoError(t, err)
	defer s.Destroy()

	var pinned atomic.Value

	require.NoError(t, s.Launch("affinity", func() error {
		got, err := GetCPUAffinity()

		if err != nil {
			return err
		}

		pinned.Store(got)
		return nil
	}))

	require.NoError(t, s.WaitForCompletion())
	assert.Equal(t, cores[:1], pinned.Load())
}

func TestSetCPUAffinity(t *testing.T) {

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	before, err := GetCPUAffinity()
	require.NoError(t, err)

	// restore the thread before it is returned to the scheduler
	defer SetCPUAffinity(before)

	require.NoError(t, SetCPUAffinity(before[:1]))

	after, err := GetCPUAffinity()
	require.NoError(t, err)
	assert.Equal(t, before[:1], after)
}

func TestSetCPUAffinityOutOfRange(t *testing.T) {

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	before, err := GetCPUAffinity()
	require.NoError(t, err)

	for _, cores := range [][]int{{-64}, {-1}, {MaxCPUCores}} {
		assert.Error(t, SetCPUAffinity(cores), "cores %v", cores)
	}

	after, err := GetCPUAffinity()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
