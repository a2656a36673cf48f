package cann

import (
	"io"
	"log/slog"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"
)

func TestMain(m *testing.M) {
	// random host mats are reproducible between runs
	gocv.SetRNGSeed(12345)
	os.Exit(m.Run())
}

// newTestContext returns an initialized two device context that is
// finalized when the test ends
func newTestContext(t *testing.T, opts ...func(*Config)) *Context {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DeviceCount = 2
	cfg.Workers = 4
	cfg.QueueDepth = 16
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, err := NewContext(cfg)
	require.NoError(t, err)
	require.NoError(t, ctx.Init())

	t.Cleanup(func() {
		// tests may have finalized already
		_ = ctx.Finalize()
	})

	return ctx
}

// randomMat returns a host mat filled with uniform values in [lo, hi)
func randomMat(t *testing.T, rows, cols int, typ MatType, lo, hi float64) gocv.Mat {
	t.Helper()

	m := gocv.NewMatWithSize(rows, cols, typ.Gocv())
	gocv.RandU(&m, gocv.NewScalar(lo, lo, lo, lo), gocv.NewScalar(hi, hi, hi, hi))
	t.Cleanup(func() { m.Close() })

	return m
}

// hostFromBytes returns a host mat holding a copy of data
func hostFromBytes(t *testing.T, rows, cols int, typ MatType, data []byte) gocv.Mat {
	t.Helper()

	m := gocv.NewMatWithSize(rows, cols, typ.Gocv())
	ptr, err := m.DataPtrUint8()
	require.NoError(t, err)
	require.Len(t, ptr, len(data))
	copy(ptr, data)
	t.Cleanup(func() { m.Close() })

	return m
}

// upload copies the host mat to a new array on the active device
func upload(t *testing.T, ctx *Context, host gocv.Mat) *NpuMat {
	t.Helper()

	m, err := ctx.NewNpuMat()
	require.NoError(t, err)
	require.NoError(t, m.Upload(host))
	t.Cleanup(m.Release)

	return m
}

// download copies the array to a host mat closed when the test ends
func download(t *testing.T, m *NpuMat, opts ...Option) gocv.Mat {
	t.Helper()

	host, err := m.Download(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { host.Close() })

	return host
}

// hostClone returns a clone of a host mat closed when the test ends
func hostClone(t *testing.T, m gocv.Mat) gocv.Mat {
	t.Helper()

	c := m.Clone()
	t.Cleanup(func() { c.Close() })

	return c
}

// newHost returns an empty host mat closed when the test ends
func newHost(t *testing.T) gocv.Mat {
	t.Helper()

	m := gocv.NewMat()
	t.Cleanup(func() { m.Close() })

	return m
}

// requireMatEqual checks two host mats have the same geometry and bytes
func requireMatEqual(t *testing.T, want, got gocv.Mat) {
	t.Helper()

	require.Equal(t, want.Rows(), got.Rows(), "rows")
	require.Equal(t, want.Cols(), got.Cols(), "cols")
	require.Equal(t, TypeFromGocv(want.Type()).String(), TypeFromGocv(got.Type()).String(), "type")
	require.Equal(t, hostBytes(want), hostBytes(got))
}

// hostValues returns the elements of a host mat as float64
func hostValues(t *testing.T, m gocv.Mat) []float64 {
	t.Helper()

	f := gocv.NewMat()
	defer f.Close()

	m.ConvertTo(&f, gocv.MatTypeCV64F)

	if !f.IsContinuous() {
		tmp := f.Clone()
		defer tmp.Close()
		f, tmp = tmp, f
	}

	vals, err := f.DataPtrFloat64()
	require.NoError(t, err)

	out := make([]float64, len(vals))
	copy(out, vals)

	return out
}

// requireMatNear checks two host mats have the same geometry and elements
// within tol of each other
func requireMatNear(t *testing.T, want, got gocv.Mat, tol float64) {
	t.Helper()

	require.Equal(t, want.Rows(), got.Rows(), "rows")
	require.Equal(t, want.Cols(), got.Cols(), "cols")
	require.Equal(t, want.Channels(), got.Channels(), "channels")

	a, b := hostValues(t, want), hostValues(t, got)
	require.Len(t, b, len(a))

	dist := floats.Distance(a, b, math.Inf(1))
	require.LessOrEqualf(t, dist, tol, "max element difference %v exceeds %v", dist, tol)
}
