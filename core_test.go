package cann

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestFlip(t *testing.T) {

	ctx := newTestContext(t)

	host := randomMat(t, 7, 10, TypeU8C3, 0, 256)
	src := upload(t, ctx, host)

	for _, code := range []FlipCode{FlipVertical, FlipHorizontal, FlipBoth} {
		got, err := ctx.Flip(src, code)
		require.NoError(t, err)
		defer got.Release()

		want := newHost(t)
		gocv.Flip(host, &want, int(code))

		requireMatEqual(t, want, download(t, got))

		// flipping twice restores the input
		back, err := ctx.Flip(got, code)
		require.NoError(t, err)
		defer back.Release()

		requireMatEqual(t, host, download(t, back))
	}

	// in place
	_, err := ctx.Flip(src, FlipHorizontal, WithDst(src))
	require.NoError(t, err)

	want := newHost(t)
	gocv.Flip(host, &want, 1)
	requireMatEqual(t, want, download(t, src))
}

func TestRotate(t *testing.T) {

	ctx := newTestContext(t)

	host := randomMat(t, 5, 8, TypeF32C1, -1, 1)
	src := upload(t, ctx, host)

	refCodes := map[RotateCode]gocv.RotateFlag{
		Rotate90Clockwise:        gocv.Rotate90Clockwise,
		Rotate180Clockwise:       gocv.Rotate180Clockwise,
		Rotate90CounterClockwise: gocv.Rotate90CounterClockwise,
	}

	for code, ref := range refCodes {
		got, err := ctx.Rotate(src, code)
		require.NoError(t, err)
		defer got.Release()

		want := newHost(t)
		gocv.Rotate(host, &want, ref)

		requireMatEqual(t, want, download(t, got))
	}

	// four quarter turns restore the input
	cur, err := src.Clone()
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		next, err := ctx.Rotate(cur, Rotate90Clockwise)
		require.NoError(t, err)
		cur.Release()
		cur = next
	}

	defer cur.Release()
	requireMatEqual(t, host, download(t, cur))

	_, err = ctx.Rotate(src, RotateCode(3))
	assert.ErrorIs(t, err, ErrUnsupported)

	// a non square array can not be rotated into itself
	_, err = ctx.Rotate(src, Rotate90Clockwise, WithDst(src))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestTranspose(t *testing.T) {

	ctx := newTestContext(t)

	host := randomMat(t, 6, 9, TypeU16C3, 0, 65536)
	src := upload(t, ctx, host)

	got, err := ctx.Transpose(src)
	require.NoError(t, err)
	defer got.Release()

	want := newHost(t)
	gocv.Transpose(host, &want)

	assert.Equal(t, []int{9, 6, 3}, got.Shape())
	requireMatEqual(t, want, download(t, got))

	square := upload(t, ctx, randomMat(t, 5, 5, TypeU8C1, 0, 256))
	before := hostClone(t, download(t, square))

	_, err = ctx.Transpose(square, WithDst(square))
	require.NoError(t, err)

	gocv.Transpose(before, &want)
	requireMatEqual(t, want, download(t, square))
}

func TestSplitMerge(t *testing.T) {

	ctx := newTestContext(t)

	host := randomMat(t, 8, 6, TypeS16C3, -500, 500)
	src := upload(t, ctx, host)

	planes, err := ctx.Split(src)
	require.NoError(t, err)
	require.Len(t, planes, 3)

	refPlanes := gocv.Split(host)

	for i := range planes {
		defer planes[i].Release()
		defer refPlanes[i].Close()

		assert.Equal(t, MakeType(DepthS16, 1), planes[i].Type())
		requireMatEqual(t, refPlanes[i], download(t, planes[i]))
	}

	merged, err := ctx.Merge(planes)
	require.NoError(t, err)
	defer merged.Release()

	requireMatEqual(t, host, download(t, merged))

	// a single channel and a pair merge into three channels
	pair, err := ctx.Merge(planes[1:])
	require.NoError(t, err)
	defer pair.Release()

	mixed, err := ctx.Merge([]*NpuMat{planes[0], pair})
	require.NoError(t, err)
	defer mixed.Release()

	requireMatEqual(t, host, download(t, mixed))

	ref := newHost(t)
	gocv.Merge(refPlanes, &ref)
	requireMatEqual(t, ref, download(t, merged))
}

func TestMergeValidation(t *testing.T) {

	ctx := newTestContext(t)

	a, err := ctx.NewNpuMatWithSize(4, 4, TypeU8C3)
	require.NoError(t, err)
	defer a.Release()

	b, err := ctx.NewNpuMatWithSize(4, 4, TypeU8C1)
	require.NoError(t, err)
	defer b.Release()

	c, err := ctx.NewNpuMatWithSize(4, 5, TypeU8C1)
	require.NoError(t, err)
	defer c.Release()

	f, err := ctx.NewNpuMatWithSize(4, 4, TypeF32C1)
	require.NoError(t, err)
	defer f.Release()

	_, err = ctx.Merge(nil)
	assert.ErrorIs(t, err, ErrUninitialized)

	_, err = ctx.Merge([]*NpuMat{a, b, b})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = ctx.Merge([]*NpuMat{b, c})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = ctx.Merge([]*NpuMat{b, f})
	assert.ErrorIs(t, err, ErrDtypeMismatch)

	// the destination can not also be an input
	_, err = ctx.Merge([]*NpuMat{b}, WithDst(b))
	assert.ErrorIs(t, err, ErrDeviceOperationFailed)

	_, err = ctx.Merge([]*NpuMat{b, b}, WithDst(b))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	// the caller's slice is not modified
	srcs := make([]*NpuMat, 1, 4)
	srcs[0] = b

	out, err := ctx.Merge(srcs)
	require.NoError(t, err)
	defer out.Release()

	assert.Nil(t, srcs[:2][1])
}
