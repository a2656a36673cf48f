package imgio

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-cann"
	"golang.org/x/image/bmp"
)

func newTestContext(t *testing.T) *cann.Context {
	t.Helper()

	cfg := cann.DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, err := cann.NewContext(cfg)
	require.NoError(t, err)
	require.NoError(t, ctx.Init())

	t.Cleanup(func() { ctx.Finalize() })

	return ctx
}

// testImage returns an opaque gradient
func testImage(w, h int) *image.RGBA {

	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 40), B: uint8(x*y + 5), A: 255})
		}
	}

	return img
}

func TestDecodeToBGR(t *testing.T) {

	ctx := newTestContext(t)
	src := testImage(8, 6)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	m, format, err := Decode(ctx, &buf)
	require.NoError(t, err)
	defer m.Release()

	assert.Equal(t, "png", format)
	assert.Equal(t, []int{6, 8, 3}, m.Shape())
	assert.Equal(t, cann.TypeU8C3, m.Type())

	host, err := m.Download()
	require.NoError(t, err)
	defer host.Close()

	for _, p := range []image.Point{{0, 0}, {3, 2}, {7, 5}} {
		want := src.RGBAAt(p.X, p.Y)
		px := host.GetVecbAt(p.Y, p.X)

		assert.Equal(t, []uint8{want.B, want.G, want.R}, []uint8{px[0], px[1], px[2]}, "pixel %v", p)
	}
}

func TestEncodeRoundTrip(t *testing.T) {

	ctx := newTestContext(t)
	src := testImage(10, 7)

	var in bytes.Buffer
	require.NoError(t, bmp.Encode(&in, src))

	m, format, err := Decode(ctx, &in)
	require.NoError(t, err)
	defer m.Release()
	assert.Equal(t, "bmp", format)

	for _, f := range []Format{PNG, BMP, TIFF} {
		t.Run(string(f), func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, Encode(ctx, &out, m, f))

			img, _, err := image.Decode(&out)
			require.NoError(t, err)

			got := image.NewRGBA(img.Bounds())

			for y := 0; y < 7; y++ {
				for x := 0; x < 10; x++ {
					got.Set(x, y, img.At(x, y))
				}
			}

			assert.Equal(t, src.Pix, got.Pix)
		})
	}

	var jpg bytes.Buffer
	require.NoError(t, Encode(ctx, &jpg, m, JPEG))

	cfg, format, err := image.DecodeConfig(&jpg)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 10, cfg.Width)

	assert.Error(t, Encode(ctx, &jpg, m, Format("gif")))
}

func TestEncodeGray(t *testing.T) {

	ctx := newTestContext(t)

	m, err := ctx.NewNpuMatWithScalar(3, 4, cann.TypeU8C1, cann.NewScalar(77))
	require.NoError(t, err)
	defer m.Release()

	img, err := ToImage(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{77, 77, 77, 255}, img.RGBAAt(2, 1))

	f32, err := ctx.NewNpuMatWithSize(3, 4, cann.TypeF32C1)
	require.NoError(t, err)
	defer f32.Release()

	_, err = ToImage(ctx, f32)
	assert.ErrorIs(t, err, cann.ErrDtypeMismatch)
}

func TestReadWrite(t *testing.T) {

	ctx := newTestContext(t)
	path := filepath.Join(t.TempDir(), "out.png")

	m, err := ctx.NewNpuMatWithScalar(5, 5, cann.TypeU8C3, cann.NewScalar(10, 20, 30))
	require.NoError(t, err)
	defer m.Release()

	require.NoError(t, Write(ctx, path, m))

	back, err := Read(ctx, path)
	require.NoError(t, err)
	defer back.Release()

	want, err := m.Download()
	require.NoError(t, err)
	defer want.Close()

	got, err := back.Download()
	require.NoError(t, err)
	defer got.Close()

	assert.Equal(t, want.ToBytes(), got.ToBytes())

	_, err = Read(ctx, filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	assert.Error(t, Write(ctx, filepath.Join(t.TempDir(), "out.xyz"), m))
}

func TestFormatFromPath(t *testing.T) {

	tests := []struct {
		path string
		want Format
		ok   bool
	}{
		{"a.png", PNG, true},
		{"b.JPG", JPEG, true},
		{"c.jpeg", JPEG, true},
		{"dir/d.bmp", BMP, true},
		{"e.tif", TIFF, true},
		{"f.tiff", TIFF, true},
		{"g.webp", "", false},
		{"noext", "", false},
	}

	for _, tc := range tests {
		got, err := FormatFromPath(tc.path)

		if tc.ok {
			assert.NoError(t, err, tc.path)
			assert.Equal(t, tc.want, got, tc.path)
		} else {
			assert.Error(t, err, tc.path)
		}
	}
}
