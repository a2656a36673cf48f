package cann

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"
)

func TestSaturate(t *testing.T) {

	tests := []struct {
		name  string
		depth Depth
		in    float64
		want  float64
	}{
		{"u8 overflow", DepthU8, 300, 255},
		{"u8 underflow", DepthU8, -4, 0},
		{"u8 half to even down", DepthU8, 2.5, 2},
		{"u8 half to even up", DepthU8, 3.5, 4},
		{"s8 range", DepthS8, -200, -128},
		{"u16 overflow", DepthU16, 70000, 65535},
		{"s16 negative", DepthS16, -40000, -32768},
		{"s32 overflow", DepthS32, 1e12, math.MaxInt32},
		{"nan integral", DepthS16, math.NaN(), 0},
		{"f32 unchanged", DepthF32, 1e12, 1e12},
		{"f64 unchanged", DepthF64, -0.25, -0.25},
	}

	for _, tt := range tests {
		if got := saturate(tt.depth, tt.in); got != tt.want {
			t.Errorf("%s: saturate(%s, %v) = %v, want %v", tt.name, tt.depth, tt.in, got, tt.want)
		}
	}
}

func TestStoreLoadElem(t *testing.T) {

	tests := []struct {
		depth Depth
		in    float64
		want  float64
	}{
		{DepthU8, 200, 200},
		{DepthS8, -7, -7},
		{DepthU16, 40000, 40000},
		{DepthS16, -1234, -1234},
		{DepthS32, -70000, -70000},
		{DepthF32, 0.5, 0.5},
		{DepthF64, 1.0 / 3, 1.0 / 3},
		{DepthF16, 1.5, 1.5},
		{DepthU8, 256, 255},
	}

	for _, tt := range tests {
		// write to the second element so offsets are exercised
		buf := make([]byte, 2*tt.depth.Size())
		storeElem(tt.depth, buf, 1, tt.in)

		if got := loadElem(tt.depth, buf, 1); got != tt.want {
			t.Errorf("%s: stored %v, loaded %v, want %v", tt.depth, tt.in, got, tt.want)
		}

		for i := 0; i < tt.depth.Size(); i++ {
			if buf[i] != 0 {
				t.Errorf("%s: element 0 was written", tt.depth)
				break
			}
		}
	}
}

func TestFloat16Conversion(t *testing.T) {

	tests := []struct {
		bits uint16
		want float64
	}{
		{0x0000, 0},
		{0x3c00, 1},
		{0xc000, -2},
		{0x3800, 0.5},
		{0x7bff, 65504},
	}

	for _, tt := range tests {
		if got := f16ToFloat(tt.bits); got != tt.want {
			t.Errorf("f16ToFloat(%#04x) = %v, want %v", tt.bits, got, tt.want)
		}

		if got := floatToF16(tt.want); got != tt.bits {
			t.Errorf("floatToF16(%v) = %#04x, want %#04x", tt.want, got, tt.bits)
		}
	}

	if !math.IsInf(f16ToFloat(floatToF16(1e6)), 1) {
		t.Errorf("values beyond the half range should become +Inf")
	}
}

func TestEncodePixel(t *testing.T) {

	px := encodePixel(MakeType(DepthS16, 3), NewScalar(1, -2, 40000, 9))

	if len(px) != 6 {
		t.Fatalf("pixel is %d bytes, want 6", len(px))
	}

	want := []float64{1, -2, 32767}

	for ch, w := range want {
		if got := loadElem(DepthS16, px, ch); got != w {
			t.Errorf("channel %d = %v, want %v", ch, got, w)
		}
	}
}

func TestParallel(t *testing.T) {

	for _, workers := range []int{1, 3, 8} {
		ctx := &Context{cfg: Config{Workers: workers}}

		var rows atomic.Int64

		err := ctx.parallel(17, func(y int) error {
			rows.Add(int64(y + 1))
			return nil
		})

		if err != nil {
			t.Errorf("workers %d: unexpected error %v", workers, err)
		}

		// sum of 1..17 shows every row ran exactly once
		if got := rows.Load(); got != 153 {
			t.Errorf("workers %d: row sum %d, want 153", workers, got)
		}

		boom := errors.New("boom")

		err = ctx.parallel(17, func(y int) error {
			if y == 11 {
				return boom
			}
			return nil
		})

		if !errors.Is(err, boom) {
			t.Errorf("workers %d: got error %v, want %v", workers, err, boom)
		}
	}
}
