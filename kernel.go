package cann

import (
	"encoding/binary"
	"fmt"
	"math"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// view is the geometry and device memory of an array captured when an
// operation is enqueued.  Kernels only ever see views, never NpuMat, so
// host side changes to an array do not race with queued work.
type view struct {
	rows int
	cols int
	typ  MatType
	data []byte
}

// step returns the number of bytes in a row
func (v view) step() int {
	return v.cols * v.typ.ElemSize()
}

// elems returns the number of scalar elements, ie: pixels by channels
func (v view) elems() int {
	return v.rows * v.cols * v.typ.Channels()
}

// pixel returns the bytes of the pixel at x, y
func (v view) pixel(x, y int) []byte {
	es := v.typ.ElemSize()
	off := (y*v.cols + x) * es
	return v.data[off : off+es]
}

// row returns the bytes of row y
func (v view) row(y int) []byte {
	st := v.step()
	return v.data[y*st : (y+1)*st]
}

// loadElem reads element i of a buffer of depth d as float64
func loadElem(d Depth, b []byte, i int) float64 {
	switch d {
	case DepthU8:
		return float64(b[i])
	case DepthS8:
		return float64(int8(b[i]))
	case DepthU16:
		return float64(binary.NativeEndian.Uint16(b[i*2:]))
	case DepthS16:
		return float64(int16(binary.NativeEndian.Uint16(b[i*2:])))
	case DepthS32:
		return float64(int32(binary.NativeEndian.Uint32(b[i*4:])))
	case DepthF32:
		return float64(math.Float32frombits(binary.NativeEndian.Uint32(b[i*4:])))
	case DepthF64:
		return math.Float64frombits(binary.NativeEndian.Uint64(b[i*8:]))
	case DepthF16:
		return f16ToFloat(binary.NativeEndian.Uint16(b[i*2:]))
	}

	return 0
}

// storeElem writes v to element i of a buffer of depth d with a saturating
// cast
func storeElem(d Depth, b []byte, i int, v float64) {

	v = saturate(d, v)

	switch d {
	case DepthU8:
		b[i] = uint8(v)
	case DepthS8:
		b[i] = uint8(int8(v))
	case DepthU16:
		binary.NativeEndian.PutUint16(b[i*2:], uint16(v))
	case DepthS16:
		binary.NativeEndian.PutUint16(b[i*2:], uint16(int16(v)))
	case DepthS32:
		binary.NativeEndian.PutUint32(b[i*4:], uint32(int32(v)))
	case DepthF32:
		binary.NativeEndian.PutUint32(b[i*4:], math.Float32bits(float32(v)))
	case DepthF64:
		binary.NativeEndian.PutUint64(b[i*8:], math.Float64bits(v))
	case DepthF16:
		binary.NativeEndian.PutUint16(b[i*2:], floatToF16(v))
	}
}

// saturate rounds v half to even and clamps it to the range of an integral
// depth, NaN becomes 0.  Float depths are returned unchanged.
func saturate(d Depth, v float64) float64 {

	if !d.IsIntegral() {
		return v
	}

	if math.IsNaN(v) {
		return 0
	}

	lo, hi := d.Range()
	v = math.RoundToEven(v)

	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}

// encodePixel returns the bytes of a pixel of type t holding the scalar
func encodePixel(t MatType, s Scalar) []byte {

	cn := t.Channels()
	px := make([]byte, t.ElemSize())

	for ch := 0; ch < cn; ch++ {
		storeElem(t.Depth(), px, ch, s[ch])
	}

	return px
}

// parallel runs fn for every row, fanned out over the configured number of
// workers
func (c *Context) parallel(rows int, fn func(y int) error) error {

	workers := c.cfg.Workers

	if workers <= 1 || rows <= 1 {
		for y := 0; y < rows; y++ {
			if err := fn(y); err != nil {
				return err
			}
		}

		return nil
	}

	chunk := (rows + workers - 1) / workers

	var g errgroup.Group
	g.SetLimit(workers)

	for start := 0; start < rows; start += chunk {
		end := min(start+chunk, rows)

		g.Go(func() error {
			for y := start; y < end; y++ {
				if err := fn(y); err != nil {
					return err
				}
			}

			return nil
		})
	}

	return g.Wait()
}

// elemFunc computes an output element from input elements a and b of
// channel ch
type elemFunc func(ch int, a, b float64) float64

// elementwise applies f to every element of a, and b when present, writing
// dst.  Pixels outside the mask are left untouched, or zeroed when dst was
// freshly allocated.
func (c *Context) elementwise(dst, a view, b *view, mask *view, fresh bool, f elemFunc) error {

	cn := dst.typ.Channels()
	ad, dd := a.typ.Depth(), dst.typ.Depth()

	var bd Depth

	if b != nil {
		bd = b.typ.Depth()
	}

	return c.parallel(dst.rows, func(y int) error {
		for x := 0; x < dst.cols; x++ {
			p := y*dst.cols + x

			if mask != nil && mask.data[p] == 0 {
				if fresh {
					clear(dst.pixel(x, y))
				}

				continue
			}

			for ch := 0; ch < cn; ch++ {
				i := p*cn + ch
				av := loadElem(ad, a.data, i)

				var bv float64

				if b != nil {
					bv = loadElem(bd, b.data, i)
				}

				storeElem(dd, dst.data, i, f(ch, av, bv))
			}
		}

		return nil
	})
}

// bytewise applies f to every byte of the integral arrays a, and b when
// present, under the same mask rules as elementwise
func (c *Context) bytewise(dst, a view, b *view, mask *view, fresh bool, f func(a, b byte) byte) error {

	es := dst.typ.ElemSize()

	return c.parallel(dst.rows, func(y int) error {
		for x := 0; x < dst.cols; x++ {
			p := y*dst.cols + x

			if mask != nil && mask.data[p] == 0 {
				if fresh {
					clear(dst.pixel(x, y))
				}

				continue
			}

			for k := p * es; k < (p+1)*es; k++ {
				var bv byte

				if b != nil {
					bv = b.data[k]
				}

				dst.data[k] = f(a.data[k], bv)
			}
		}

		return nil
	})
}

// hostMat copies a view into a new gocv.Mat for the kernels backed by
// OpenCV
func hostMat(v view) (gocv.Mat, error) {

	m := gocv.NewMatWithSize(v.rows, v.cols, v.typ.Gocv())

	data, err := m.DataPtrUint8()

	if err != nil {
		m.Close()
		return gocv.Mat{}, fmt.Errorf("error accessing host mat: %w", err)
	}

	copy(data, v.data)

	return m, nil
}

// copyFromHost copies a gocv.Mat produced by an OpenCV kernel into the
// view, the geometry must match
func copyFromHost(dst view, m gocv.Mat) error {

	if m.Rows() != dst.rows || m.Cols() != dst.cols || TypeFromGocv(m.Type()) != dst.typ {
		return fmt.Errorf("kernel produced %dx%d %s, expected %dx%d %s",
			m.Rows(), m.Cols(), TypeFromGocv(m.Type()), dst.rows, dst.cols, dst.typ)
	}

	src := m

	if !m.IsContinuous() {
		src = m.Clone()
		defer src.Close()
	}

	data, err := src.DataPtrUint8()

	if err != nil {
		return fmt.Errorf("error accessing host mat: %w", err)
	}

	copy(dst.data, data)

	return nil
}
